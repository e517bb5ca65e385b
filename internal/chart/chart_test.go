package chart

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/medcast/internal/demand"
)

func TestRender(t *testing.T) {
	conf := 88.0
	points := demand.Normalize([]demand.ChartPoint{
		{X: 8, Y: 20, Label: "Week 8"},
		{X: 9, Y: 35, Label: "Week 9"},
		{X: 10, Y: 41, Label: "Week 10", Confidence: &conf},
	})

	data, err := Render("Aspirin - Oslo", points)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Width, img.Bounds().Dx())
	assert.Equal(t, Height, img.Bounds().Dy())

	x, y := toPixel(points[2])
	r, g, b, _ := img.At(int(x), int(y)).RGBA()
	assert.Equal(t, []uint32{59, 130, 246}, []uint32{r >> 8, g >> 8, b >> 8}, "upcoming point is blue")
}

func TestRender_Empty(t *testing.T) {
	data, err := Render("", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestCache(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := NewCache(time.Minute, clock)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", []byte("png"))
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("png"), got)

	clock.Advance(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
}
