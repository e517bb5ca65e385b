// Package chart renders normalized demand series as PNG scatter charts.
package chart

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/lox/medcast/internal/demand"
)

const (
	Width  = 960
	Height = 480

	marginLeft   = 40
	marginRight  = 40
	marginTop    = 56
	marginBottom = 56
	pointRadius  = 7
)

var (
	background  = color.RGBA{255, 255, 255, 255}
	gridColor   = color.RGBA{229, 231, 235, 255}
	lineColor   = color.RGBA{156, 163, 175, 255}
	previousDot = color.RGBA{107, 114, 128, 153} // 60% opacity
	upcomingDot = color.RGBA{59, 130, 246, 255}
	labelColor  = color.RGBA{75, 85, 99, 255}
	titleColor  = color.RGBA{17, 24, 39, 255}
)

var (
	labelFace font.Face
	titleFace font.Face
	fontOnce  sync.Once
	fontErr   error
)

func loadFonts() {
	fontOnce.Do(func() {
		f, err := opentype.Parse(goregular.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse Go Regular: %w", err)
			return
		}
		labelFace, err = opentype.NewFace(f, &opentype.FaceOptions{Size: 12, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			fontErr = fmt.Errorf("create label face: %w", err)
			return
		}
		titleFace, err = opentype.NewFace(f, &opentype.FaceOptions{Size: 20, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			fontErr = fmt.Errorf("create title face: %w", err)
		}
	})
}

// Render draws points onto a PNG. Points carrying a confidence are drawn
// as upcoming; the rest as history. Coordinates are plot percentages.
func Render(title string, points []demand.NormalizedPoint) ([]byte, error) {
	loadFonts()
	if fontErr != nil {
		return nil, fmt.Errorf("load fonts: %w", fontErr)
	}

	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	drawGrid(img)
	drawText(img, title, marginLeft, 32, titleColor, titleFace)

	for i := 1; i < len(points); i++ {
		x0, y0 := toPixel(points[i-1])
		x1, y1 := toPixel(points[i])
		drawDashedLine(img, x0, y0, x1, y1, lineColor)
	}

	for _, p := range points {
		x, y := toPixel(p)
		c := previousDot
		if p.Point.Confidence != nil {
			c = upcomingDot
		}
		fillCircle(img, x, y, pointRadius, c)

		label := p.Point.Label
		w := font.MeasureString(labelFace, label).Ceil()
		drawText(img, label, int(x)-w/2, Height-marginBottom/2, labelColor, labelFace)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

func toPixel(p demand.NormalizedPoint) (float64, float64) {
	plotW := float64(Width - marginLeft - marginRight)
	plotH := float64(Height - marginTop - marginBottom)
	return float64(marginLeft) + p.X/100*plotW, float64(marginTop) + p.Y/100*plotH
}

func drawGrid(img *image.RGBA) {
	for i := 0; i <= 4; i++ {
		y := marginTop + i*(Height-marginTop-marginBottom)/4
		for x := marginLeft; x < Width-marginRight; x++ {
			img.SetRGBA(x, y, gridColor)
		}
	}
}

func drawDashedLine(img *image.RGBA, x0, y0, x1, y1 float64, c color.RGBA) {
	length := math.Hypot(x1-x0, y1-y0)
	if length == 0 {
		return
	}
	const dash, gap = 6.0, 4.0
	for d := 0.0; d < length; d++ {
		if math.Mod(d, dash+gap) >= dash {
			continue
		}
		t := d / length
		x := int(math.Round(x0 + t*(x1-x0)))
		y := int(math.Round(y0 + t*(y1-y0)))
		img.SetRGBA(x, y, c)
		img.SetRGBA(x, y+1, c)
	}
}

// fillCircle alpha-blends c over the existing pixels.
func fillCircle(img *image.RGBA, cx, cy float64, r int, c color.RGBA) {
	a := float64(c.A) / 255
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy > r*r {
				continue
			}
			x, y := int(cx)+dx, int(cy)+dy
			if !(image.Point{x, y}.In(img.Bounds())) {
				continue
			}
			orig := img.RGBAAt(x, y)
			orig.R = uint8(float64(c.R)*a + float64(orig.R)*(1-a))
			orig.G = uint8(float64(c.G)*a + float64(orig.G)*(1-a))
			orig.B = uint8(float64(c.B)*a + float64(orig.B)*(1-a))
			orig.A = 255
			img.SetRGBA(x, y, orig)
		}
	}
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
