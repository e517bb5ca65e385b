package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Plain description.", "Plain description."},
		{"  spaced \n out  ", "spaced out"},
		{"<p>Allergy <b>medication</b></p>", "Allergy medication"},
		{"Pain &amp; fever", "Pain & fever"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToText(tt.in), "ToText(%q)", tt.in)
	}
}
