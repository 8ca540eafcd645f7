package geom

import (
	"fmt"
	"math"
)

// Color is an RGB triple with channels in [0,1].
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
}

// RGB8 converts 8-bit channels to a Color.
func RGB8(r, g, b uint8) Color {
	return Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
}

// Validate checks every channel is within [0,1].
func (c Color) Validate() error {
	for _, ch := range []struct {
		name string
		v    float64
	}{{"r", c.R}, {"g", c.G}, {"b", c.B}} {
		if math.IsNaN(ch.v) || ch.v < 0 || ch.v > 1 {
			return fmt.Errorf("color channel %s must be between 0 and 1, got %f", ch.name, ch.v)
		}
	}
	return nil
}

// String formats the colour as "(r, g, b)" with three decimals.
func (c Color) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", c.R, c.G, c.B)
}
