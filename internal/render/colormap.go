// Package render draws distributions: interactive echarts heat maps for the
// internal plot mode and captioned PNG images for the external one.
package render

import (
	"fmt"
	"image/color"
	"math"

	"github.com/signalsfoundry/autoalignment/model"
)

var viridisAnchors = []color.RGBA{
	{68, 1, 84, 255},
	{59, 82, 139, 255},
	{33, 145, 140, 255},
	{94, 201, 98, 255},
	{253, 231, 37, 255},
}

// colorAt maps t in [0, 1] through the colour map.
func colorAt(cm model.ColorMap, t float64) color.RGBA {
	t = math.Max(0, math.Min(1, t))
	switch cm {
	case model.Gray:
		g := uint8(math.Round(255 * t))
		return color.RGBA{g, g, g, 255}
	case model.Viridis:
		pos := t * float64(len(viridisAnchors)-1)
		i := int(pos)
		if i >= len(viridisAnchors)-1 {
			return viridisAnchors[len(viridisAnchors)-1]
		}
		return lerp(viridisAnchors[i], viridisAnchors[i+1], pos-float64(i))
	default:
		// Rainbow runs from blue at zero to red at the peak.
		return hue((1 - t) * 240)
	}
}

// palette samples the colour map into n CSS colours for the echarts visual map.
func palette(cm model.ColorMap, n int) []string {
	out := make([]string, n)
	for i := range out {
		c := colorAt(cm, float64(i)/float64(n-1))
		out[i] = fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return out
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 { return uint8(math.Round(float64(x) + t*(float64(y)-float64(x)))) }
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 255}
}

// hue converts a fully saturated HSV hue in degrees to RGB.
func hue(h float64) color.RGBA {
	c := 1.0
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	var r, g, b float64
	switch {
	case h < 60:
		r, g = c, x
	case h < 120:
		r, g = x, c
	case h < 180:
		g, b = c, x
	case h < 240:
		g, b = x, c
	default:
		r, b = x, c
	}
	return color.RGBA{uint8(math.Round(255 * r)), uint8(math.Round(255 * g)), uint8(math.Round(255 * b)), 255}
}
