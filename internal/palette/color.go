package palette

import (
	"fmt"
	"math"
)

// MinValue is the lowest HSV value (0-255 scale) a palette color may have.
const MinValue = 150

// Fallback is used when a cover cannot be fetched or decoded.
var Fallback = []string{"#FFFFFF", "#000000"}

// rgb is a color with 0-255 channels.
type rgb struct {
	r, g, b float64
}

func (c rgb) round() rgb {
	return rgb{clamp255(c.r), clamp255(c.g), clamp255(c.b)}
}

func clamp255(v float64) float64 {
	return math.Max(0, math.Min(255, math.Round(v)))
}

// hsv converts to 8-bit HSV: hue in [0,180), saturation and value in [0,255].
func (c rgb) hsv() (h, s, v float64) {
	maxC := math.Max(c.r, math.Max(c.g, c.b))
	minC := math.Min(c.r, math.Min(c.g, c.b))
	delta := maxC - minC

	v = maxC
	if maxC > 0 {
		s = 255 * delta / maxC
	}
	if delta == 0 {
		return 0, s, v
	}

	switch maxC {
	case c.r:
		h = 60 * (c.g - c.b) / delta
	case c.g:
		h = 120 + 60*(c.b-c.r)/delta
	default:
		h = 240 + 60*(c.r-c.g)/delta
	}
	if h < 0 {
		h += 360
	}
	return h / 2, s, v
}

// brighten raises the HSV value to at least floor, keeping hue and saturation.
// Scaling every channel by the same factor changes only the value.
func (c rgb) brighten(floor float64) rgb {
	_, _, v := c.hsv()
	switch {
	case v >= floor:
		return c
	case v == 0:
		return rgb{floor, floor, floor}
	default:
		f := floor / v
		return rgb{c.r * f, c.g * f, c.b * f}.round()
	}
}

func (c rgb) hex() string {
	c = c.round()
	return fmt.Sprintf("#%02X%02X%02X", int(c.r), int(c.g), int(c.b))
}

// lessHSV orders colors by hue, then saturation, then value.
func lessHSV(a, b rgb) bool {
	ah, as, av := a.hsv()
	bh, bs, bv := b.hsv()
	if ah != bh {
		return ah < bh
	}
	if as != bs {
		return as < bs
	}
	return av < bv
}
