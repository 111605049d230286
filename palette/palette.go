// Package palette maps trail intensity to colors and terminal shades.
package palette

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Stop is a gradient control point at position T in [0, 1].
type Stop struct {
	T     float64
	Color colorful.Color
}

// Palette is a gradient blended in L*a*b* between stops, precomputed into a
// lookup table indexed by quantized intensity.
type Palette struct {
	stops []Stop
	lut   [256]color.RGBA
	gamma float64
}

// Slime is the default gradient: black through violet and amber to pale yellow.
var Slime = []Stop{
	{T: 0.00, Color: hex("#000000")},
	{T: 0.25, Color: hex("#301052")},
	{T: 0.55, Color: hex("#be463c")},
	{T: 0.80, Color: hex("#f5aa32")},
	{T: 1.00, Color: hex("#fff5c8")},
}

// Shades orders terminal glyphs from empty to dense.
const Shades = " .:-=+*#%@"

func hex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// New builds a palette from stops sorted by T. gamma < 1 lifts faint trails.
func New(stops []Stop, gamma float64) *Palette {
	if gamma <= 0 {
		gamma = 1
	}
	p := &Palette{stops: stops, gamma: gamma}
	for i := range p.lut {
		p.lut[i] = toRGBA(p.at(p.curve(float64(i) / 255)))
	}
	return p
}

// Default returns the Slime gradient with a 0.5 gamma.
func Default() *Palette {
	return New(Slime, 0.5)
}

func (p *Palette) curve(t float64) float64 {
	if p.gamma == 1 {
		return t
	}
	return math.Pow(t, p.gamma)
}

// at returns the gradient color at t.
func (p *Palette) at(t float64) colorful.Color {
	if len(p.stops) == 0 {
		return colorful.Color{R: t, G: t, B: t}
	}
	first, last := p.stops[0], p.stops[len(p.stops)-1]
	switch {
	case t <= first.T:
		return first.Color
	case t >= last.T:
		return last.Color
	}
	for i := 1; i < len(p.stops); i++ {
		a, b := p.stops[i-1], p.stops[i]
		if t <= b.T {
			return a.Color.BlendLab(b.Color, (t-a.T)/(b.T-a.T))
		}
	}
	return last.Color
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Color returns the color for a quantized intensity.
func (p *Palette) Color(q uint8) color.RGBA {
	return p.lut[q]
}

// Fill converts quantized intensities to colors, writing into dst (grown as
// needed).
func (p *Palette) Fill(dst []color.RGBA, q []uint8) []color.RGBA {
	if cap(dst) < len(q) {
		dst = make([]color.RGBA, len(q))
	}
	dst = dst[:len(q)]
	for i, v := range q {
		dst[i] = p.lut[v]
	}
	return dst
}

// Shade returns the terminal glyph for a quantized intensity after the gamma
// curve.
func (p *Palette) Shade(q uint8) rune {
	t := p.curve(float64(q) / 255)
	i := int(t*float64(len(Shades)-1) + 0.5)
	return rune(Shades[min(i, len(Shades)-1)])
}
