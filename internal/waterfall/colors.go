package waterfall

import (
	"image/color"
	"math"
)

// Color themes for power visualization
const (
	ThemeClassic   Theme = "classic"   // blue to red transition
	ThemeThermal   Theme = "thermal"   // black to red to yellow to white
	ThemeGrayscale Theme = "grayscale" // black to white transition
)

type Theme string

const colorMapSize = 256

// colorMapper maps power readings onto a pre-computed color table, so the
// per-pixel cost during rendering is one index computation.
type colorMapper struct {
	table         []color.Color
	powerMin      float64
	powerPerIndex float64
}

func newColorMapper(theme Theme, powerMin, powerMax float64) *colorMapper {
	m := colorMapper{
		table:         make([]color.Color, colorMapSize),
		powerMin:      powerMin,
		powerPerIndex: (powerMax - powerMin) / float64(colorMapSize-1),
	}

	paint := themeFunc(theme)
	for i := range m.table {
		m.table[i] = paint(float64(i) / float64(colorMapSize-1))
	}
	return &m
}

func (m *colorMapper) colorFor(power float64) color.Color {
	index := int((power - m.powerMin) / m.powerPerIndex)
	if index < 0 {
		return m.table[0]
	}
	if index >= len(m.table) {
		return m.table[len(m.table)-1]
	}
	return m.table[index]
}

// themeFunc maps a normalized power in [0, 1] to a color
func themeFunc(theme Theme) func(float64) color.Color {
	switch theme {
	case ThemeThermal:
		return func(power float64) color.Color {
			switch {
			case power < 0.33:
				return color.RGBA{R: uint8(power * 3 * 255), A: 255}
			case power < 0.66:
				return color.RGBA{R: 255, G: uint8((power - 0.33) * 3 * 255), A: 255}
			default:
				return color.RGBA{R: 255, G: 255, B: uint8((power - 0.66) * 3 * 255), A: 255}
			}
		}

	case ThemeGrayscale:
		return func(power float64) color.Color {
			v := uint8(math.Pow(power, 0.7) * 255)
			return color.RGBA{R: v, G: v, B: v, A: 255}
		}

	default: // ThemeClassic
		return func(power float64) color.Color {
			return hsv{
				h: 240 - (power * 240),
				s: 0.9 + (power * 0.1),
				v: math.Pow(power, 0.7), // gamma correction
			}.rgb()
		}
	}
}

// hsv is a color in HSV space: h in degrees [0, 360), s and v in [0, 1]
type hsv struct {
	h, s, v float64
}

func (c hsv) rgb() color.Color {
	if c.s <= 0 {
		v := uint8(c.v * 255)
		return color.RGBA{R: v, G: v, B: v, A: 255}
	}

	h := math.Mod(c.h, 360) / 60
	i := int(h)
	f := h - float64(i)

	v := uint8(c.v * 255)
	p := uint8(c.v * (1 - c.s) * 255)
	q := uint8(c.v * (1 - c.s*f) * 255)
	t := uint8(c.v * (1 - c.s*(1-f)) * 255)

	switch i {
	case 0:
		return color.RGBA{R: v, G: t, B: p, A: 255}
	case 1:
		return color.RGBA{R: q, G: v, B: p, A: 255}
	case 2:
		return color.RGBA{R: p, G: v, B: t, A: 255}
	case 3:
		return color.RGBA{R: p, G: q, B: v, A: 255}
	case 4:
		return color.RGBA{R: t, G: p, B: v, A: 255}
	default:
		return color.RGBA{R: v, G: p, B: q, A: 255}
	}
}
