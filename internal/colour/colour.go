package colour

import (
	"fmt"
	"strconv"
	"strings"
)

// Colour is an RGB triple with channels in [0,255].
type Colour struct {
	R int
	G int
	B int
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return n
}

// ToHex renders a colour as a lowercase "#rrggbb" string. Channels
// outside [0,255] are clamped.
func ToHex(c Colour) string {
	return fmt.Sprintf("#%02x%02x%02x", clamp(c.R), clamp(c.G), clamp(c.B))
}

// ParseHex decodes a "#rrggbb" (or "rrggbb") string back into a Colour.
func ParseHex(hex string) (Colour, error) {
	s := strings.TrimPrefix(hex, "#")
	if len(s) != 6 {
		return Colour{}, fmt.Errorf("invalid hex colour %q", hex)
	}
	var out [3]int
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return Colour{}, fmt.Errorf("invalid hex colour %q: %w", hex, err)
		}
		out[i] = int(v)
	}
	return Colour{R: out[0], G: out[1], B: out[2]}, nil
}

// DefaultDarkenFactor matches the display layer's shading of the fill outline.
const DefaultDarkenFactor = 0.8

// Darken multiplies each channel by factor (flooring, then clamping) and
// re-encodes. Repeated application converges toward #000000. An unparseable
// input is returned unchanged.
func Darken(hex string, factor float64) string {
	c, err := ParseHex(hex)
	if err != nil {
		return hex
	}
	return ToHex(Colour{
		R: clamp(int(float64(c.R) * factor)),
		G: clamp(int(float64(c.G) * factor)),
		B: clamp(int(float64(c.B) * factor)),
	})
}
