package cards

import (
	"fmt"
	"strconv"
)

// FallbackColor is returned whenever a hex color cannot be parsed. It is
// also the stock card background when nothing else is configured.
const FallbackColor = "#6a5acd"

// parseHex reads a "#rrggbb" color. Anything shorter than 7 characters,
// missing the prefix, or carrying non-hex digits fails.
func parseHex(color string) (r, g, b int, ok bool) {
	if len(color) < 7 || color[0] != '#' {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(color[1:7], 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(v >> 16), int(v >> 8 & 0xff), int(v & 0xff), true
}

func encodeHex(r, g, b int) string {
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

// Darken scales each RGB channel of a "#rrggbb" color by 0.7, flooring
// to an integer. Unparseable input yields FallbackColor, never an error.
func Darken(color string) string {
	return Adjust(color, 70)
}

// Adjust scales each RGB channel to percent/100 of its value, with
// percent clamped to [0,100]. Same parse discipline as Darken.
func Adjust(color string, percent int) string {
	r, g, b, ok := parseHex(color)
	if !ok {
		return FallbackColor
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	scale := float64(percent) / 100
	return encodeHex(int(float64(r)*scale), int(float64(g)*scale), int(float64(b)*scale))
}
