// Package transform holds the pure value conversions between semantic
// configuration values and their wire bytes. Every encoder here has a paired
// decoder so a device round-trip is lossless for supported values.
package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Nuitfanee/clicksync/cfgerror"
)

// RGB is a decoded 24-bit colour.
type RGB struct{ R, G, B byte }

// ParseColor accepts "#rrggbb", "#rgb", bare hex, "[r,g,b]" and "{r,g,b}"
// forms and returns the colour triple.
func ParseColor(s string) (RGB, error) {
	in := strings.TrimSpace(s)
	if in == "" {
		return RGB{}, cfgerror.BadHex(s)
	}
	if strings.HasPrefix(in, "[") || strings.HasPrefix(in, "{") {
		body := strings.Trim(in, "[]{} ")
		parts := strings.Split(body, ",")
		if len(parts) != 3 {
			return RGB{}, cfgerror.BadHex(s)
		}
		var ch [3]byte
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil || n < 0 || n > 255 {
				return RGB{}, cfgerror.BadHex(s)
			}
			ch[i] = byte(n)
		}
		return RGB{R: ch[0], G: ch[1], B: ch[2]}, nil
	}
	hexs := strings.TrimPrefix(in, "#")
	switch len(hexs) {
	case 3:
		var ch [3]byte
		for i := 0; i < 3; i++ {
			n, err := strconv.ParseUint(string(hexs[i]), 16, 8)
			if err != nil {
				return RGB{}, cfgerror.BadHex(s)
			}
			ch[i] = byte(n)<<4 | byte(n)
		}
		return RGB{R: ch[0], G: ch[1], B: ch[2]}, nil
	case 6:
		n, err := strconv.ParseUint(hexs, 16, 32)
		if err != nil {
			return RGB{}, cfgerror.BadHex(s)
		}
		return RGB{R: byte(n >> 16), G: byte(n >> 8), B: byte(n)}, nil
	}
	return RGB{}, cfgerror.BadHex(s)
}

// FormatColor renders the canonical "#rrggbb" form.
func FormatColor(c RGB) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Signed8 packs a signed degree value into two's-complement. The decoder is
// Unsigned8; both are total over the int8 range.
func Signed8(v int) byte { return byte(int8(v)) }

// Unsigned8 is the inverse of Signed8.
func Unsigned8(b byte) int { return int(int8(b)) }

// Feel7 packs the sensor-feel value into the custom 7-bit register form:
// negative values wrap at 128.
func Feel7(v int) byte {
	if v < 0 {
		return byte(128+v) & 0x7F
	}
	return byte(v) & 0x7F
}

// UnFeel7 is the inverse of Feel7 over the -62..65 domain.
func UnFeel7(b byte) int {
	v := int(b & 0x7F)
	if v > 65 {
		return v - 128
	}
	return v
}

// debounce level <-> milliseconds. Both forms are stored on decode so either
// can be patched.
var debounceMS = map[string]int{"low": 2, "mid": 5, "high": 10}

// DebounceLevelToMS maps a named level onto its millisecond value.
func DebounceLevelToMS(level string) (int, bool) {
	ms, ok := debounceMS[level]
	return ms, ok
}

// MSToDebounceLevel maps a millisecond value back onto its named level.
func MSToDebounceLevel(ms int) (string, bool) {
	for l, m := range debounceMS {
		if m == ms {
			return l, true
		}
	}
	return "", false
}

// LedSpeedWire converts a semantic LED speed (0..20) into the inverted
// register byte.
func LedSpeedWire(speed int) byte { return byte(20 - speed) }

// LedSpeedSemantic is the inverse of LedSpeedWire.
func LedSpeedSemantic(wire byte) int { return 20 - int(wire) }

// PackDpiIndexed packs a DPI value into the indexed two-byte register form:
// high bits share a byte with the slot number.
func PackDpiIndexed(slot int, dpi uint16) (hi, lo byte) {
	hi = byte((dpi>>8)&0x1F) | byte((slot&0x07)<<5)
	lo = byte(dpi)
	return hi, lo
}

// UnpackDpiIndexed is the inverse of PackDpiIndexed.
func UnpackDpiIndexed(hi, lo byte) (slot int, dpi uint16) {
	slot = int(hi >> 5)
	dpi = uint16(hi&0x1F)<<8 | uint16(lo)
	return slot, dpi
}

// PutU16LE appends v little-endian.
func PutU16LE(dst []byte, v uint16) []byte {
	return append(dst, byte(v), byte(v>>8))
}

// U16LE reads a little-endian u16.
func U16LE(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }

// ClampDpi clamps a requested DPI value into the device range.
func ClampDpi(v, min, max int) uint16 {
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return uint16(v)
}

// NearestInt returns the member of allowed closest to want, preferring the
// lower candidate on ties. allowed must be non-empty.
func NearestInt(allowed []int, want int) int {
	best := allowed[0]
	for _, a := range allowed[1:] {
		da, db := abs(a-want), abs(best-want)
		if da < db || (da == db && a < best) {
			best = a
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
