package layout

import (
	"math"
	"strconv"
	"strings"
)

// This file defines unit-safe lengths and the fixed 96 DPI pixel conversion.

// Unit represents the original unit of a length value as written in a layout.
type Unit int

const (
	UnitNone Unit = iota // unit-less numbers, interpreted by the caller
	UnitMM               // millimeters
	UnitCM               // centimeters
	UnitIN               // inches
	UnitPT               // points
	UnitPX               // pixels at DPI
)

// Conversion constants. Label pixels are always computed at 96 dots per inch.
const (
	DPI       = 96.0
	MMPerInch = 25.4
	PtPerInch = 72.0
	PxPerMM   = DPI / MMPerInch
	PtToMm    = MMPerInch / PtPerInch
	MmToPt    = 1.0 / PtToMm
)

// UnitToString returns a short string for a Unit value.
func UnitToString(u Unit) string {
	switch u {
	case UnitMM:
		return "mm"
	case UnitCM:
		return "cm"
	case UnitIN:
		return "in"
	case UnitPT:
		return "pt"
	case UnitPX:
		return "px"
	default:
		return ""
	}
}

// Length preserves a numeric value with its unit.
type Length struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

func (l Length) IsZero() bool { return l.Value == 0 }

// WithDefault returns l with UnitNone replaced by u.
func (l Length) WithDefault(u Unit) Length {
	if l.Unit == UnitNone {
		l.Unit = u
	}
	return l
}

// ToMM converts to millimeters. UnitNone is taken as millimeters.
func (l Length) ToMM() float64 {
	switch l.Unit {
	case UnitCM:
		return l.Value * 10
	case UnitIN:
		return l.Value * MMPerInch
	case UnitPT:
		return l.Value * PtToMm
	case UnitPX:
		return l.Value / PxPerMM
	default:
		return l.Value
	}
}

// ToPT converts to points.
func (l Length) ToPT() float64 {
	if l.Unit == UnitPT {
		return l.Value
	}
	return l.ToMM() * MmToPt
}

// ToPX converts to pixels at DPI. UnitNone is taken as pixels.
func (l Length) ToPX() float64 {
	switch l.Unit {
	case UnitPX, UnitNone:
		return l.Value
	default:
		return l.ToMM() * PxPerMM
	}
}

// MMToPixels converts millimeters to whole pixels at DPI.
// 50.8mm x 25.4mm (2in x 1in) gives exactly 192 x 96.
func MMToPixels(mm float64) int {
	return int(math.Round(mm * PxPerMM))
}

// PixelsToMM converts pixels at DPI to millimeters.
func PixelsToMM(px float64) float64 {
	return px / PxPerMM
}

// ParseRawLengthStr parses a length string such as "25.4mm" or "80", preserving its unit.
// ok is false when the numeric part is malformed.
func ParseRawLengthStr(value string) (Length, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return Length{}, false
	}
	unit := UnitNone
	num := v
	for _, suf := range []struct {
		s string
		u Unit
	}{{"mm", UnitMM}, {"cm", UnitCM}, {"in", UnitIN}, {"pt", UnitPT}, {"px", UnitPX}} {
		if strings.HasSuffix(v, suf.s) {
			unit = suf.u
			num = strings.TrimSpace(strings.TrimSuffix(v, suf.s))
			break
		}
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return Length{}, false
	}
	return Length{Value: f, Unit: unit}, true
}
