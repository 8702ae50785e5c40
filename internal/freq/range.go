// Package freq models spectral window specifications and their partitioning
// into independent working sub-bands.
package freq

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CanonicalUnit is the frequency unit in which bad-range exclusion is
// evaluated. Specs in other units (or unitless channel ranges) are never
// pruned.
const CanonicalUnit = "MHz"

// knownUnits are the accepted frequency unit suffixes, longest first so
// suffix matching is unambiguous.
var knownUnits = []string{"GHz", "MHz", "kHz", "Hz"}

// Range is a contiguous spectral interval. Unit is empty for channel-number
// ranges.
type Range struct {
	Low  float64
	High float64
	Unit string
}

// ParseRange parses a "low~high[unit]" interval, e.g. "900~1670MHz" or
// "0~4095".
func ParseRange(s string) (Range, error) {
	body := strings.TrimSpace(s)
	unit := ""
	for _, u := range knownUnits {
		if strings.HasSuffix(body, u) {
			unit = u
			body = strings.TrimSuffix(body, u)
			break
		}
	}

	low, high, ok := strings.Cut(body, "~")
	if !ok {
		return Range{}, fmt.Errorf("range %q is not of the form low~high", s)
	}
	lowV, err := strconv.ParseFloat(strings.TrimSpace(low), 64)
	if err != nil {
		return Range{}, fmt.Errorf("range %q has a malformed low bound: %w", s, err)
	}
	highV, err := strconv.ParseFloat(strings.TrimSpace(high), 64)
	if err != nil {
		return Range{}, fmt.Errorf("range %q has a malformed high bound: %w", s, err)
	}
	if highV <= lowV {
		return Range{}, fmt.Errorf("range %q is empty or inverted", s)
	}
	return Range{Low: lowV, High: highV, Unit: unit}, nil
}

// ParseRanges parses a comma-separated list of intervals.
func ParseRanges(specs []string) ([]Range, error) {
	out := make([]Range, 0, len(specs))
	for _, s := range specs {
		r, err := ParseRange(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// String renders the range with trimmed numeric formatting, e.g.
// "900~1092.5MHz".
func (r Range) String() string {
	return formatBound(r.Low) + "~" + formatBound(r.High) + r.Unit
}

// Width returns the interval width in the range's own unit.
func (r Range) Width() float64 { return r.High - r.Low }

// ContainedIn reports whether r lies fully inside bad, boundary touches
// included. Only ranges sharing the canonical unit are comparable; anything
// else is never contained.
func (r Range) ContainedIn(bad Range) bool {
	if r.Unit != CanonicalUnit || bad.Unit != CanonicalUnit {
		return false
	}
	return r.Low >= bad.Low && r.High <= bad.High
}

// integral reports whether both bounds are whole numbers.
func (r Range) integral() bool {
	return r.Low == math.Trunc(r.Low) && r.High == math.Trunc(r.High)
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Spec is a parsed spectral window specification: an optional field-selector
// prefix (the part before ':', usually "*") plus either one contiguous range
// or an explicit list of ranges.
type Spec struct {
	Prefix string
	Ranges []Range
	List   bool
}

// ParseSpec parses a full spw spec such as "*:900~1670MHz" or an explicit
// comma-separated list "*:880~960MHz,*:960~1010MHz".
func ParseSpec(s string) (Spec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Spec{}, fmt.Errorf("empty spectral window spec")
	}

	parts := strings.Split(s, ",")
	spec := Spec{List: len(parts) > 1}
	for _, part := range parts {
		prefix, body := splitSelector(part)
		if spec.Prefix == "" {
			spec.Prefix = prefix
		}
		r, err := ParseRange(body)
		if err != nil {
			return Spec{}, err
		}
		spec.Ranges = append(spec.Ranges, r)
	}
	return spec, nil
}

// FormatRange renders one range back into the spec's selector syntax.
func (s Spec) FormatRange(r Range) string {
	if s.Prefix == "" {
		return r.String()
	}
	return s.Prefix + ":" + r.String()
}

// splitSelector splits the "*:" style field selector off one spec element.
// A ':' that is part of the range body never occurs in this config dialect.
func splitSelector(s string) (prefix, body string) {
	s = strings.TrimSpace(s)
	if before, after, ok := strings.Cut(s, ":"); ok {
		return before, after
	}
	return "", s
}
