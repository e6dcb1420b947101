package nomads

import (
	"fmt"
	"strconv"
	"strings"
)

// Resolution is the spatial grid spacing of the forecast data, in degrees.
type Resolution float64

// Supported grid resolutions.
const (
	Res0p25 Resolution = 0.25
	Res0p50 Resolution = 0.5
	Res1p00 Resolution = 1.0
	Res2p50 Resolution = 2.5
)

// Resolutions lists the supported resolutions in ascending order.
func Resolutions() []Resolution {
	return []Resolution{Res0p25, Res0p50, Res1p00, Res2p50}
}

// Valid reports whether r is a supported resolution.
func (r Resolution) Valid() bool {
	for _, v := range Resolutions() {
		if r == v {
			return true
		}
	}
	return false
}

// Tag returns the resolution token used in archive filenames: the value
// formatted to 2 decimal places with "." replaced by "p", e.g. "0p25".
func (r Resolution) Tag() string {
	return strings.ReplaceAll(fmt.Sprintf("%.2f", float64(r)), ".", "p")
}

func (r Resolution) String() string {
	return strconv.FormatFloat(float64(r), 'g', -1, 64)
}

// ParseResolution parses a resolution from its decimal form, e.g. "0.25".
func ParseResolution(s string) (Resolution, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse resolution %q: %w", s, err)
	}
	r := Resolution(f)
	if !r.Valid() {
		return 0, fmt.Errorf("unsupported resolution %s (supported: %s)", s, supportedList())
	}
	return r, nil
}

func supportedList() string {
	var tokens []string
	for _, r := range Resolutions() {
		tokens = append(tokens, r.String())
	}
	return strings.Join(tokens, ", ")
}

// Schedule returns the full native step schedule for the resolution, in
// hours, as a freshly allocated slice. Callers may filter or reorder the
// result without affecting later calls; the schedule is never cached.
func (r Resolution) Schedule() []int {
	var steps []int
	if r == Res0p25 {
		steps = appendRange(steps, 0, 120, 1)
		steps = appendRange(steps, 123, 240, 3)
	} else {
		steps = appendRange(steps, 0, 240, 3)
	}
	return appendRange(steps, 252, 384, 12)
}

// appendRange appends from..to inclusive, stepping by stride.
func appendRange(steps []int, from, to, stride int) []int {
	for i := from; i <= to; i += stride {
		steps = append(steps, i)
	}
	return steps
}
