// Package rftime models the absolute sample timestamps of every radio channel.
//
// A Timestamp splits time into integer seconds and a fractional part so that
// long runs do not lose sub-sample precision to a single float64. All
// operations are allocation free except String.
package rftime

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Timestamp is an absolute radio time. After Normalize, FracSecs is in [0, 1)
// and FullSecs carries any overflow or underflow.
type Timestamp struct {
	FullSecs int64   `json:"full_secs"`
	FracSecs float64 `json:"frac_secs"`
}

// FromTime converts a wall-clock time into a normalized Timestamp.
func FromTime(t time.Time) Timestamp {
	return Timestamp{
		FullSecs: t.Unix(),
		FracSecs: float64(t.Nanosecond()) / 1e9,
	}.Normalize()
}

// Normalize returns the equivalent timestamp with the fractional part folded
// into [0, 1).
//
// The integer part of FracSecs is truncated toward zero and moved into
// FullSecs. A negative remainder then borrows one second. A remainder that
// rounds up to exactly 1.0 after the borrow is carried back.
func (ts Timestamp) Normalize() Timestamp {
	whole := math.Trunc(ts.FracSecs)
	full := ts.FullSecs + int64(whole)
	frac := ts.FracSecs - whole
	if frac < 0 {
		full--
		frac += 1
	}
	if frac >= 1 {
		full++
		frac -= 1
	}
	return Timestamp{FullSecs: full, FracSecs: frac}
}

// Add shifts ts forward in place and normalizes the result.
func (ts *Timestamp) Add(fullSecs int64, fracSecs float64) {
	ts.FullSecs += fullSecs
	ts.FracSecs += fracSecs
	*ts = ts.Normalize()
}

// Sub shifts ts backward in place and normalizes the result.
func (ts *Timestamp) Sub(fullSecs int64, fracSecs float64) {
	ts.FullSecs -= fullSecs
	ts.FracSecs -= fracSecs
	*ts = ts.Normalize()
}

// Seconds returns ts as a single float64. Precision degrades for large
// FullSecs; use it for deltas and display only.
func (ts Timestamp) Seconds() float64 {
	return float64(ts.FullSecs) + ts.FracSecs
}

// Samples converts ts into a sample index at the given rate. FullSecs must
// not be negative.
func (ts Timestamp) Samples(rateHz float64) uint64 {
	return uint64(float64(ts.FullSecs)*rateHz) + uint64(math.Round(ts.FracSecs*rateHz))
}

// Time converts ts into a wall-clock time.
func (ts Timestamp) Time() time.Time {
	n := ts.Normalize()
	return time.Unix(n.FullSecs, int64(math.Round(n.FracSecs*1e9)))
}

// Compare returns -1, 0 or +1 as a is before, equal to, or after b. Both
// operands are compared in normalized form.
func Compare(a, b Timestamp) int {
	a, b = a.Normalize(), b.Normalize()
	switch {
	case a.FullSecs < b.FullSecs:
		return -1
	case a.FullSecs > b.FullSecs:
		return 1
	case a.FracSecs < b.FracSecs:
		return -1
	case a.FracSecs > b.FracSecs:
		return 1
	default:
		return 0
	}
}

// String renders FullSecs followed by the fractional part with 17 digits
// after the decimal point, e.g. "-3.25000000000000000". The sign appears only
// on the integer part. The format is parsed by log tooling and must stay
// stable.
//
// String expects a normalized timestamp. Any whole seconds left in FracSecs
// are dropped rather than carried, and a non-finite fraction renders as
// ".NaN" or ".+Inf" after the integer part.
func (ts Timestamp) String() string {
	if math.IsNaN(ts.FracSecs) || math.IsInf(ts.FracSecs, 0) {
		return strconv.FormatInt(ts.FullSecs, 10) + "." + strconv.FormatFloat(math.Abs(ts.FracSecs), 'f', 17, 64)
	}
	frac := strconv.FormatFloat(math.Abs(ts.FracSecs), 'f', 17, 64)
	if i := strings.IndexByte(frac, '.'); i >= 0 {
		frac = frac[i:]
	}
	return strconv.FormatInt(ts.FullSecs, 10) + frac
}
