package panel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUnsupportedFreq is returned for frequency aliases that cannot be expressed as a Freq.
var ErrUnsupportedFreq = errors.New("unsupported frequency")

type unit uint8

const (
	fixed unit = iota
	monthStart
	monthEnd
	quarterStart
	quarterEnd
	yearStart
	yearEnd
	step
)

// Freq is the calendar step shared by every series of a panel.
//
// Fixed units (seconds through weeks) add a duration. Month, quarter and year
// units move by calendar months, landing on the first day for the start
// anchored aliases and on the last day for the end anchored ones. An integer
// frequency is the step of an integer-indexed panel.
type Freq struct {
	alias string
	unit  unit
	mult  int
	d     time.Duration
}

var fixedUnits = map[string]time.Duration{
	"ms":  time.Millisecond,
	"L":   time.Millisecond,
	"S":   time.Second,
	"s":   time.Second,
	"T":   time.Minute,
	"min": time.Minute,
	"H":   time.Hour,
	"h":   time.Hour,
	"D":   24 * time.Hour,
	"W":   7 * 24 * time.Hour,
}

var calendarUnits = map[string]unit{
	"MS": monthStart,
	"M":  monthEnd,
	"ME": monthEnd,
	"QS": quarterStart,
	"Q":  quarterEnd,
	"QE": quarterEnd,
	"YS": yearStart,
	"AS": yearStart,
	"Y":  yearEnd,
	"A":  yearEnd,
	"YE": yearEnd,
}

// ParseFreq parses a frequency alias with an optional multiplier ("D", "15min",
// "MS", "2Q"), a plain integer step ("1") or a Go duration ("90m").
// Business-day and anchored weekly aliases are rejected.
func ParseFreq(s string) (Freq, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Freq{}, fmt.Errorf("%w: empty frequency", ErrUnsupportedFreq)
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 {
			return Freq{}, fmt.Errorf("%w: integer step must be >= 1, got %d", ErrUnsupportedFreq, n)
		}
		return Freq{alias: s, unit: step, mult: n}, nil
	}

	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	mult := 1
	if digits > 0 {
		mult, _ = strconv.Atoi(s[:digits])
	}
	name := s[digits:]

	if mult >= 1 {
		if d, ok := fixedUnits[name]; ok {
			return Freq{alias: s, unit: fixed, mult: mult, d: time.Duration(mult) * d}, nil
		}
		if u, ok := calendarUnits[name]; ok {
			return Freq{alias: s, unit: u, mult: mult}, nil
		}
	}
	if name == "B" || name == "C" || strings.HasPrefix(name, "B") || strings.Contains(name, "-") {
		return Freq{}, fmt.Errorf("%w: %q", ErrUnsupportedFreq, s)
	}

	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return Freq{alias: s, unit: fixed, mult: 1, d: d}, nil
	}
	return Freq{}, fmt.Errorf("%w: %q", ErrUnsupportedFreq, s)
}

// MustParseFreq is like ParseFreq but panics on error.
func MustParseFreq(s string) Freq {
	f, err := ParseFreq(s)
	if err != nil {
		panic(err)
	}
	return f
}

// String returns the alias the frequency was parsed from.
func (f Freq) String() string {
	return f.alias
}

// IsZero reports whether f was never parsed.
func (f Freq) IsZero() bool {
	return f.alias == ""
}

// Step returns the integer step for integer frequencies and 1 otherwise.
func (f Freq) Step() int64 {
	if f.unit == step {
		return int64(f.mult)
	}
	return 1
}

// add moves t by k steps.
func (f Freq) add(t time.Time, k int) time.Time {
	switch f.unit {
	case fixed:
		return t.Add(time.Duration(k) * f.d)
	case step:
		// integer frequency on a calendar panel: whole days
		return t.AddDate(0, 0, k*f.mult)
	case monthStart:
		return firstOfMonth(t, k*f.mult)
	case quarterStart:
		return firstOfMonth(t, 3*k*f.mult)
	case yearStart:
		return firstOfMonth(t, 12*k*f.mult)
	case monthEnd:
		return lastOfMonth(t, k*f.mult)
	case quarterEnd:
		return lastOfMonth(t, 3*k*f.mult)
	case yearEnd:
		return lastOfMonth(t, 12*k*f.mult)
	}
	return t
}

// firstOfMonth returns the first day of the month `months` after t's month,
// keeping t's clock time.
func firstOfMonth(t time.Time, months int) time.Time {
	y, m, _ := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m+time.Month(months), 1, hh, mm, ss, t.Nanosecond(), t.Location())
}

// lastOfMonth returns the last day of the month `months` after t's month,
// keeping t's clock time.
func lastOfMonth(t time.Time, months int) time.Time {
	y, m, _ := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m+time.Month(months)+1, 0, hh, mm, ss, t.Nanosecond(), t.Location())
}
