package panel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Stamp is an observation time: either a calendar instant or an integer step
// for series without a calendar index.
type Stamp struct {
	t     time.Time
	n     int64
	index bool
}

// TimeStamp returns a calendar stamp.
func TimeStamp(t time.Time) Stamp {
	return Stamp{t: t}
}

// IndexStamp returns an integer step stamp.
func IndexStamp(n int64) Stamp {
	return Stamp{n: n, index: true}
}

// IsIndex reports whether the stamp is an integer step.
func (s Stamp) IsIndex() bool {
	return s.index
}

// Time returns the calendar instant; zero for index stamps.
func (s Stamp) Time() time.Time {
	return s.t
}

// Index returns the integer step; zero for calendar stamps.
func (s Stamp) Index() int64 {
	return s.n
}

// Shift returns the stamp k steps of freq later (earlier for negative k).
// Index stamps move by k times the integer step of freq.
func (s Stamp) Shift(freq Freq, k int) Stamp {
	if s.index {
		return IndexStamp(s.n + int64(k)*freq.Step())
	}
	return TimeStamp(freq.add(s.t, k))
}

// Compare returns -1, 0 or +1. Index stamps sort before calendar stamps.
func (s Stamp) Compare(o Stamp) int {
	switch {
	case s.index && o.index:
		switch {
		case s.n < o.n:
			return -1
		case s.n > o.n:
			return 1
		}
		return 0
	case s.index:
		return -1
	case o.index:
		return 1
	}
	return s.t.Compare(o.t)
}

// Equal reports whether both stamps denote the same instant or step.
func (s Stamp) Equal(o Stamp) bool {
	return s.Compare(o) == 0
}

// String renders index stamps as integers, midnight UTC times as dates and
// everything else as RFC 3339.
func (s Stamp) String() string {
	if s.index {
		return strconv.FormatInt(s.n, 10)
	}
	if s.t.Location() == time.UTC && s.t.Equal(s.t.Truncate(24*time.Hour)) {
		return s.t.Format(time.DateOnly)
	}
	return s.t.Format(time.RFC3339Nano)
}

var stampLayouts = []string{
	time.RFC3339Nano,
	time.DateTime,
	"2006-01-02T15:04:05",
	time.DateOnly,
}

// ParseStamp parses an integer step, an RFC 3339 time, "2006-01-02 15:04:05"
// or a bare date. Times without a zone are taken as UTC.
func ParseStamp(s string) (Stamp, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IndexStamp(n), nil
	}
	for _, layout := range stampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeStamp(t), nil
		}
	}
	return Stamp{}, fmt.Errorf("invalid stamp %q", s)
}

// MarshalJSON encodes index stamps as numbers and calendar stamps as RFC 3339 strings.
func (s Stamp) MarshalJSON() ([]byte, error) {
	if s.index {
		return []byte(strconv.FormatInt(s.n, 10)), nil
	}
	return json.Marshal(s.t.Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts a number or a string parseable by ParseStamp.
func (s *Stamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		parsed, err := ParseStamp(str)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid stamp %s: %w", data, err)
	}
	*s = IndexStamp(n)
	return nil
}
