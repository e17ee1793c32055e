package config

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// ParseLevels parses a comma-separated list of prediction interval levels.
// Each entry is a percentage in p-notation (p80), as a plain number (80) or
// as a fraction (0.8). The result is sorted and deduplicated; an empty string
// yields no levels.
//
// Examples:
//   - "80,95"    → [80 95]
//   - "p95,p80"  → [80 95]
//   - "0.9"      → [90]
func ParseLevels(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var levels []int
	for _, part := range strings.Split(s, ",") {
		level, err := parseLevel(part)
		if err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}

	slices.Sort(levels)
	return slices.Compact(levels), nil
}

func parseLevel(s string) (int, error) {
	s = strings.TrimSpace(s)
	raw := s
	if strings.HasPrefix(strings.ToLower(s), "p") {
		raw = s[1:]
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid level %q: %w", s, err)
	}
	if v > 0 && v < 1 && raw == s {
		v = math.Round(v*100*1e9) / 1e9
	}
	if v != float64(int(v)) {
		return 0, fmt.Errorf("level %q is not a whole percentage", s)
	}
	if v <= 0 || v >= 100 {
		return 0, fmt.Errorf("level %v out of range (0, 100)", v)
	}
	return int(v), nil
}

// FormatLevels renders levels in p-notation for logs, e.g. "p80,p95".
func FormatLevels(levels []int) string {
	if len(levels) == 0 {
		return "none"
	}
	parts := make([]string, len(levels))
	for i, l := range levels {
		parts[i] = fmt.Sprintf("p%d", l)
	}
	return strings.Join(parts, ",")
}
