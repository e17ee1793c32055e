// Package storage keeps the latest forecast or cross-validation run per name.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HatiCode/panelcast/pkg/panel"
)

// ErrInvalidName is returned for empty run names or names with characters
// outside [A-Za-z0-9_-].
var ErrInvalidName = errors.New("invalid run name")

// Run is one completed engine call and its result table.
type Run struct {
	Name        string       `json:"name"`
	Mode        string       `json:"mode"`
	GeneratedAt time.Time    `json:"generated_at"`
	Horizon     int          `json:"horizon"`
	Freq        string       `json:"freq,omitempty"`
	Levels      []int        `json:"levels,omitempty"`
	Models      []string     `json:"models"`
	Groups      int          `json:"groups"`
	Table       *panel.Table `json:"table"`
}

// Store keeps the latest run per name.
type Store interface {
	Put(ctx context.Context, run Run) error
	GetLatest(ctx context.Context, name string) (Run, bool, error)
}

// ValidateName checks that a run name is usable as a storage key.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name required", ErrInvalidName)
	}
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_') {
			return fmt.Errorf("%w %q: only alphanumeric, hyphens, and underscores allowed", ErrInvalidName, name)
		}
	}
	return nil
}
