package adapters

import (
	"context"
	"errors"

	"github.com/HatiCode/panelcast/pkg/panel"
)

// CSVAdapter reads a long-format panel (unique_id, ds, y, exogenous...) from a file.
type CSVAdapter struct {
	Path    string
	Options panel.CSVOptions
}

func (c *CSVAdapter) Name() string { return "csv" }

// Collect implements Adapter. The whole file is returned regardless of windowSeconds.
func (c *CSVAdapter) Collect(ctx context.Context, windowSeconds int) (*panel.Frame, error) {
	if c.Path == "" {
		return nil, errors.New("csv adapter: Path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return panel.LoadCSV(c.Path, c.Options)
}
