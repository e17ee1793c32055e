package kernel

import (
	"context"
	"fmt"

	"github.com/HatiCode/panelcast/pkg/models"
	"github.com/HatiCode/panelcast/pkg/ragged"
)

// CV holds backtest predictions and the matching actuals, both shaped
// (Groups, Windows, H) in row-major order.
type CV struct {
	Preds   []float32
	Actuals []float32
	Groups  int
	Windows int
	H       int
}

// Index returns the flat offset of a (group, window, step) cell.
func (c *CV) Index(group, window, step int) int {
	return (group*c.Windows+window)*c.H + step
}

// Windows returns the number of rolling windows for a test size and horizon
// with a step of one.
func Windows(testSize, h int) int {
	return testSize - h + 1
}

// ComputeCV backtests model on every group with testSize-h+1 windows anchored
// at each series end. inputSize > 0 limits training to the most recent
// inputSize rows before each cutoff. When the store has exogenous columns the
// test rows' regressors are passed as future values.
func ComputeCV(ctx context.Context, store *ragged.Store, h, testSize int, model models.Model, inputSize int) (*CV, error) {
	if h < 1 || testSize < h {
		return nil, fmt.Errorf("%w: need test_size >= h >= 1, got h=%d test_size=%d", ErrShape, h, testSize)
	}

	groups := store.NGroups()
	windows := Windows(testSize, h)
	out := &CV{
		Preds:   make([]float32, groups*windows*h),
		Actuals: make([]float32, groups*windows*h),
		Groups:  groups,
		Windows: windows,
		H:       h,
	}

	for i := 0; i < groups; i++ {
		grp, err := store.Get(i)
		if err != nil {
			return nil, err
		}
		n := grp.Rows()

		for w := 0; w < windows; w++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			trainLo, testLo, testHi := windowBounds(n, h, testSize, inputSize, w)
			test := grp.Slice(testLo, testHi)
			if test.Rows() != h {
				return nil, fmt.Errorf("group %d, window %d: %w: %d test rows, want %d (series has %d rows)", i, w, ErrShape, test.Rows(), h, n)
			}
			train := grp.Slice(trainLo, testLo)

			var x *ragged.Block
			if grp.Cols() > 1 {
				xb := test.Columns(1)
				x = &xb
			}

			res, err := model.Forecast(ctx, train, h, x)
			if err != nil {
				return nil, fmt.Errorf("model %s, group %d, window %d: %w", model.Name(), i, w, err)
			}
			if len(res) != h {
				return nil, fmt.Errorf("model %s, group %d, window %d: %w: got %d, want %d", model.Name(), i, w, ErrHorizonMismatch, len(res), h)
			}

			base := out.Index(i, w, 0)
			for k := 0; k < h; k++ {
				out.Preds[base+k] = float32(res[k])
				out.Actuals[base+k] = test.At(k, 0)
			}
		}
	}

	return out, nil
}

// windowBounds returns the training start and the test range [testLo, testHi)
// of window w for a series of n rows. Offsets are taken from the series end;
// positions before the series start clamp to zero.
func windowBounds(n, h, testSize, inputSize, w int) (trainLo, testLo, testHi int) {
	cutoff := -testSize + w
	endCutoff := cutoff + h

	testLo = max(n+cutoff, 0)
	if endCutoff == 0 {
		testHi = n
	} else {
		testHi = max(n+endCutoff, 0)
	}

	if inputSize > 0 {
		trainLo = max(testLo-inputSize, 0)
	}
	return trainLo, testLo, testHi
}
