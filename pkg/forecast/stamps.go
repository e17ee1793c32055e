package forecast

import "github.com/HatiCode/panelcast/pkg/panel"

// forecastStamps returns h stamps per group following each group's last stamp.
// When every group ends together the run is computed once and tiled.
func (e *Engine) forecastStamps(h int) []panel.Stamp {
	groups := len(e.last)
	out := make([]panel.Stamp, 0, groups*h)

	if e.sharedLast {
		run := make([]panel.Stamp, h)
		for k := range run {
			run[k] = e.last[0].Shift(e.freq, k+1)
		}
		for g := 0; g < groups; g++ {
			out = append(out, run...)
		}
		return out
	}

	for _, last := range e.last {
		for k := 1; k <= h; k++ {
			out = append(out, last.Shift(e.freq, k))
		}
	}
	return out
}

// cvStamps returns the forecast stamps and cutoffs of every (group, window,
// step) row. The test period is the last testSize stamps of each group;
// window w covers test positions w..w+h-1 and its cutoff is the stamp before
// position w.
func (e *Engine) cvStamps(h, testSize int) (ds, cutoffs []panel.Stamp) {
	groups := len(e.last)
	windows := testSize - h + 1
	n := groups * windows * h
	ds = make([]panel.Stamp, 0, n)
	cutoffs = make([]panel.Stamp, 0, n)

	group := func(last panel.Stamp) ([]panel.Stamp, []panel.Stamp) {
		d := make([]panel.Stamp, 0, windows*h)
		c := make([]panel.Stamp, 0, windows*h)
		for w := 0; w < windows; w++ {
			cutoff := last.Shift(e.freq, w-testSize)
			for k := 0; k < h; k++ {
				d = append(d, last.Shift(e.freq, w+k-testSize+1))
				c = append(c, cutoff)
			}
		}
		return d, c
	}

	if e.sharedLast {
		d, c := group(e.last[0])
		for g := 0; g < groups; g++ {
			ds = append(ds, d...)
			cutoffs = append(cutoffs, c...)
		}
		return ds, cutoffs
	}

	for _, last := range e.last {
		d, c := group(last)
		ds = append(ds, d...)
		cutoffs = append(cutoffs, c...)
	}
	return ds, cutoffs
}

func repeatIDs(ids []string, each int) []string {
	out := make([]string, 0, len(ids)*each)
	for _, id := range ids {
		for i := 0; i < each; i++ {
			out = append(out, id)
		}
	}
	return out
}
