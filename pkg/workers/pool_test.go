package workers

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func TestMap_PreservesOrder(t *testing.T) {
	tasks := []int{5, 1, 4, 2, 3}

	for _, n := range []int{0, 1, 2, 5, 10} {
		got, err := Map(context.Background(), n, tasks, func(ctx context.Context, v int) (int, error) {
			time.Sleep(time.Duration(v) * time.Millisecond)
			return v * 10, nil
		})
		if err != nil {
			t.Fatalf("Map(n=%d) error = %v", n, err)
		}
		if want := []int{50, 10, 40, 20, 30}; !reflect.DeepEqual(got, want) {
			t.Errorf("Map(n=%d) = %v, want %v", n, got, want)
		}
	}
}

func TestMap_Limit(t *testing.T) {
	var running, peak atomic.Int32
	tasks := make([]int, 12)

	_, err := Map(context.Background(), 3, tasks, func(ctx context.Context, _ int) (struct{}, error) {
		cur := running.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if peak.Load() > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak.Load())
	}
}

func TestMap_FirstErrorWins(t *testing.T) {
	boom := errors.New("boom")

	got, err := Map(context.Background(), 2, []int{1, 2, 3}, func(ctx context.Context, v int) (int, error) {
		if v == 2 {
			return 0, boom
		}
		return v, nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Map() error = %v, want boom", err)
	}
	if got != nil {
		t.Errorf("Map() returned partial results %v", got)
	}
}

func TestMap_Empty(t *testing.T) {
	got, err := Map(context.Background(), 4, nil, func(ctx context.Context, v int) (int, error) {
		return v, nil
	})
	if err != nil || len(got) != 0 {
		t.Errorf("Map(nil) = %v, %v", got, err)
	}
}
