package ghost

import (
	"context"
	"errors"
	"math"
	"testing"
)

func splitRef() *Reference {
	return &Reference{
		RunID:          "run-1",
		TotalDistanceM: 2000,
		TotalTimeSec:   22,
		Checkpoints: []Checkpoint{
			{DistanceM: 1000, ElapsedSec: 10},
			{DistanceM: 2000, ElapsedSec: 22},
		},
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestCompareInterpolated(t *testing.T) {
	// 1.5km falls halfway into the 10s→22s split: reference time 16s.
	// Live runner at 20s is 4s behind.
	cmp := Compare(splitRef(), 1500, 20)

	if !near(cmp.RefTimeSec, 16) {
		t.Fatalf("interpolated reference time = %v, want 16", cmp.RefTimeSec)
	}
	if cmp.Status != StatusBehind {
		t.Fatalf("status = %s, want BEHIND", cmp.Status)
	}
	if !near(cmp.TimeDiffSec, 4) {
		t.Fatalf("time diff = %v, want 4", cmp.TimeDiffSec)
	}
	// gap converts via the bracketing segment's speed: 1000m in 12s
	if !near(cmp.GapMeters, 4*1000/12.0) {
		t.Fatalf("gap meters = %v, want %v", cmp.GapMeters, 4*1000/12.0)
	}
}

func TestCompareAhead(t *testing.T) {
	cmp := Compare(splitRef(), 1500, 12)
	if cmp.Status != StatusAhead {
		t.Fatalf("status = %s, want AHEAD", cmp.Status)
	}
	if !near(cmp.TimeDiffSec, -4) {
		t.Fatalf("time diff = %v, want -4", cmp.TimeDiffSec)
	}
	if cmp.GapMeters < 0 {
		t.Fatalf("gap meters must be non-negative, got %v", cmp.GapMeters)
	}
}

func TestCompareEven(t *testing.T) {
	cmp := Compare(splitRef(), 1000, 10)
	if cmp.Status != StatusEven {
		t.Fatalf("status = %s, want EVEN", cmp.Status)
	}
	if cmp.GapMeters != 0 {
		t.Fatalf("even runners have no gap, got %v", cmp.GapMeters)
	}
}

func TestCompareBelowFirstCheckpoint(t *testing.T) {
	// scales linearly from zero up to the first split
	cmp := Compare(splitRef(), 500, 5)
	if !near(cmp.RefTimeSec, 5) {
		t.Fatalf("reference time below first split = %v, want 5", cmp.RefTimeSec)
	}
	if cmp.Status != StatusEven {
		t.Fatalf("status = %s, want EVEN", cmp.Status)
	}
}

func TestCompareBeyondLastCheckpoint(t *testing.T) {
	// reference time clamps to the final recorded split
	cmp := Compare(splitRef(), 3000, 30)
	if !near(cmp.RefTimeSec, 22) {
		t.Fatalf("reference time beyond last split = %v, want 22", cmp.RefTimeSec)
	}
	if cmp.Status != StatusBehind {
		t.Fatalf("status = %s, want BEHIND", cmp.Status)
	}
}

func TestCompareAveragePaceFallback(t *testing.T) {
	ref := &Reference{RunID: "run-2", TotalDistanceM: 5000, TotalTimeSec: 1500}
	cmp := Compare(ref, 2500, 700)
	if !near(cmp.RefTimeSec, 750) {
		t.Fatalf("average-pace reference time = %v, want 750", cmp.RefTimeSec)
	}
	if cmp.Status != StatusAhead {
		t.Fatalf("status = %s, want AHEAD", cmp.Status)
	}
	// average speed 5000/1500 m/s over a 50s lead
	if !near(cmp.GapMeters, 50*5000/1500.0) {
		t.Fatalf("gap meters = %v, want %v", cmp.GapMeters, 50*5000/1500.0)
	}
}

func TestCompareRecordedPacePreferred(t *testing.T) {
	ref := splitRef()
	ref.Checkpoints[1].PaceSecKm = 300 // 5:00/km → 1000/300 m/s
	cmp := Compare(ref, 1500, 20)
	if !near(cmp.GapMeters, 4*1000/300.0) {
		t.Fatalf("gap meters = %v, want %v", cmp.GapMeters, 4*1000/300.0)
	}
}

func TestCacheLazyLoadAndEvict(t *testing.T) {
	loads := 0
	cache := NewCache(LoaderFunc(func(_ context.Context, runID string) (*Reference, error) {
		loads++
		return &Reference{RunID: runID, TotalDistanceM: 1000, TotalTimeSec: 300}, nil
	}))

	ctx := context.Background()
	ref, err := cache.Get(ctx, "battle-1", "run-9")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ref == nil || ref.RunID != "run-9" {
		t.Fatalf("unexpected reference: %+v", ref)
	}

	// second hit for the same session serves from cache
	if _, err := cache.Get(ctx, "battle-1", "run-9"); err != nil {
		t.Fatalf("Get cached: %v", err)
	}
	if loads != 1 {
		t.Fatalf("expected 1 load, got %d", loads)
	}

	cache.Evict("battle-1")
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache after evict, got %d", cache.Len())
	}
	if _, err := cache.Get(ctx, "battle-1", "run-9"); err != nil {
		t.Fatalf("Get after evict: %v", err)
	}
	if loads != 2 {
		t.Fatalf("expected reload after evict, got %d loads", loads)
	}
}

func TestCacheLoaderError(t *testing.T) {
	wantErr := errors.New("record gone")
	cache := NewCache(LoaderFunc(func(context.Context, string) (*Reference, error) {
		return nil, wantErr
	}))
	if _, err := cache.Get(context.Background(), "battle-1", "run-9"); !errors.Is(err, wantErr) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("failed load must not populate the cache")
	}
}
