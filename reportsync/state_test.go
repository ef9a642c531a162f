package reportsync

import (
	"context"
	"testing"
)

type memOptionStore struct {
	values map[string]string
}

func newMemOptionStore() *memOptionStore {
	return &memOptionStore{values: map[string]string{}}
}

func (s *memOptionStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *memOptionStore) Set(ctx context.Context, key string, value string) error {
	s.values[key] = value
	return nil
}

func (s *memOptionStore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

func TestDayLimitSentinel(t *testing.T) {
	if Unbounded().Sentinel() != -1 {
		t.Fatalf("unbounded sentinel must be -1")
	}
	if Days(30).Sentinel() != 30 {
		t.Fatalf("bounded sentinel must be the day count")
	}
	if got := DayLimitFromSentinel(-1); got != Unbounded() {
		t.Fatalf("sentinel -1 must decode to unbounded, got %v", got)
	}
	if got := DayLimitFromSentinel(7); got != Days(7) {
		t.Fatalf("sentinel 7 must decode to 7 days, got %v", got)
	}
}

func TestDayLimitCovers(t *testing.T) {
	if !Unbounded().Covers(Days(10000)) {
		t.Fatalf("unbounded covers everything")
	}
	if Days(10000).Covers(Unbounded()) {
		t.Fatalf("no bounded limit covers unbounded")
	}
	if !Days(30).Covers(Days(7)) || Days(7).Covers(Days(30)) {
		t.Fatalf("a longer horizon covers a shorter one, not the reverse")
	}
	if !Days(7).Covers(Days(7)) {
		t.Fatalf("a limit covers itself")
	}
}

func TestWatermarkNeverNarrows(t *testing.T) {
	ctx := context.Background()
	state := NewSyncState(newMemOptionStore())

	if _, ok, _ := state.Watermark(ctx); ok {
		t.Fatalf("fresh state must have no watermark")
	}

	if err := state.AdvanceWatermark(ctx, Days(30)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := state.AdvanceWatermark(ctx, Days(7)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mark, ok, err := state.Watermark(ctx)
	if err != nil || !ok || mark != Days(30) {
		t.Fatalf("watermark narrowed: %v %v %v", mark, ok, err)
	}

	if err := state.AdvanceWatermark(ctx, Unbounded()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := state.AdvanceWatermark(ctx, Days(365)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mark, ok, err = state.Watermark(ctx)
	if err != nil || !ok || mark != Unbounded() {
		t.Fatalf("unbounded watermark lost: %v %v %v", mark, ok, err)
	}
}

func TestImportingFlag(t *testing.T) {
	ctx := context.Background()
	state := NewSyncState(newMemOptionStore())

	if state.IsImporting(ctx) {
		t.Fatalf("fresh state must not be importing")
	}
	if err := state.SetImporting(ctx, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !state.IsImporting(ctx) {
		t.Fatalf("flag not set")
	}
	if err := state.SetImporting(ctx, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.IsImporting(ctx) {
		t.Fatalf("flag not cleared")
	}
}

func TestClearProgress(t *testing.T) {
	ctx := context.Background()
	options := newMemOptionStore()
	state := NewSyncState(options)

	_ = state.SetImportedCount(ctx, "customers", 5)
	_ = state.SetTotalCount(ctx, "customers", 10)
	_ = state.SetImportedCount(ctx, "orders", 2)
	_ = state.SetTotalCount(ctx, "orders", 4)
	_ = state.AdvanceWatermark(ctx, Days(30))
	_ = state.SetImporting(ctx, true)
	_ = state.MarkDrained(ctx, "customers")
	_ = state.MarkDrained(ctx, "orders")

	if err := state.ClearProgress(ctx, "customers", "orders"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(options.values) != 0 {
		t.Fatalf("progress keys left behind: %v", options.values)
	}
}

func TestDrainedFlag(t *testing.T) {
	ctx := context.Background()
	state := NewSyncState(newMemOptionStore())

	if drained, err := state.IsDrained(ctx, "customers"); err != nil || drained {
		t.Fatalf("missing marker must read as not drained: %v %v", drained, err)
	}
	if err := state.MarkDrained(ctx, "customers"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if drained, _ := state.IsDrained(ctx, "customers"); !drained {
		t.Fatalf("marker not recorded")
	}
	if drained, _ := state.IsDrained(ctx, "orders"); drained {
		t.Fatalf("marker must be per sync")
	}
	if err := state.ClearDrained(ctx, "customers"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if drained, _ := state.IsDrained(ctx, "customers"); drained {
		t.Fatalf("marker not cleared")
	}
}

func TestCounterRoundTrip(t *testing.T) {
	ctx := context.Background()
	state := NewSyncState(newMemOptionStore())

	if n, err := state.ImportedCount(ctx, "customers"); err != nil || n != 0 {
		t.Fatalf("missing counter must read as zero: %d %v", n, err)
	}
	if err := state.SetImportedCount(ctx, "customers", 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := state.ImportedCount(ctx, "customers"); n != 42 {
		t.Fatalf("counter round trip broken: %d", n)
	}
}
