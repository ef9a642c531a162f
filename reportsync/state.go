package reportsync

import (
	"context"
	"fmt"
	"strconv"

	"bitbucket.org/mmdatafocus/insights_backend/config"
)

// DayLimit bounds how far back a sync reaches. The zero value is unbounded;
// the stored sentinel for unbounded is -1.
type DayLimit struct {
	days    int
	bounded bool
}

func Days(n int) DayLimit {
	if n < 0 {
		return Unbounded()
	}
	return DayLimit{days: n, bounded: true}
}

func Unbounded() DayLimit {
	return DayLimit{}
}

// Bounded returns the day count and whether the limit is bounded at all.
func (d DayLimit) Bounded() (int, bool) {
	return d.days, d.bounded
}

// Sentinel encodes the limit for storage: the day count, or -1 when
// unbounded.
func (d DayLimit) Sentinel() int {
	if !d.bounded {
		return -1
	}
	return d.days
}

func DayLimitFromSentinel(n int) DayLimit {
	if n < 0 {
		return Unbounded()
	}
	return Days(n)
}

// Covers reports whether this limit reaches at least as far back as other.
func (d DayLimit) Covers(other DayLimit) bool {
	if !d.bounded {
		return true
	}
	if !other.bounded {
		return false
	}
	return d.days >= other.days
}

func (d DayLimit) String() string {
	if !d.bounded {
		return "unbounded"
	}
	return strconv.Itoa(d.days) + "d"
}

// OptionStore is the key-value settings store behind import progress. The
// production store is redis; tests use an in-memory map.
type OptionStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisOptionStore keeps options in the shared redis client, unexpiring.
type RedisOptionStore struct{}

func (RedisOptionStore) Get(ctx context.Context, key string) (string, bool, error) {
	return config.GetRedisValue(key)
}

func (RedisOptionStore) Set(ctx context.Context, key string, value string) error {
	return config.SetRedisValue(key, value, 0)
}

func (RedisOptionStore) Delete(ctx context.Context, keys ...string) error {
	return config.RemoveRedisKey(keys...)
}

const (
	importOptionPrefix = "ReportImport:"
	watermarkKey       = importOptionPrefix + "imported_from"
	importingKey       = importOptionPrefix + "importing"
)

func countKey(syncName string) string {
	return importOptionPrefix + syncName + ":count"
}

func totalKey(syncName string) string {
	return importOptionPrefix + syncName + ":total"
}

func drainedKey(syncName string) string {
	return importOptionPrefix + syncName + ":drained"
}

// SyncState is the single handle every progress read and write goes
// through: per-sync imported/total counters, the import watermark and the
// importing flag.
type SyncState struct {
	Options OptionStore
}

func NewSyncState(options OptionStore) *SyncState {
	return &SyncState{Options: options}
}

func (s *SyncState) getInt(ctx context.Context, key string) (int64, error) {
	v, ok, err := s.Options.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", key, err)
	}
	return n, nil
}

func (s *SyncState) ImportedCount(ctx context.Context, syncName string) (int64, error) {
	return s.getInt(ctx, countKey(syncName))
}

func (s *SyncState) SetImportedCount(ctx context.Context, syncName string, n int64) error {
	return s.Options.Set(ctx, countKey(syncName), strconv.FormatInt(n, 10))
}

func (s *SyncState) TotalCount(ctx context.Context, syncName string) (int64, error) {
	return s.getInt(ctx, totalKey(syncName))
}

func (s *SyncState) SetTotalCount(ctx context.Context, syncName string, n int64) error {
	return s.Options.Set(ctx, totalKey(syncName), strconv.FormatInt(n, 10))
}

// MarkDrained records that the named sync has seen its terminating short
// page. Import completion is defined by this signal, not by the progress
// counters: a source row can legitimately import to zero lookup rows.
func (s *SyncState) MarkDrained(ctx context.Context, syncName string) error {
	return s.Options.Set(ctx, drainedKey(syncName), "1")
}

func (s *SyncState) IsDrained(ctx context.Context, syncName string) (bool, error) {
	v, ok, err := s.Options.Get(ctx, drainedKey(syncName))
	if err != nil {
		return false, err
	}
	return ok && v == "1", nil
}

func (s *SyncState) ClearDrained(ctx context.Context, syncName string) error {
	return s.Options.Delete(ctx, drainedKey(syncName))
}

// Watermark returns the recorded import horizon, and whether one is
// recorded at all.
func (s *SyncState) Watermark(ctx context.Context) (DayLimit, bool, error) {
	v, ok, err := s.Options.Get(ctx, watermarkKey)
	if err != nil || !ok {
		return DayLimit{}, false, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return DayLimit{}, false, fmt.Errorf("reading %s: %w", watermarkKey, err)
	}
	return DayLimitFromSentinel(n), true, nil
}

// AdvanceWatermark widens the recorded horizon to cover the new limit; the
// watermark never narrows, so a partial re-import cannot hide data already
// synced further back.
func (s *SyncState) AdvanceWatermark(ctx context.Context, days DayLimit) error {
	current, ok, err := s.Watermark(ctx)
	if err != nil {
		return err
	}
	if ok && current.Covers(days) {
		days = current
	}
	return s.Options.Set(ctx, watermarkKey, strconv.Itoa(days.Sentinel()))
}

func (s *SyncState) IsImporting(ctx context.Context) bool {
	v, ok, err := s.Options.Get(ctx, importingKey)
	return err == nil && ok && v == "1"
}

func (s *SyncState) SetImporting(ctx context.Context, importing bool) error {
	if !importing {
		return s.Options.Delete(ctx, importingKey)
	}
	return s.Options.Set(ctx, importingKey, "1")
}

// ClearProgress removes every progress key of the named syncs plus the
// watermark and the importing flag.
func (s *SyncState) ClearProgress(ctx context.Context, syncNames ...string) error {
	keys := []string{watermarkKey, importingKey}
	for _, name := range syncNames {
		keys = append(keys, countKey(name), totalKey(name), drainedKey(name))
	}
	return s.Options.Delete(ctx, keys...)
}
