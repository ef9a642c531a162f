package cataloglistener

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/insights_backend/config"
	"bitbucket.org/mmdatafocus/insights_backend/models/reports"
	"bitbucket.org/mmdatafocus/insights_backend/reportsync"
)

type fakeOptions struct {
	values map[string]string
}

func (s *fakeOptions) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *fakeOptions) Set(ctx context.Context, key string, value string) error {
	s.values[key] = value
	return nil
}

func (s *fakeOptions) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

type scheduledCall struct {
	action string
	group  string
}

type fakeScheduler struct {
	calls []scheduledCall
}

func (s *fakeScheduler) ScheduleNow(ctx context.Context, actionName string, payload interface{}, groupTag string) error {
	s.calls = append(s.calls, scheduledCall{action: actionName, group: groupTag})
	return nil
}

func (s *fakeScheduler) ScheduleAfter(ctx context.Context, actionName string, payload interface{}, groupTag string, dependsOnAction string) error {
	s.calls = append(s.calls, scheduledCall{action: actionName, group: groupTag})
	return nil
}

func (s *fakeScheduler) CancelByGroup(ctx context.Context, groupTag string) (int64, error) {
	return 0, nil
}

func (s *fakeScheduler) CancelByActionSet(ctx context.Context, actionNames []string, groupTag string) (int64, error) {
	return 0, nil
}

type stubWorker struct {
	name string
}

func (w *stubWorker) Name() string { return w.name }

func (w *stubWorker) Dependency() string { return "" }

func (w *stubWorker) CacheContexts() []string { return []string{w.name} }
func (w *stubWorker) GetItems(ctx context.Context, limit, page int, days reportsync.DayLimit, skipExisting bool) ([]int, error) {
	return nil, nil
}
func (w *stubWorker) GetTotal(ctx context.Context, days reportsync.DayLimit, skipExisting bool) (int64, error) {
	return 0, nil
}
func (w *stubWorker) Import(ctx context.Context, id int) error { return nil }

func (w *stubWorker) Delete(ctx context.Context, batchSize int) (int, error) { return 0, nil }

func (w *stubWorker) TotalImported(ctx context.Context) (int64, error) { return 0, nil }

type countingCache struct {
	invalidated map[string]int
}

func (c *countingCache) Get(key string) (*reports.ReportResult, bool)          { return nil, false }
func (c *countingCache) Set(contextTag, key string, data *reports.ReportResult) {}
func (c *countingCache) Invalidate(contextTag string) {
	c.invalidated[contextTag]++
}

func newTestListener() (*Listener, *fakeOptions, *fakeScheduler, *countingCache) {
	options := &fakeOptions{values: map[string]string{}}
	scheduler := &fakeScheduler{}
	cache := &countingCache{invalidated: map[string]int{}}
	engine := &reportsync.Engine{
		Workers:   []reportsync.Worker{&stubWorker{name: "customers"}, &stubWorker{name: "orders"}},
		Scheduler: scheduler,
		State:     reportsync.NewSyncState(options),
		Cache:     cache,
		Logger:    config.GetLogger(),
	}
	sync := &reportsync.ReportsSync{Engine: engine, Logger: config.GetLogger()}
	listener := &Listener{Sync: sync, Cache: cache, Logger: config.GetLogger()}
	return listener, options, scheduler, cache
}

func TestProductEventClearsStockCountsAndCategories(t *testing.T) {
	listener, options, _, cache := newTestListener()
	for _, key := range reports.StockCountCacheKeys() {
		options.values[key] = "5"
	}

	err := listener.Handle(context.Background(), CatalogEvent{
		ReferenceId:   12,
		ReferenceType: ReferenceTypeProduct,
		Action:        "updated",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, key := range reports.StockCountCacheKeys() {
		if _, ok := options.values[key]; ok {
			t.Fatalf("stock count key %s not cleared", key)
		}
	}
	if cache.invalidated["categories"] != 1 {
		t.Fatalf("categories cache not invalidated")
	}
}

func TestOptionEventNeedsNoReferenceId(t *testing.T) {
	listener, options, _, _ := newTestListener()
	options.values[reports.LowStockCountCacheKey] = "3"

	err := listener.Handle(context.Background(), CatalogEvent{
		ReferenceType: ReferenceTypeOption,
		Action:        "updated",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := options.values[reports.LowStockCountCacheKey]; ok {
		t.Fatalf("low stock count not cleared")
	}
}

func TestCustomerEventQueuesSingleImport(t *testing.T) {
	listener, _, scheduler, _ := newTestListener()

	err := listener.Handle(context.Background(), CatalogEvent{
		ReferenceId:   44,
		ReferenceType: ReferenceTypeCustomer,
		Action:        "created",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scheduler.calls) != 1 {
		t.Fatalf("expected 1 scheduled action, got %v", scheduler.calls)
	}
	call := scheduler.calls[0]
	if call.action != "customers_import_single" || call.group != reportsync.ImportGroupTag {
		t.Fatalf("unexpected scheduling: %+v", call)
	}
}

func TestEntityEventWithoutIdRejected(t *testing.T) {
	listener, _, scheduler, _ := newTestListener()

	err := listener.Handle(context.Background(), CatalogEvent{
		ReferenceType: ReferenceTypeOrder,
		Action:        "created",
	})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if len(scheduler.calls) != 0 {
		t.Fatalf("rejected event must not schedule anything")
	}
}

func TestUnknownReferenceTypeRejected(t *testing.T) {
	listener, _, _, _ := newTestListener()

	err := listener.Handle(context.Background(), CatalogEvent{
		ReferenceId:   1,
		ReferenceType: "warehouse",
		Action:        "created",
	})
	if err == nil {
		t.Fatalf("expected validation error for unknown reference type")
	}
}

func TestDecodeEvent(t *testing.T) {
	event, err := DecodeEvent([]byte(`{"reference_id":7,"reference_type":"order","action":"updated"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.ReferenceId != 7 || event.ReferenceType != ReferenceTypeOrder {
		t.Fatalf("decoded wrong: %+v", event)
	}
	if _, err := DecodeEvent([]byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}
