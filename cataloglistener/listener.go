package cataloglistener

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/insights_backend/config"
	"bitbucket.org/mmdatafocus/insights_backend/models/reports"
	"bitbucket.org/mmdatafocus/insights_backend/reportsync"
	"bitbucket.org/mmdatafocus/insights_backend/utils"
	"github.com/sirupsen/logrus"
)

// Reference types carried on catalog mutation events.
const (
	ReferenceTypeProduct  = "product"
	ReferenceTypeCategory = "category"
	ReferenceTypeCustomer = "customer"
	ReferenceTypeOrder    = "order"
	ReferenceTypeOption   = "option"
)

// CatalogEvent is one commerce mutation pushed by the backend. Option
// events carry no reference id; every entity event must.
type CatalogEvent struct {
	ID            int       `json:"id"`
	EventTime     time.Time `json:"event_time"`
	ReferenceId   int       `json:"reference_id"`
	ReferenceType string    `json:"reference_type" validate:"required,oneof=product category customer order option"`
	Action        string    `json:"action" validate:"required"`
	CorrelationId string    `json:"correlation_id"`
}

func (e CatalogEvent) Validate() error {
	if err := utils.ValidateStruct(e); err != nil {
		return err
	}
	if e.ReferenceType != ReferenceTypeOption && e.ReferenceId <= 0 {
		return fmt.Errorf("%s event needs a reference id", e.ReferenceType)
	}
	return nil
}

// Listener reacts to catalog mutations: stock and category changes drop the
// affected caches, customer and order changes queue a one-record import.
type Listener struct {
	Sync   *reportsync.ReportsSync
	Cache  reports.Cache
	Logger *logrus.Logger
}

func NewListener(sync *reportsync.ReportsSync) *Listener {
	return &Listener{
		Sync:   sync,
		Cache:  reports.RedisCache{},
		Logger: config.GetLogger(),
	}
}

func (l *Listener) Handle(ctx context.Context, event CatalogEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("catalog event rejected: %w", err)
	}
	if event.CorrelationId != "" {
		ctx = utils.SetCorrelationIdInContext(ctx, event.CorrelationId)
	}

	switch event.ReferenceType {
	case ReferenceTypeProduct, ReferenceTypeCategory:
		// Stock figures and the category aggregates both read catalog
		// state.
		if err := l.Sync.ClearStockCountCache(ctx); err != nil {
			return fmt.Errorf("clearing stock counts: %w", err)
		}
		l.Cache.Invalidate("categories")
	case ReferenceTypeOption:
		// The low-stock threshold moved; cached low-stock figures are
		// computed against it.
		if err := l.Sync.ClearStockCountCache(ctx); err != nil {
			return fmt.Errorf("clearing stock counts: %w", err)
		}
	case ReferenceTypeCustomer:
		if err := l.Sync.Engine.ScheduleImportSingle(ctx, "customers", event.ReferenceId); err != nil {
			return fmt.Errorf("queueing customer import: %w", err)
		}
	case ReferenceTypeOrder:
		if err := l.Sync.Engine.ScheduleImportSingle(ctx, "orders", event.ReferenceId); err != nil {
			return fmt.Errorf("queueing order import: %w", err)
		}
	}

	l.Logger.WithFields(logrus.Fields{
		"reference_type": event.ReferenceType,
		"reference_id":   event.ReferenceId,
		"action":         event.Action,
	}).Info("catalog event handled")
	return nil
}

// DecodeEvent parses the raw pubsub message payload.
func DecodeEvent(data []byte) (CatalogEvent, error) {
	var event CatalogEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return CatalogEvent{}, fmt.Errorf("decoding catalog event: %w", err)
	}
	return event, nil
}
