package reportsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/insights_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CustomersSync populates customer_lookup from the customers source table.
type CustomersSync struct {
	DB *gorm.DB
}

func NewCustomersSync(db *gorm.DB) *CustomersSync {
	return &CustomersSync{DB: db}
}

func (s *CustomersSync) Name() string {
	return "customers"
}

func (s *CustomersSync) Dependency() string {
	return ""
}

func (s *CustomersSync) CacheContexts() []string {
	return []string{"customers"}
}

func (s *CustomersSync) GetItems(ctx context.Context, limit, page int, days DayLimit, skipExisting bool) ([]int, error) {
	query := "SELECT customers.id FROM customers WHERE 1=1"
	var args []interface{}
	if n, bounded := days.Bounded(); bounded {
		query += " AND customers.date_registered >= ?"
		args = append(args, time.Now().UTC().AddDate(0, 0, -n))
	}
	if skipExisting {
		query += " AND NOT EXISTS (SELECT 1 FROM customer_lookup WHERE customer_lookup.source_customer_id = customers.id)"
	}
	query += " ORDER BY customers.id ASC LIMIT ? OFFSET ?"
	args = append(args, limit, (page-1)*limit)

	var ids []int
	if err := s.DB.WithContext(ctx).Raw(query, args...).Scan(&ids).Error; err != nil {
		return nil, fmt.Errorf("listing customers page %d: %w", page, err)
	}
	return ids, nil
}

func (s *CustomersSync) GetTotal(ctx context.Context, days DayLimit, skipExisting bool) (int64, error) {
	query := "SELECT COUNT(*) FROM customers WHERE 1=1"
	var args []interface{}
	if n, bounded := days.Bounded(); bounded {
		query += " AND customers.date_registered >= ?"
		args = append(args, time.Now().UTC().AddDate(0, 0, -n))
	}
	if skipExisting {
		query += " AND NOT EXISTS (SELECT 1 FROM customer_lookup WHERE customer_lookup.source_customer_id = customers.id)"
	}
	var total int64
	if err := s.DB.WithContext(ctx).Raw(query, args...).Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("counting customers: %w", err)
	}
	return total, nil
}

type customerOrderStats struct {
	OrdersCount int             `json:"orders_count"`
	TotalSpend  decimal.Decimal `json:"total_spend"`
	LastActive  *time.Time      `json:"last_active"`
}

// Import upserts one customer_lookup row. Aggregates are recomputed from
// the orders table rather than incremented, so re-imports stay exact.
func (s *CustomersSync) Import(ctx context.Context, id int) error {
	db := s.DB.WithContext(ctx)

	var customer models.Customer
	if err := db.First(&customer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Source row vanished between enumeration and import.
			return nil
		}
		return fmt.Errorf("loading customer %d: %w", id, err)
	}

	var stats customerOrderStats
	err := db.Raw(`
		SELECT COUNT(*) AS orders_count,
			COALESCE(SUM(net_total), 0) AS total_spend,
			MAX(order_date) AS last_active
		FROM orders
		WHERE customer_id = ? AND status NOT IN ?
	`, customer.ID, statusStrings(models.ExcludedReportOrderStatuses)).Scan(&stats).Error
	if err != nil {
		return fmt.Errorf("aggregating orders for customer %d: %w", id, err)
	}

	row := models.CustomerLookup{
		CustomerId:       customer.ID,
		SourceCustomerId: customer.ID,
		Name:             customer.Name,
		Email:            customer.Email,
		City:             customer.City,
		Country:          customer.Country,
		DateRegistered:   customer.DateRegistered,
		DateLastActive:   stats.LastActive,
		OrdersCount:      stats.OrdersCount,
		TotalSpend:       stats.TotalSpend,
	}
	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("upserting customer lookup %d: %w", id, err)
	}
	return nil
}

func (s *CustomersSync) Delete(ctx context.Context, batchSize int) (int, error) {
	db := s.DB.WithContext(ctx)

	var ids []int
	err := db.Raw("SELECT customer_id FROM customer_lookup ORDER BY customer_id ASC LIMIT ?", batchSize).
		Scan(&ids).Error
	if err != nil {
		return 0, fmt.Errorf("listing customer lookup rows: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := db.Where("customer_id IN ?", ids).Delete(&models.CustomerLookup{}).Error; err != nil {
		return 0, fmt.Errorf("deleting customer lookup rows: %w", err)
	}
	return len(ids), nil
}

func (s *CustomersSync) TotalImported(ctx context.Context) (int64, error) {
	var total int64
	if err := s.DB.WithContext(ctx).Model(&models.CustomerLookup{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("counting customer lookup rows: %w", err)
	}
	return total, nil
}

func statusStrings(statuses []models.OrderStatus) []string {
	out := make([]string, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return out
}
