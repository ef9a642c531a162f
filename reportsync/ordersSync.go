package reportsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/insights_backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrdersSync populates order_product_lookup, one row per order item.
// Depends on the customers sync so customer rows exist before order
// aggregates start referencing them.
type OrdersSync struct {
	DB *gorm.DB
}

func NewOrdersSync(db *gorm.DB) *OrdersSync {
	return &OrdersSync{DB: db}
}

func (s *OrdersSync) Name() string {
	return "orders"
}

func (s *OrdersSync) Dependency() string {
	return "customers"
}

func (s *OrdersSync) CacheContexts() []string {
	return []string{"categories", "customers"}
}

func (s *OrdersSync) GetItems(ctx context.Context, limit, page int, days DayLimit, skipExisting bool) ([]int, error) {
	query := "SELECT orders.id FROM orders WHERE 1=1"
	var args []interface{}
	if n, bounded := days.Bounded(); bounded {
		query += " AND orders.order_date >= ?"
		args = append(args, time.Now().UTC().AddDate(0, 0, -n))
	}
	if skipExisting {
		query += " AND NOT EXISTS (SELECT 1 FROM order_product_lookup WHERE order_product_lookup.order_id = orders.id)"
	}
	query += " ORDER BY orders.id ASC LIMIT ? OFFSET ?"
	args = append(args, limit, (page-1)*limit)

	var ids []int
	if err := s.DB.WithContext(ctx).Raw(query, args...).Scan(&ids).Error; err != nil {
		return nil, fmt.Errorf("listing orders page %d: %w", page, err)
	}
	return ids, nil
}

func (s *OrdersSync) GetTotal(ctx context.Context, days DayLimit, skipExisting bool) (int64, error) {
	query := "SELECT COUNT(*) FROM orders WHERE 1=1"
	var args []interface{}
	if n, bounded := days.Bounded(); bounded {
		query += " AND orders.order_date >= ?"
		args = append(args, time.Now().UTC().AddDate(0, 0, -n))
	}
	if skipExisting {
		query += " AND NOT EXISTS (SELECT 1 FROM order_product_lookup WHERE order_product_lookup.order_id = orders.id)"
	}
	var total int64
	if err := s.DB.WithContext(ctx).Raw(query, args...).Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("counting orders: %w", err)
	}
	return total, nil
}

// Import upserts one lookup row per order item and refreshes the owning
// customer's aggregates. Keyed by order_item_id, so re-imports overwrite
// instead of duplicating.
func (s *OrdersSync) Import(ctx context.Context, id int) error {
	db := s.DB.WithContext(ctx)

	var order models.Order
	if err := db.Preload("OrderItems").First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("loading order %d: %w", id, err)
	}

	for _, item := range order.OrderItems {
		row := models.OrderProductLookup{
			OrderItemId:       item.ID,
			OrderId:           order.ID,
			ProductId:         item.ProductId,
			CustomerId:        order.CustomerId,
			OrderDate:         order.OrderDate,
			ProductQty:        item.Quantity,
			ProductNetRevenue: item.NetRevenue,
			OrderStatus:       order.Status,
		}
		if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("upserting lookup row for order item %d: %w", item.ID, err)
		}
	}

	return s.refreshCustomerAggregates(ctx, order.CustomerId)
}

// refreshCustomerAggregates recomputes the customer's order figures from
// source, touching only a lookup row that already exists.
func (s *OrdersSync) refreshCustomerAggregates(ctx context.Context, customerId int) error {
	err := s.DB.WithContext(ctx).Exec(`
		UPDATE customer_lookup SET
			orders_count = (
				SELECT COUNT(*) FROM orders
				WHERE orders.customer_id = customer_lookup.source_customer_id AND orders.status NOT IN ?
			),
			total_spend = (
				SELECT COALESCE(SUM(net_total), 0) FROM orders
				WHERE orders.customer_id = customer_lookup.source_customer_id AND orders.status NOT IN ?
			),
			date_last_active = (
				SELECT MAX(order_date) FROM orders
				WHERE orders.customer_id = customer_lookup.source_customer_id
			)
		WHERE customer_lookup.source_customer_id = ?
	`, statusStrings(models.ExcludedReportOrderStatuses), statusStrings(models.ExcludedReportOrderStatuses), customerId).Error
	if err != nil {
		return fmt.Errorf("refreshing aggregates for customer %d: %w", customerId, err)
	}
	return nil
}

func (s *OrdersSync) Delete(ctx context.Context, batchSize int) (int, error) {
	db := s.DB.WithContext(ctx)

	var ids []int
	err := db.Raw("SELECT DISTINCT order_id FROM order_product_lookup ORDER BY order_id ASC LIMIT ?", batchSize).
		Scan(&ids).Error
	if err != nil {
		return 0, fmt.Errorf("listing imported orders: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := db.Where("order_id IN ?", ids).Delete(&models.OrderProductLookup{}).Error; err != nil {
		return 0, fmt.Errorf("deleting lookup rows: %w", err)
	}
	return len(ids), nil
}

func (s *OrdersSync) TotalImported(ctx context.Context) (int64, error) {
	var total int64
	err := s.DB.WithContext(ctx).
		Raw("SELECT COUNT(DISTINCT order_id) FROM order_product_lookup").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("counting imported orders: %w", err)
	}
	return total, nil
}
