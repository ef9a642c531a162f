package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lookup tables are the denormalized report tables owned by this service.
// Rows are upserted by source id, so imports are safe to repeat.

type OrderProductLookup struct {
	OrderItemId       int             `gorm:"primary_key;autoIncrement:false" json:"order_item_id"`
	OrderId           int             `gorm:"index;not null;index:idx_opl_date_order,priority:2" json:"order_id"`
	ProductId         int             `gorm:"index;not null" json:"product_id"`
	CustomerId        int             `gorm:"index;not null" json:"customer_id"`
	OrderDate         time.Time       `gorm:"index;not null;index:idx_opl_date_order,priority:1" json:"order_date"`
	ProductQty        int             `gorm:"not null;default:0" json:"product_qty"`
	ProductNetRevenue decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"product_net_revenue"`
	OrderStatus       OrderStatus     `gorm:"size:32;index" json:"order_status"`
}

func (OrderProductLookup) TableName() string {
	return "order_product_lookup"
}

type CustomerLookup struct {
	CustomerId       int             `gorm:"primary_key;autoIncrement:false" json:"customer_id"`
	SourceCustomerId int             `gorm:"uniqueIndex;not null" json:"source_customer_id"`
	Name             string          `gorm:"size:255" json:"name"`
	Email            string          `gorm:"size:255;index" json:"email"`
	City             string          `gorm:"size:255" json:"city"`
	Country          string          `gorm:"size:64" json:"country"`
	DateRegistered   time.Time       `gorm:"index" json:"date_registered"`
	DateLastActive   *time.Time      `gorm:"index" json:"date_last_active"`
	OrdersCount      int             `gorm:"not null;default:0" json:"orders_count"`
	TotalSpend       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_spend"`
}

func (CustomerLookup) TableName() string {
	return "customer_lookup"
}

// CategoryLookup flattens the category tree: one row per (ancestor, node)
// pair so a single join resolves every tree membership.
type CategoryLookup struct {
	ID             int    `gorm:"primary_key" json:"id"`
	CategoryId     int    `gorm:"index;not null" json:"category_id"`
	CategoryTreeId int    `gorm:"index;not null" json:"category_tree_id"`
	ParentId       *int   `gorm:"index" json:"parent_id"`
	Name           string `gorm:"size:255" json:"name"`
}

func (CategoryLookup) TableName() string {
	return "category_lookup"
}
