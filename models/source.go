package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source tables are owned by the commerce backend; this service only reads
// them when (re)building lookup tables.

type Order struct {
	ID          int             `gorm:"primary_key" json:"id"`
	CustomerId  int             `gorm:"index;not null" json:"customer_id"`
	Status      OrderStatus     `gorm:"size:32;index;not null" json:"status"`
	OrderDate   time.Time       `gorm:"index;not null" json:"order_date"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	TaxAmount   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"tax_amount"`
	NetTotal    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"net_total"`
	OrderItems  []OrderItem     `gorm:"foreignKey:OrderId" json:"order_items"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type OrderItem struct {
	ID         int             `gorm:"primary_key" json:"id"`
	OrderId    int             `gorm:"index;not null" json:"order_id"`
	ProductId  int             `gorm:"index;not null" json:"product_id"`
	Quantity   int             `gorm:"not null;default:0" json:"quantity"`
	NetRevenue decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"net_revenue"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type Customer struct {
	ID             int       `gorm:"primary_key" json:"id"`
	Name           string    `gorm:"size:255" json:"name"`
	Email          string    `gorm:"size:255;index" json:"email"`
	City           string    `gorm:"size:255" json:"city"`
	Country        string    `gorm:"size:64" json:"country"`
	DateRegistered time.Time `gorm:"index;not null" json:"date_registered"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Product struct {
	ID            int         `gorm:"primary_key" json:"id"`
	Name          string      `gorm:"size:255" json:"name"`
	Sku           string      `gorm:"size:128;index" json:"sku"`
	StockStatus   StockStatus `gorm:"size:32;index" json:"stock_status"`
	StockQuantity int         `gorm:"default:0" json:"stock_quantity"`
	CreatedAt     time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProductCategoryRelationship assigns a product to a category; a product can
// belong to any number of categories.
type ProductCategoryRelationship struct {
	ID         int `gorm:"primary_key" json:"id"`
	ProductId  int `gorm:"index;not null;index:idx_pcr_product_category,priority:1" json:"product_id"`
	CategoryId int `gorm:"index;not null;index:idx_pcr_product_category,priority:2" json:"category_id"`
}

func (ProductCategoryRelationship) TableName() string {
	return "product_category_relationships"
}

type ProductCategory struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:255" json:"name"`
	ParentId  *int      `gorm:"index" json:"parent_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
