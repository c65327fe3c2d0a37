package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the catalog entry an order line snapshots.
type Product struct {
	ID         uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	SKU        string         `gorm:"column:sku;not null;uniqueIndex:ux_products_sku"`
	Name       string         `gorm:"column:name;not null"`
	ImageURL   *string        `gorm:"column:image_url"`
	Variant    *string        `gorm:"column:variant"`
	PriceCents int64          `gorm:"column:price_cents;not null"`
	TaxRateBps int            `gorm:"column:tax_rate_bps;not null"`
	IsActive   bool           `gorm:"column:is_active;not null"`
	Inventory  *InventoryItem `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
