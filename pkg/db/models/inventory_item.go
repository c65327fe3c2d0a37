package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem tracks available and sold counts per product. Untracked
// products never have their counts touched.
type InventoryItem struct {
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null"`
	SoldQty      int       `gorm:"column:sold_qty;not null"`
	Tracked      bool      `gorm:"column:tracked;not null"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
