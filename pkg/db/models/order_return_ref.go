package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderReturnRef resolves a return id to the order that embeds it.
type OrderReturnRef struct {
	ReturnID  string    `gorm:"column:return_id;primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;index:idx_order_return_refs_order_id"`
	CreatedAt time.Time `gorm:"column:created_at"`
}
