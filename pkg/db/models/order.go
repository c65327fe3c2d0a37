package models

import (
	"time"

	"github.com/angelmondragon/ordercore/pkg/enums"
	"github.com/angelmondragon/ordercore/pkg/types"
	"github.com/google/uuid"
)

// Order is the aggregate root. Sub-collections are stored as JSON documents so
// the whole aggregate is read and written as a single row.
type Order struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber       string              `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	UserID            *uuid.UUID          `gorm:"column:user_id;type:uuid;index:idx_orders_user_id"`
	GuestEmail        *string             `gorm:"column:guest_email;index:idx_orders_guest_email"`
	Items             []LineItem          `gorm:"column:items;type:jsonb;serializer:json;not null"`
	SubtotalCents     int64               `gorm:"column:subtotal_cents;not null"`
	TaxCents          int64               `gorm:"column:tax_cents;not null"`
	ShippingFeeCents  int64               `gorm:"column:shipping_fee_cents;not null"`
	DiscountCents     int64               `gorm:"column:discount_cents;not null"`
	TotalCents        int64               `gorm:"column:total_cents;not null"`
	RefundedCents     int64               `gorm:"column:refunded_cents;not null"`
	Status            enums.OrderStatus   `gorm:"column:status;type:text;not null;index:idx_orders_status"`
	PaymentStatus     enums.PaymentStatus `gorm:"column:payment_status;type:text;not null"`
	StatusHistory     []StatusChange      `gorm:"column:status_history;type:jsonb;serializer:json;not null"`
	Returns           []ReturnRequest     `gorm:"column:returns;type:jsonb;serializer:json;not null"`
	Refunds           []Refund            `gorm:"column:refunds;type:jsonb;serializer:json;not null"`
	ParentOrderID     *uuid.UUID          `gorm:"column:parent_order_id;type:uuid;index:idx_orders_parent_order_id"`
	ShippingAddress   types.Address       `gorm:"column:shipping_address;type:jsonb;serializer:json;not null"`
	TrackingNumber    *string             `gorm:"column:tracking_number"`
	Notes             *string             `gorm:"column:notes"`
	InventoryReserved bool                `gorm:"column:inventory_reserved;not null"`
	DeliveredAt       *time.Time          `gorm:"column:delivered_at"`
	Version           int64               `gorm:"column:version;not null"`
	CreatedAt         time.Time           `gorm:"column:created_at;index:idx_orders_created_at"`
	UpdatedAt         time.Time           `gorm:"column:updated_at"`
}

// LineItem snapshots the product at purchase time.
type LineItem struct {
	ID             uuid.UUID `json:"id"`
	ProductID      uuid.UUID `json:"productId"`
	Name           string    `json:"name"`
	SKU            string    `json:"sku,omitempty"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	Variant        string    `json:"variant,omitempty"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unitPriceCents"`
	TaxCents       int64     `json:"taxCents"`
	DiscountCents  int64     `json:"discountCents"`
	LineTotalCents int64     `json:"lineTotalCents"`
	Backordered    bool      `json:"backordered,omitempty"`
}

// StatusChange is one append-only entry of the order's status history.
type StatusChange struct {
	Status    enums.OrderStatus `json:"status"`
	ChangedBy string            `json:"changedBy"`
	Note      string            `json:"note,omitempty"`
	At        time.Time         `json:"at"`
}

// ReturnRequest is embedded in the order; ID is unique across all orders.
type ReturnRequest struct {
	ID             string             `json:"id"`
	Status         enums.ReturnStatus `json:"status"`
	Reason         string             `json:"reason"`
	RequestedBy    string             `json:"requestedBy"`
	RequestedAt    time.Time          `json:"requestedAt"`
	ReturnDeadline time.Time          `json:"returnDeadline"`
	ProcessedBy    *string            `json:"processedBy,omitempty"`
	ProcessedAt    *time.Time         `json:"processedAt,omitempty"`
	Notes          []string           `json:"notes,omitempty"`
	Items          []ReturnItem       `json:"items"`
}

// ReturnItem references an order line by id.
type ReturnItem struct {
	OrderItemID    uuid.UUID              `json:"orderItemId"`
	Quantity       int                    `json:"quantity"`
	UnitPriceCents int64                  `json:"unitPriceCents"`
	Reason         string                 `json:"reason,omitempty"`
	Status         enums.ReturnItemStatus `json:"status"`
	ProcessedAt    *time.Time             `json:"processedAt,omitempty"`
}

// Refund records an outcome only; money movement happens elsewhere.
type Refund struct {
	ID          string             `json:"id"`
	AmountCents int64              `json:"amountCents"`
	Reason      string             `json:"reason"`
	Method      enums.RefundMethod `json:"method"`
	ProcessedBy string             `json:"processedBy"`
	ProcessedAt time.Time          `json:"processedAt"`
}
