package payloads

import (
	"github.com/angelmondragon/ordercore/pkg/enums"
	"github.com/google/uuid"
)

// OrderCreatedEvent announces a newly placed order, including split children.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID         `json:"order_id"`
	OrderNumber   string            `json:"order_number"`
	UserID        *uuid.UUID        `json:"user_id,omitempty"`
	GuestEmail    *string           `json:"guest_email,omitempty"`
	ParentOrderID *uuid.UUID        `json:"parent_order_id,omitempty"`
	Status        enums.OrderStatus `json:"status"`
	TotalCents    int64             `json:"total_cents"`
	ItemCount     int               `json:"item_count"`
}

// OrderStatusChangedEvent is emitted for every accepted transition.
type OrderStatusChangedEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	OrderNumber    string            `json:"order_number"`
	PreviousStatus enums.OrderStatus `json:"previous_status"`
	Status         enums.OrderStatus `json:"status"`
	ChangedBy      string            `json:"changed_by"`
	Note           string            `json:"note,omitempty"`
	TrackingNumber *string           `json:"tracking_number,omitempty"`
}

// OrderPaymentUpdatedEvent mirrors a payment outcome onto the order.
type OrderPaymentUpdatedEvent struct {
	OrderID        uuid.UUID           `json:"order_id"`
	PaymentStatus  enums.PaymentStatus `json:"payment_status"`
	PaymentEventID string              `json:"payment_event_id,omitempty"`
}

// OrderSplitEvent links a parent order to the child created from its items.
type OrderSplitEvent struct {
	ParentOrderID    uuid.UUID   `json:"parent_order_id"`
	ChildOrderID     uuid.UUID   `json:"child_order_id"`
	ChildOrderNumber string      `json:"child_order_number"`
	MovedItemIDs     []uuid.UUID `json:"moved_item_ids"`
}

// ReturnRequestedEvent is emitted when a customer opens a return.
type ReturnRequestedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	ReturnID  string    `json:"return_id"`
	Reason    string    `json:"reason"`
	ItemCount int       `json:"item_count"`
}

// ReturnStatusChangedEvent is emitted when an operator moves a return forward.
type ReturnStatusChangedEvent struct {
	OrderID     uuid.UUID          `json:"order_id"`
	ReturnID    string             `json:"return_id"`
	Status      enums.ReturnStatus `json:"status"`
	ProcessedBy string             `json:"processed_by"`
}

// RefundRecordedEvent is emitted after a refund outcome is recorded.
type RefundRecordedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	RefundID      string              `json:"refund_id"`
	AmountCents   int64               `json:"amount_cents"`
	RefundedCents int64               `json:"refunded_cents"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	Method        enums.RefundMethod  `json:"method"`
}
