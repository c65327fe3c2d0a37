package enums

import "fmt"

// OrderStatus is the lifecycle position of an order aggregate.
type OrderStatus string

const (
	OrderStatusPending     OrderStatus = "pending"
	OrderStatusProcessing  OrderStatus = "processing"
	OrderStatusShipped     OrderStatus = "shipped"
	OrderStatusDelivered   OrderStatus = "delivered"
	OrderStatusCancelled   OrderStatus = "cancelled"
	OrderStatusRefunded    OrderStatus = "refunded"
	OrderStatusOnHold      OrderStatus = "on-hold"
	OrderStatusBackordered OrderStatus = "backordered"
	OrderStatusReturned    OrderStatus = "returned"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
	OrderStatusOnHold,
	OrderStatusBackordered,
	OrderStatusReturned,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// In reports whether s is one of the provided statuses.
func (s OrderStatus) In(statuses ...OrderStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
