package orders

import "github.com/angelmondragon/ordercore/pkg/enums"

// transitions lists every legal edge of the order state machine. Statuses
// without an entry are terminal.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:     {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing:  {enums.OrderStatusShipped, enums.OrderStatusOnHold, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:     {enums.OrderStatusDelivered, enums.OrderStatusReturned},
	enums.OrderStatusDelivered:   {enums.OrderStatusReturned, enums.OrderStatusRefunded},
	enums.OrderStatusOnHold:      {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusBackordered: {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
}

// IsValidTransition reports whether an order in current may move to requested.
// Self-transitions are never valid.
func IsValidTransition(current, requested enums.OrderStatus) bool {
	for _, next := range transitions[current] {
		if next == requested {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable from current in table order.
func AllowedTransitions(current enums.OrderStatus) []enums.OrderStatus {
	return append([]enums.OrderStatus(nil), transitions[current]...)
}

// IsCancellable reports whether a requester may still cancel the order.
func IsCancellable(status enums.OrderStatus) bool {
	return status.In(enums.OrderStatusPending, enums.OrderStatusProcessing)
}

// IsSplittable reports whether items may still be moved to a child order.
func IsSplittable(status enums.OrderStatus) bool {
	return status.In(enums.OrderStatusPending, enums.OrderStatusProcessing, enums.OrderStatusOnHold, enums.OrderStatusBackordered)
}
