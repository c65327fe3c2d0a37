package enums

import "fmt"

// ReturnStatus tracks a return request as a whole.
type ReturnStatus string

const (
	ReturnStatusRequested  ReturnStatus = "requested"
	ReturnStatusApproved   ReturnStatus = "approved"
	ReturnStatusRejected   ReturnStatus = "rejected"
	ReturnStatusProcessing ReturnStatus = "processing"
	ReturnStatusCompleted  ReturnStatus = "completed"
)

var validReturnStatuses = []ReturnStatus{
	ReturnStatusRequested,
	ReturnStatusApproved,
	ReturnStatusRejected,
	ReturnStatusProcessing,
	ReturnStatusCompleted,
}

// String implements fmt.Stringer.
func (r ReturnStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReturnStatus.
func (r ReturnStatus) IsValid() bool {
	for _, candidate := range validReturnStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReturnStatus converts raw input into a ReturnStatus.
func ParseReturnStatus(value string) (ReturnStatus, error) {
	for _, candidate := range validReturnStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return status %q", value)
}

// ReturnItemStatus tracks a single line inside a return request.
type ReturnItemStatus string

const (
	ReturnItemStatusPending  ReturnItemStatus = "pending"
	ReturnItemStatusApproved ReturnItemStatus = "approved"
	ReturnItemStatusRejected ReturnItemStatus = "rejected"
	ReturnItemStatusReceived ReturnItemStatus = "received"
	ReturnItemStatusRefunded ReturnItemStatus = "refunded"
)

var validReturnItemStatuses = []ReturnItemStatus{
	ReturnItemStatusPending,
	ReturnItemStatusApproved,
	ReturnItemStatusRejected,
	ReturnItemStatusReceived,
	ReturnItemStatusRefunded,
}

// String implements fmt.Stringer.
func (r ReturnItemStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReturnItemStatus.
func (r ReturnItemStatus) IsValid() bool {
	for _, candidate := range validReturnItemStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsActive reports whether the item still counts against the order line.
func (r ReturnItemStatus) IsActive() bool {
	return r != ReturnItemStatusRejected
}
