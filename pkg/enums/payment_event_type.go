package enums

import "fmt"

// PaymentEventType names the asynchronous outcomes sent by the payment collaborator.
type PaymentEventType string

const (
	PaymentEventSucceeded PaymentEventType = "payment.succeeded"
	PaymentEventFailed    PaymentEventType = "payment.failed"
)

// ParsePaymentEventType converts raw input into a PaymentEventType.
func ParsePaymentEventType(value string) (PaymentEventType, error) {
	switch PaymentEventType(value) {
	case PaymentEventSucceeded, PaymentEventFailed:
		return PaymentEventType(value), nil
	}
	return "", fmt.Errorf("invalid payment event type %q", value)
}
