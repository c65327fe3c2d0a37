package enums

import "fmt"

// RefundMethod describes how a recorded refund reached the customer.
type RefundMethod string

const (
	RefundMethodOriginalPayment RefundMethod = "original_payment"
	RefundMethodStoreCredit     RefundMethod = "store_credit"
	RefundMethodBankTransfer    RefundMethod = "bank_transfer"
	RefundMethodManual          RefundMethod = "manual"
)

var validRefundMethods = []RefundMethod{
	RefundMethodOriginalPayment,
	RefundMethodStoreCredit,
	RefundMethodBankTransfer,
	RefundMethodManual,
}

// IsValid reports whether the value is a known RefundMethod.
func (m RefundMethod) IsValid() bool {
	for _, candidate := range validRefundMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseRefundMethod converts raw input into a RefundMethod, defaulting to the original payment.
func ParseRefundMethod(value string) (RefundMethod, error) {
	if value == "" {
		return RefundMethodOriginalPayment, nil
	}
	for _, candidate := range validRefundMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund method %q", value)
}
