package orders

import (
	"context"
	"fmt"

	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/angelmondragon/ordercore/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/angelmondragon/ordercore/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const paymentActorName = "payment"

// PaymentOutcome is an asynchronous result reported by the payment collaborator.
type PaymentOutcome struct {
	OrderID uuid.UUID
	Type    enums.PaymentEventType
	EventID string
}

// ApplyPaymentOutcome mirrors a payment result onto the order. A success on a
// pending order also moves it to processing through the regular transition
// path. Outcomes that would regress the payment status are ignored.
func (s *service) ApplyPaymentOutcome(ctx context.Context, input PaymentOutcome) (*models.Order, error) {
	if _, err := enums.ParsePaymentEventType(string(input.Type)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment event")
	}
	actor := SystemActor(paymentActorName)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":         input.OrderID.String(),
		"payment_event":    input.Type,
		"payment_event_id": input.EventID,
	})

	var (
		order   *models.Order
		ignored bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		loaded, err := s.loadForUpdate(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		order = loaded
		next, ok := nextPaymentStatus(loaded.PaymentStatus, input.Type)
		if !ok {
			ignored = true
			return nil
		}
		loaded.PaymentStatus = next

		if next == enums.PaymentStatusPaid && loaded.Status == enums.OrderStatusPending {
			if err := s.applyTransition(ctx, tx, loaded, enums.OrderStatusProcessing, actor, "payment received", nil); err != nil {
				return err
			}
		} else if err := s.save(ctx, tx, loaded); err != nil {
			return err
		}
		return s.emit(ctx, tx, enums.EventOrderPaymentUpdated, loaded.ID, actor, payloads.OrderPaymentUpdatedEvent{
			OrderID:        loaded.ID,
			PaymentStatus:  next,
			PaymentEventID: input.EventID,
		})
	})
	if err != nil {
		return nil, asServiceError(err, "apply payment outcome")
	}
	if ignored {
		s.logg.Warn(s.logg.WithField(logCtx, "payment_status", order.PaymentStatus), "payment outcome ignored for current payment status")
		return order, nil
	}
	s.logg.Info(logCtx, fmt.Sprintf("payment status set to %s", order.PaymentStatus))
	return order, nil
}

// nextPaymentStatus returns the status an outcome moves to, or false when the
// outcome is stale or already applied.
func nextPaymentStatus(current enums.PaymentStatus, outcome enums.PaymentEventType) (enums.PaymentStatus, bool) {
	switch outcome {
	case enums.PaymentEventSucceeded:
		if current == enums.PaymentStatusPending || current == enums.PaymentStatusFailed {
			return enums.PaymentStatusPaid, true
		}
	case enums.PaymentEventFailed:
		if current == enums.PaymentStatusPending {
			return enums.PaymentStatusFailed, true
		}
	}
	return current, false
}
