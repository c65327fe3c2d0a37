package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/ordercore/internal/orders"
	"github.com/angelmondragon/ordercore/pkg/db/models"
	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/angelmondragon/ordercore/pkg/metrics"
)

// ConsumerName scopes idempotency keys for this worker.
const ConsumerName = "payments-worker"

// Handler processes one delivery. A nil error acknowledges it; any error asks
// the transport to redeliver.
type Handler func(ctx context.Context, msg Message) error

// Source delivers payment messages until ctx is cancelled.
type Source interface {
	Receive(ctx context.Context, handle Handler) error
}

type outcomeApplier interface {
	ApplyPaymentOutcome(ctx context.Context, input orders.PaymentOutcome) (*models.Order, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

// Consumer mirrors payment outcomes onto orders, dropping duplicate deliveries.
type Consumer struct {
	orders  outcomeApplier
	manager idempotencyChecker
	logg    *logger.Logger
	metrics *metrics.OrderMetrics
}

// NewConsumer wires the consumer. m may be nil.
func NewConsumer(svc outcomeApplier, manager idempotencyChecker, logg *logger.Logger, m *metrics.OrderMetrics) (*Consumer, error) {
	if svc == nil {
		return nil, errors.New("order service is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{orders: svc, manager: manager, logg: logg, metrics: m}, nil
}

// Run consumes from source until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, source Source) error {
	if source == nil {
		return errors.New("payment event source is required")
	}
	return source.Receive(ctx, c.Handle)
}

// Handle applies one payment message. Malformed events and events for
// unknown orders are acknowledged and logged; storage failures release the
// idempotency key and return an error so the message is redelivered.
func (c *Consumer) Handle(ctx context.Context, msg Message) error {
	logCtx := c.logg.WithField(ctx, "message_id", msg.ID)

	event, err := DecodeEvent(msg)
	if err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "dropping malformed payment event")
		c.metrics.PaymentEvent("invalid", metrics.OutcomeSkipped)
		return nil
	}
	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"event_id":   event.EventID,
		"event_type": event.Type,
		"order_id":   event.OrderID.String(),
	})

	already, err := c.manager.CheckAndMarkProcessed(logCtx, ConsumerName, event.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		c.logg.Info(logCtx, "payment event already processed")
		c.metrics.PaymentEvent(string(event.Type), metrics.OutcomeSkipped)
		return nil
	}

	_, err = c.orders.ApplyPaymentOutcome(logCtx, orders.PaymentOutcome{
		OrderID: event.OrderID,
		Type:    event.Type,
		EventID: event.EventID,
	})
	if err != nil {
		c.metrics.PaymentEvent(string(event.Type), metrics.OutcomeFailure)
		if permanent(err) {
			c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "payment event rejected")
			return nil
		}
		c.logg.Error(logCtx, "failed to apply payment event", err)
		if delErr := c.manager.Delete(logCtx, ConsumerName, event.EventID); delErr != nil {
			c.logg.Error(logCtx, "failed to release idempotency key", delErr)
		}
		return err
	}

	c.metrics.PaymentEvent(string(event.Type), metrics.OutcomeSuccess)
	c.logg.Info(logCtx, "payment event applied")
	return nil
}

// permanent reports whether redelivery could never succeed.
func permanent(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeNotFound) ||
		pkgerrors.IsCode(err, pkgerrors.CodeValidation) ||
		pkgerrors.IsCode(err, pkgerrors.CodeForbidden)
}
