package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/ordercore/internal/orders"
	"github.com/angelmondragon/ordercore/pkg/config"
	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/angelmondragon/ordercore/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/angelmondragon/ordercore/pkg/ids"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/angelmondragon/ordercore/pkg/money"
	"github.com/angelmondragon/ordercore/pkg/outbox"
	"github.com/angelmondragon/ordercore/pkg/outbox/payloads"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service records return requests and refund outcomes on orders.
type Service interface {
	RequestReturn(ctx context.Context, input RequestReturnInput) (*ReturnResult, error)
	ProcessRefund(ctx context.Context, input RefundInput) (*RefundResult, error)
	UpdateReturnStatus(ctx context.Context, input UpdateReturnInput) (*ReturnResult, error)
	ListReturns(ctx context.Context, orderID uuid.UUID, requester orders.Actor) ([]models.ReturnRequest, error)
}

// ReturnItemInput asks to return quantity units of one order line.
type ReturnItemInput struct {
	OrderItemID uuid.UUID
	Quantity    int
	Reason      string
}

type RequestReturnInput struct {
	OrderID   uuid.UUID
	Reason    string
	Items     []ReturnItemInput
	Requester orders.Actor
}

type RefundInput struct {
	OrderID     uuid.UUID
	AmountCents int64
	Reason      string
	Method      enums.RefundMethod
	Actor       orders.Actor
}

type UpdateReturnInput struct {
	ReturnID string
	Status   enums.ReturnStatus
	Notes    string
	Actor    orders.Actor
}

// ReturnResult carries the order after the change and the affected return.
type ReturnResult struct {
	Order  *models.Order
	Return models.ReturnRequest
}

// RefundResult carries the order after the change and the recorded refund.
type RefundResult struct {
	Order  *models.Order
	Refund models.Refund
}

// Violation explains why one requested return item was rejected.
type Violation struct {
	Index       int       `json:"index"`
	OrderItemID uuid.UUID `json:"order_item_id"`
	Problem     string    `json:"problem"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// transitioner moves an order that is already locked inside tx.
type transitioner interface {
	ApplyTransition(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus, actor orders.Actor, note string) error
}

// Dependencies wires a Service. ReturnWindow defaults to the configured
// default when zero.
type Dependencies struct {
	Repo         orders.Repository
	Tx           txRunner
	Orders       transitioner
	Outbox       outboxPublisher
	IDs          ids.Generator
	Logger       *logger.Logger
	ReturnWindow time.Duration
}

type service struct {
	repo   orders.Repository
	tx     txRunner
	orders transitioner
	outbox outboxPublisher
	ids    ids.Generator
	logg   *logger.Logger
	window time.Duration
	now    func() time.Time
}

func NewService(deps Dependencies) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("order repository required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Orders == nil:
		return nil, fmt.Errorf("order service required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	window := deps.ReturnWindow
	if window <= 0 {
		window = config.OrdersConfig{}.ReturnWindow()
	}
	gen := deps.IDs
	if gen == nil {
		gen = ids.ULIDGenerator{}
	}
	return &service{
		repo:   deps.Repo,
		tx:     deps.Tx,
		orders: deps.Orders,
		outbox: deps.Outbox,
		ids:    gen,
		logg:   deps.Logger,
		window: window,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}, nil
}

// RequestReturn opens a return on a delivered order inside its return window.
// Item problems are collected and reported together. When every line is
// covered by active returns the order moves to refunded.
func (s *service) RequestReturn(ctx context.Context, input RequestReturnInput) (*ReturnResult, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return reason is required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	var (
		result     ReturnResult
		fullyCover bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID, true)
		if err != nil {
			return orders.MapFindError(err, input.OrderID)
		}
		if !input.Requester.CanView(order) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
		}
		if order.Status != enums.OrderStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("returns require a delivered order, status is %s", order.Status)).
				WithDetails(map[string]any{"status": order.Status})
		}

		now := s.now()
		deadline := s.deadline(order)
		if !now.Before(deadline) {
			return pkgerrors.New(pkgerrors.CodeConflict, "the return window for this order has closed").
				WithReason(pkgerrors.ReasonReturnWindowExpired).
				WithDetails(map[string]any{"return_deadline": deadline})
		}

		items, err := validateItems(order, input.Items)
		if err != nil {
			return err
		}
		for i := range items {
			items[i].Status = enums.ReturnItemStatusPending
		}

		request := models.ReturnRequest{
			ID:             s.ids.NewReturnID(),
			Status:         enums.ReturnStatusRequested,
			Reason:         reason,
			RequestedBy:    input.Requester.Label(),
			RequestedAt:    now,
			ReturnDeadline: deadline,
			Items:          items,
		}
		order.Returns = append(order.Returns, request)

		if err := repo.InsertReturnRef(ctx, &models.OrderReturnRef{ReturnID: request.ID, OrderID: order.ID, CreatedAt: now}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert return ref")
		}

		fullyCover = coversAllItems(order)
		if fullyCover {
			if err := s.orders.ApplyTransition(ctx, tx, order, enums.OrderStatusRefunded, input.Requester, "all items returned"); err != nil {
				return err
			}
		} else if err := repo.Save(ctx, order); err != nil {
			return orders.MapSaveError(err)
		}

		if err := s.emit(ctx, tx, enums.EventReturnRequested, order.ID, input.Requester, payloads.ReturnRequestedEvent{
			OrderID:   order.ID,
			ReturnID:  request.ID,
			Reason:    reason,
			ItemCount: len(items),
		}); err != nil {
			return err
		}
		result = ReturnResult{Order: order, Return: request}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "request return")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":      result.Order.ID.String(),
		"return_id":     result.Return.ID,
		"fully_covered": fullyCover,
	}), "return requested")
	return &result, nil
}

// ProcessRefund records a refund that the payment collaborator already
// executed. It never moves money.
func (s *service) ProcessRefund(ctx context.Context, input RefundInput) (*RefundResult, error) {
	if !input.Actor.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only operators may record refunds")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be greater than zero")
	}
	method, err := enums.ParseRefundMethod(string(input.Method))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid refund method")
	}

	var (
		result  RefundResult
		skipped enums.OrderStatus
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID, true)
		if err != nil {
			return orders.MapFindError(err, input.OrderID)
		}

		remaining := order.TotalCents - order.RefundedCents
		if input.AmountCents > remaining {
			if remaining < 0 {
				remaining = 0
			}
			return pkgerrors.New(pkgerrors.CodeConflict,
				fmt.Sprintf("refund of %s exceeds the remaining balance of %s", money.FormatCents(input.AmountCents), money.FormatCents(remaining))).
				WithReason(pkgerrors.ReasonRefundExceedsBalance).
				WithDetails(map[string]any{
					"requested":         money.FormatCents(input.AmountCents),
					"remaining_balance": money.FormatCents(remaining),
				})
		}

		refund := models.Refund{
			ID:          s.ids.NewRefundID(),
			AmountCents: input.AmountCents,
			Reason:      strings.TrimSpace(input.Reason),
			Method:      method,
			ProcessedBy: input.Actor.Label(),
			ProcessedAt: s.now(),
		}
		order.Refunds = append(order.Refunds, refund)
		order.RefundedCents += refund.AmountCents

		fullyRefunded := order.RefundedCents >= order.TotalCents
		if fullyRefunded {
			order.PaymentStatus = enums.PaymentStatusRefunded
		} else {
			order.PaymentStatus = enums.PaymentStatusPartiallyRefunded
		}

		switch {
		case fullyRefunded && orders.IsValidTransition(order.Status, enums.OrderStatusRefunded):
			if err := s.orders.ApplyTransition(ctx, tx, order, enums.OrderStatusRefunded, input.Actor, "refunded in full"); err != nil {
				return err
			}
		default:
			if fullyRefunded && order.Status != enums.OrderStatusRefunded {
				skipped = order.Status
			}
			if err := repo.Save(ctx, order); err != nil {
				return orders.MapSaveError(err)
			}
		}

		if err := s.emit(ctx, tx, enums.EventRefundRecorded, order.ID, input.Actor, payloads.RefundRecordedEvent{
			OrderID:       order.ID,
			RefundID:      refund.ID,
			AmountCents:   refund.AmountCents,
			RefundedCents: order.RefundedCents,
			PaymentStatus: order.PaymentStatus,
			Method:        refund.Method,
		}); err != nil {
			return err
		}
		result = RefundResult{Order: order, Refund: refund}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "process refund")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":       result.Order.ID.String(),
		"refund_id":      result.Refund.ID,
		"amount":         money.FormatCents(result.Refund.AmountCents),
		"refunded_cents": result.Order.RefundedCents,
	})
	if skipped != "" {
		s.logg.Warn(s.logg.WithField(logCtx, "status", skipped), "order fully refunded but cannot move to refunded from its current status")
	}
	s.logg.Info(logCtx, "refund recorded")
	return &result, nil
}

// UpdateReturnStatus moves a return forward and maps its open items onto the
// matching item sub-state.
func (s *service) UpdateReturnStatus(ctx context.Context, input UpdateReturnInput) (*ReturnResult, error) {
	if !input.Actor.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only operators may update returns")
	}
	itemStatus, ok := itemStatusFor(input.Status)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("return status must be one of approved, rejected, processing, completed, got %q", input.Status))
	}
	returnID := strings.TrimSpace(input.ReturnID)
	if returnID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return id is required")
	}

	var result ReturnResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ref, err := repo.FindReturnRef(ctx, returnID)
		if err != nil {
			return mapReturnLookupError(err, returnID)
		}
		order, err := repo.FindByID(ctx, ref.OrderID, true)
		if err != nil {
			return orders.MapFindError(err, ref.OrderID)
		}
		request := orders.ReturnByID(order, returnID)
		if request == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("return %s not found", returnID))
		}
		if request.Status == enums.ReturnStatusRejected || request.Status == enums.ReturnStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("return %s is already %s", returnID, request.Status)).
				WithDetails(map[string]any{"status": request.Status})
		}

		now := s.now()
		for i := range request.Items {
			if isOpenItem(request.Items[i].Status) {
				request.Items[i].Status = itemStatus
				request.Items[i].ProcessedAt = &now
			}
		}
		processedBy := input.Actor.Label()
		request.Status = input.Status
		request.ProcessedBy = &processedBy
		request.ProcessedAt = &now
		if note := strings.TrimSpace(input.Notes); note != "" {
			request.Notes = append(request.Notes, note)
		}

		if err := repo.Save(ctx, order); err != nil {
			return orders.MapSaveError(err)
		}
		if err := s.emit(ctx, tx, enums.EventReturnStatusChanged, order.ID, input.Actor, payloads.ReturnStatusChangedEvent{
			OrderID:     order.ID,
			ReturnID:    request.ID,
			Status:      request.Status,
			ProcessedBy: processedBy,
		}); err != nil {
			return err
		}
		result = ReturnResult{Order: order, Return: *request}
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "update return status")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":  result.Order.ID.String(),
		"return_id": result.Return.ID,
		"status":    result.Return.Status,
	}), "return status updated")
	return &result, nil
}

func (s *service) ListReturns(ctx context.Context, orderID uuid.UUID, requester orders.Actor) ([]models.ReturnRequest, error) {
	order, err := s.repo.FindByID(ctx, orderID, false)
	if err != nil {
		return nil, orders.MapFindError(err, orderID)
	}
	if !requester.CanView(order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
	}
	return order.Returns, nil
}

func (s *service) deadline(order *models.Order) time.Time {
	base := order.CreatedAt
	if order.DeliveredAt != nil {
		base = *order.DeliveredAt
	}
	return base.UTC().Add(s.window)
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, orderID uuid.UUID, actor orders.Actor, data any) error {
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         actor.Ref(),
		Data:          data,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("emit %s", eventType))
	}
	return nil
}

func asServiceError(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
