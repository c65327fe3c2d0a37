package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/ordercore/internal/inventory"
	"github.com/angelmondragon/ordercore/pkg/db"
	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/angelmondragon/ordercore/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/angelmondragon/ordercore/pkg/metrics"
	"github.com/angelmondragon/ordercore/pkg/money"
	"github.com/angelmondragon/ordercore/pkg/outbox"
	"github.com/angelmondragon/ordercore/pkg/outbox/payloads"
	"github.com/angelmondragon/ordercore/pkg/pagination"
	"github.com/angelmondragon/ordercore/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultBulkMax = 200

// Service drives the order lifecycle. Every mutating call is one unit of work.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID, requester Actor) (*models.Order, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params, requester Actor) (*pagination.Page[models.Order], error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, requester Actor, note string) (*models.Order, error)
	BulkTransition(ctx context.Context, input BulkTransitionInput) (*BulkReport, error)
	Split(ctx context.Context, input SplitInput) (*SplitResult, error)
	ApplyPaymentOutcome(ctx context.Context, input PaymentOutcome) (*models.Order, error)
	// ApplyTransition moves an order already loaded and locked inside tx.
	ApplyTransition(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus, actor Actor, note string) error
}

// CreateItemInput is one requested line.
type CreateItemInput struct {
	ProductID     uuid.UUID
	Quantity      int
	DiscountCents int64
}

// CreateOrderInput holds the payload to place an order. Exactly one of
// UserID and GuestEmail is set.
type CreateOrderInput struct {
	Items            []CreateItemInput
	ShippingAddress  types.Address
	UserID           *uuid.UUID
	GuestEmail       *string
	Notes            *string
	ShippingFeeCents int64
	DiscountCents    int64
	Actor            Actor
}

// TransitionInput requests a status change.
type TransitionInput struct {
	OrderID        uuid.UUID
	Status         enums.OrderStatus
	Actor          Actor
	Note           string
	TrackingNumber *string
}

// StockShortage explains why an item could not be reserved.
type StockShortage struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type productCatalog interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Product, error)
}

type stockLedger interface {
	GetMany(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.InventoryItem, error)
	Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, tx *gorm.DB, order *models.Order, previous, next enums.OrderStatus) (inventory.Effect, error)
}

// Dependencies wires a Service. Metrics may be nil.
type Dependencies struct {
	Repo       Repository
	Tx         txRunner
	Outbox     outboxPublisher
	Catalog    productCatalog
	Stock      stockLedger
	Reconciler reconciler
	Numbers    NumberGenerator
	Logger     *logger.Logger
	Metrics    *metrics.OrderMetrics
	BulkMax    int
}

type service struct {
	repo       Repository
	tx         txRunner
	outbox     outboxPublisher
	catalog    productCatalog
	stock      stockLedger
	reconciler reconciler
	numbers    NumberGenerator
	logg       *logger.Logger
	metrics    *metrics.OrderMetrics
	bulkMax    int
	now        func() time.Time
}

// NewService validates deps and builds the order service.
func NewService(deps Dependencies) (Service, error) {
	switch {
	case deps.Repo == nil:
		return nil, fmt.Errorf("order repository required")
	case deps.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case deps.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case deps.Catalog == nil:
		return nil, fmt.Errorf("product catalog required")
	case deps.Stock == nil:
		return nil, fmt.Errorf("inventory ledger required")
	case deps.Reconciler == nil:
		return nil, fmt.Errorf("inventory reconciler required")
	case deps.Numbers == nil:
		return nil, fmt.Errorf("order number generator required")
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	bulkMax := deps.BulkMax
	if bulkMax <= 0 {
		bulkMax = defaultBulkMax
	}
	return &service{
		repo:       deps.Repo,
		tx:         deps.Tx,
		outbox:     deps.Outbox,
		catalog:    deps.Catalog,
		stock:      deps.Stock,
		reconciler: deps.Reconciler,
		numbers:    deps.Numbers,
		logg:       deps.Logger,
		metrics:    deps.Metrics,
		bulkMax:    bulkMax,
		now:        func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := validateCreate(&input); err != nil {
		return nil, err
	}
	queries := make([]inventory.StockQuery, 0, len(input.Items))
	for _, item := range input.Items {
		queries = append(queries, inventory.StockQuery{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	requested, productIDs, err := inventory.SumByProduct(queries)
	if err != nil {
		return nil, err
	}

	number, err := s.numbers.Next(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate order number")
	}

	now := s.now()
	order := &models.Order{
		ID:               uuid.New(),
		OrderNumber:      number,
		UserID:           input.UserID,
		GuestEmail:       input.GuestEmail,
		ShippingAddress:  input.ShippingAddress.Normalized(),
		Notes:            input.Notes,
		ShippingFeeCents: input.ShippingFeeCents,
		DiscountCents:    input.DiscountCents,
		Status:           enums.OrderStatusPending,
		PaymentStatus:    enums.PaymentStatusPending,
		StatusHistory: []models.StatusChange{{
			Status:    enums.OrderStatusPending,
			ChangedBy: input.Actor.Label(),
			Note:      "order placed",
			At:        now,
		}},
		InventoryReserved: true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	reserved := 0
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		products := make(map[uuid.UUID]*models.Product, len(productIDs))
		for _, id := range productIDs {
			product, err := s.catalog.GetByID(ctx, tx, id)
			if err != nil {
				return err
			}
			if !product.IsActive {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("product %s is not available", id))
			}
			products[id] = product
		}

		stock, err := s.stock.GetMany(ctx, tx, productIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load inventory")
		}
		var shortages []StockShortage
		for _, id := range productIDs {
			if row, ok := stock[id]; ok && row.Tracked && row.AvailableQty < requested[id] {
				shortages = append(shortages, StockShortage{ProductID: id, Requested: requested[id], Available: row.AvailableQty})
			}
		}
		if len(shortages) > 0 {
			return insufficientStock(shortages)
		}
		for _, id := range productIDs {
			row, ok := stock[id]
			if !ok || !row.Tracked {
				continue
			}
			applied, err := s.stock.Decrement(ctx, tx, id, requested[id])
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: reserve inventory")
			}
			if !applied {
				return insufficientStock([]StockShortage{{ProductID: id, Requested: requested[id], Available: row.AvailableQty}})
			}
			reserved += requested[id]
		}

		order.Items = buildLineItems(input.Items, products)
		RecalculateTotals(order)

		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert order")
		}
		return s.emit(ctx, tx, enums.EventOrderCreated, order.ID, input.Actor, orderCreatedPayload(order))
	})
	if err != nil {
		return nil, asServiceError(err, "create order")
	}

	s.metrics.InventoryAdjusted("reserve", reserved)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
		"total_cents":  order.TotalCents,
	}), "order created")
	return order, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, requester Actor) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, orderID, false)
	if err != nil {
		return nil, MapFindError(err, orderID)
	}
	if !requester.CanView(order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params, requester Actor) (*pagination.Page[models.Order], error) {
	if !requester.IsPrivileged() {
		filters.Owner = &OwnerScope{UserID: requester.UserID, Email: requester.Email}
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list orders")
	}
	page := pagination.Slice(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &page, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", input.Status))
	}
	if !input.Actor.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only operators may change order status")
	}
	order, _, err := s.transitionOne(ctx, input)
	return order, err
}

// transitionOne runs a single status change in its own transaction and
// reports the status read before the change.
func (s *service) transitionOne(ctx context.Context, input TransitionInput) (*models.Order, enums.OrderStatus, error) {
	var (
		order    *models.Order
		previous enums.OrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		loaded, err := s.loadForUpdate(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		previous = loaded.Status
		if err := s.applyTransition(ctx, tx, loaded, input.Status, input.Actor, input.Note, input.TrackingNumber); err != nil {
			return err
		}
		order = loaded
		return nil
	})
	if err != nil {
		return nil, previous, asServiceError(err, "transition order")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":   order.ID.String(),
		"from":       previous,
		"to":         order.Status,
		"changed_by": input.Actor.Label(),
	}), "order status changed")
	return order, previous, nil
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, requester Actor, note string) (*models.Order, error) {
	if strings.TrimSpace(note) == "" {
		note = "cancelled by " + requester.Label()
	}
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		loaded, err := s.loadForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !requester.CanView(loaded) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another customer")
		}
		if !IsCancellable(loaded.Status) {
			return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("order in status %s can no longer be cancelled", loaded.Status)).
				WithReason(pkgerrors.ReasonNotCancellable).
				WithDetails(map[string]any{"status": loaded.Status})
		}
		if err := s.applyTransition(ctx, tx, loaded, enums.OrderStatusCancelled, requester, note, nil); err != nil {
			return err
		}
		order = loaded
		return nil
	})
	if err != nil {
		return nil, asServiceError(err, "cancel order")
	}
	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order cancelled")
	return order, nil
}

func (s *service) ApplyTransition(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus, actor Actor, note string) error {
	if tx == nil || order == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction and order required")
	}
	return s.applyTransition(ctx, tx, order, target, actor, note, nil)
}

// applyTransition is the single path every status change goes through:
// validate, reconcile stock, append history, save and emit.
func (s *service) applyTransition(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus, actor Actor, note string, tracking *string) error {
	previous := order.Status
	if !IsValidTransition(previous, target) {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("cannot move order from %s to %s", previous, target)).
			WithReason(pkgerrors.ReasonInvalidTransition).
			WithDetails(map[string]any{
				"from":    previous,
				"to":      target,
				"allowed": AllowedTransitions(previous),
			})
	}

	if _, err := s.reconciler.Reconcile(ctx, tx, order, previous, target); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconcile inventory")
	}

	now := s.now()
	order.Status = target
	order.StatusHistory = append(order.StatusHistory, models.StatusChange{
		Status:    target,
		ChangedBy: actor.Label(),
		Note:      strings.TrimSpace(note),
		At:        now,
	})
	switch target {
	case enums.OrderStatusDelivered:
		order.DeliveredAt = &now
	case enums.OrderStatusShipped:
		if tracking != nil && strings.TrimSpace(*tracking) != "" {
			value := strings.TrimSpace(*tracking)
			order.TrackingNumber = &value
		}
	}

	if err := s.save(ctx, tx, order); err != nil {
		return err
	}
	if err := s.emit(ctx, tx, enums.EventOrderStatusChanged, order.ID, actor, payloads.OrderStatusChangedEvent{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: previous,
		Status:         target,
		ChangedBy:      actor.Label(),
		Note:           strings.TrimSpace(note),
		TrackingNumber: order.TrackingNumber,
	}); err != nil {
		return err
	}
	s.metrics.Transition(string(previous), string(target))
	return nil
}

func (s *service) loadForUpdate(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.WithTx(tx).FindByID(ctx, orderID, true)
	if err != nil {
		return nil, MapFindError(err, orderID)
	}
	return order, nil
}

func (s *service) save(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if err := s.repo.WithTx(tx).Save(ctx, order); err != nil {
		return MapSaveError(err)
	}
	return nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, orderID uuid.UUID, actor Actor, data any) error {
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

func validateCreate(input *CreateOrderInput) error {
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	for i, item := range input.Items {
		if item.DiscountCents < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d]: discount must not be negative", i))
		}
	}
	if input.GuestEmail != nil {
		email := strings.ToLower(strings.TrimSpace(*input.GuestEmail))
		if email == "" {
			input.GuestEmail = nil
		} else {
			if !strings.Contains(email, "@") {
				return pkgerrors.New(pkgerrors.CodeValidation, "guest email is invalid")
			}
			input.GuestEmail = &email
		}
	}
	if input.UserID != nil && *input.UserID == uuid.Nil {
		input.UserID = nil
	}
	if (input.UserID == nil) == (input.GuestEmail == nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "exactly one of user id or guest email is required")
	}
	if err := input.ShippingAddress.Normalized().Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "shipping address is incomplete")
	}
	if input.ShippingFeeCents < 0 || input.DiscountCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping fee and discount must not be negative")
	}
	if !input.Actor.IsPrivileged() && hasPriceOverrides(input) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only operators may set shipping fees or discounts")
	}
	return nil
}

// hasPriceOverrides reports whether the caller supplied any pricing that would
// otherwise come from the catalog.
func hasPriceOverrides(input *CreateOrderInput) bool {
	if input.ShippingFeeCents != 0 || input.DiscountCents != 0 {
		return true
	}
	for _, item := range input.Items {
		if item.DiscountCents != 0 {
			return true
		}
	}
	return false
}

func buildLineItems(inputs []CreateItemInput, products map[uuid.UUID]*models.Product) []models.LineItem {
	items := make([]models.LineItem, 0, len(inputs))
	for _, in := range inputs {
		product := products[in.ProductID]
		item := models.LineItem{
			ID:             uuid.New(),
			ProductID:      product.ID,
			Name:           product.Name,
			SKU:            product.SKU,
			Quantity:       in.Quantity,
			UnitPriceCents: product.PriceCents,
			DiscountCents:  in.DiscountCents,
		}
		if product.ImageURL != nil {
			item.ImageURL = *product.ImageURL
		}
		if product.Variant != nil {
			item.Variant = *product.Variant
		}
		item.LineTotalCents = lineTotal(item)
		item.TaxCents = money.PercentOf(item.LineTotalCents, product.TaxRateBps)
		items = append(items, item)
	}
	return items
}

func orderCreatedPayload(order *models.Order) payloads.OrderCreatedEvent {
	return payloads.OrderCreatedEvent{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		GuestEmail:    order.GuestEmail,
		ParentOrderID: order.ParentOrderID,
		Status:        order.Status,
		TotalCents:    order.TotalCents,
		ItemCount:     len(order.Items),
	}
}

func insufficientStock(shortages []StockShortage) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock for one or more items").
		WithReason(pkgerrors.ReasonInsufficientStock).
		WithDetails(map[string]any{"items": shortages})
}

// MapFindError converts repository lookup failures into service errors.
func MapFindError(err error, orderID uuid.UUID) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("order %s not found", orderID))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load order")
}

// MapSaveError converts repository save failures into service errors.
func MapSaveError(err error) error {
	if errors.Is(err, ErrStaleVersion) {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order was changed by another request, retry").
			WithReason(pkgerrors.ReasonConcurrentUpdate)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: save order")
}

func asServiceError(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
