package inventory

import (
	"context"
	"fmt"

	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/angelmondragon/ordercore/pkg/enums"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/angelmondragon/ordercore/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Effect is what a status change does to stock.
type Effect string

const (
	EffectNone    Effect = "none"
	EffectRestore Effect = "restore"
	EffectReduce  Effect = "reduce"
)

// PlanEffect maps a status change onto its stock effect. It ignores whether
// the order currently holds stock; Reconcile applies that guard.
func PlanEffect(previous, next enums.OrderStatus) Effect {
	switch {
	case next.In(enums.OrderStatusCancelled, enums.OrderStatusRefunded) &&
		!previous.In(enums.OrderStatusCancelled, enums.OrderStatusRefunded):
		return EffectRestore
	case next.In(enums.OrderStatusProcessing, enums.OrderStatusShipped) &&
		!previous.In(enums.OrderStatusProcessing, enums.OrderStatusShipped, enums.OrderStatusDelivered):
		return EffectReduce
	default:
		return EffectNone
	}
}

type stockLedger interface {
	GetMany(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]models.InventoryItem, error)
	Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
	Increment(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (bool, error)
}

// Reconciler keeps inventory in step with order status changes.
type Reconciler struct {
	ledger  stockLedger
	logg    *logger.Logger
	metrics *metrics.OrderMetrics
}

// NewReconciler wires the reconciler. metrics may be nil.
func NewReconciler(ledger stockLedger, logg *logger.Logger, m *metrics.OrderMetrics) (*Reconciler, error) {
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Reconciler{ledger: ledger, logg: logg, metrics: m}, nil
}

// Reconcile applies the stock effect of previous -> next to order inside tx.
// previous must be the status read in the same transaction. The order's
// InventoryReserved flag and item backorder flags are updated in memory; the
// caller persists the aggregate.
func (r *Reconciler) Reconcile(ctx context.Context, tx *gorm.DB, order *models.Order, previous, next enums.OrderStatus) (Effect, error) {
	if order == nil {
		return EffectNone, fmt.Errorf("order required")
	}
	switch PlanEffect(previous, next) {
	case EffectRestore:
		if !order.InventoryReserved {
			return EffectNone, nil
		}
		if err := r.restore(ctx, tx, order); err != nil {
			return EffectNone, err
		}
		return EffectRestore, nil
	case EffectReduce:
		if order.InventoryReserved {
			return EffectNone, nil
		}
		if err := r.reduce(ctx, tx, order); err != nil {
			return EffectNone, err
		}
		return EffectReduce, nil
	default:
		return EffectNone, nil
	}
}

func (r *Reconciler) restore(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	units := 0
	for _, item := range order.Items {
		if item.Backordered {
			continue
		}
		applied, err := r.ledger.Increment(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("restore product %s: %w", item.ProductID, err)
		}
		if applied {
			units += item.Quantity
		}
	}
	order.InventoryReserved = false
	r.metrics.InventoryAdjusted(string(EffectRestore), units)
	return nil
}

func (r *Reconciler) reduce(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	ids := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		ids = append(ids, item.ProductID)
	}
	stock, err := r.ledger.GetMany(ctx, tx, ids)
	if err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}

	reduced, backordered := 0, 0
	for i := range order.Items {
		item := &order.Items[i]
		row, ok := stock[item.ProductID]
		if !ok || !row.Tracked {
			continue
		}
		applied, err := r.ledger.Decrement(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("reduce product %s: %w", item.ProductID, err)
		}
		if applied {
			item.Backordered = false
			reduced += item.Quantity
			continue
		}
		item.Backordered = true
		backordered += item.Quantity
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"order_id":   order.ID.String(),
			"product_id": item.ProductID.String(),
			"quantity":   item.Quantity,
		})
		r.logg.Warn(logCtx, "insufficient stock, line item backordered")
	}
	order.InventoryReserved = true
	r.metrics.InventoryAdjusted(string(EffectReduce), reduced)
	r.metrics.InventoryAdjusted("backorder", backordered)
	return nil
}
