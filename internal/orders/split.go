package orders

import (
	"context"
	"fmt"

	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/angelmondragon/ordercore/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/angelmondragon/ordercore/pkg/outbox/payloads"
	"github.com/angelmondragon/ordercore/pkg/saga"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const splitSagaName = "order_split"

// SplitSelector picks a line by item id or by product id. Quantity is
// reported back but lines always move whole. Selecting any line moves every
// line of the same product, and each of those lines gets its own SplitMove.
type SplitSelector struct {
	ItemID    *uuid.UUID
	ProductID *uuid.UUID
	Quantity  int
}

// SplitInput asks to move the selected lines into a new child order.
type SplitInput struct {
	OrderID   uuid.UUID
	Selectors []SplitSelector
	Actor     Actor
}

// SplitMove describes one line that moved to the child. RequestedQuantity is
// zero for lines that moved only because they share a selected product.
type SplitMove struct {
	ItemID            uuid.UUID `json:"item_id"`
	ProductID         uuid.UUID `json:"product_id"`
	RequestedQuantity int       `json:"requested_quantity"`
	MovedQuantity     int       `json:"moved_quantity"`
}

// SplitViolation explains why a selector was rejected.
type SplitViolation struct {
	Index   int    `json:"index"`
	Problem string `json:"problem"`
}

// SplitResult carries both orders after a successful split.
type SplitResult struct {
	Parent *models.Order `json:"parent"`
	Child  *models.Order `json:"child"`
	Moves  []SplitMove   `json:"moves"`
}

// Split moves the selected lines of an order into a new child order. The
// child is created first; if the parent update then fails the child is
// deleted again. A failed delete surfaces as a critical dependency error.
func (s *service) Split(ctx context.Context, input SplitInput) (*SplitResult, error) {
	if !input.Actor.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only operators may split orders")
	}
	if len(input.Selectors) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item selector is required")
	}

	parent, err := s.repo.FindByID(ctx, input.OrderID, false)
	if err != nil {
		return nil, MapFindError(err, input.OrderID)
	}
	if err := checkSplittable(parent); err != nil {
		return nil, err
	}
	moves, movedProducts, violations := resolveSelectors(parent, input.Selectors)
	if len(violations) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "one or more selectors are invalid").
			WithDetails(map[string]any{"violations": violations})
	}
	childItems, keptItems := partitionItems(parent.Items, movedProducts)
	if len(keptItems) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "split must leave at least one item on the original order")
	}

	number, err := s.numbers.Next(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate order number")
	}
	now := s.now()
	child := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     number,
		UserID:          parent.UserID,
		GuestEmail:      parent.GuestEmail,
		Items:           childItems,
		ShippingAddress: parent.ShippingAddress,
		Notes:           parent.Notes,
		Status:          enums.OrderStatusProcessing,
		PaymentStatus:   enums.PaymentStatusPending,
		StatusHistory: []models.StatusChange{{
			Status:    enums.OrderStatusProcessing,
			ChangedBy: input.Actor.Label(),
			Note:      fmt.Sprintf("split from order %s", parent.OrderNumber),
			At:        now,
		}},
		ParentOrderID:     &parent.ID,
		InventoryReserved: parent.InventoryReserved,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	RecalculateTotals(child)

	expectedVersion := parent.Version
	var updated *models.Order
	orchestrator := saga.NewOrchestrator(splitSagaName, s.logg, s.metrics,
		saga.Step{
			Name: "create_child",
			Execute: func(ctx context.Context) error {
				return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
					if err := s.repo.WithTx(tx).Create(ctx, child); err != nil {
						return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert child order")
					}
					return nil
				})
			},
			Compensate: func(ctx context.Context) error {
				return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
					return s.repo.WithTx(tx).Delete(ctx, child.ID)
				})
			},
		},
		saga.Step{
			Name: "update_parent",
			Execute: func(ctx context.Context) error {
				return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
					locked, err := s.loadForUpdate(ctx, tx, parent.ID)
					if err != nil {
						return err
					}
					if locked.Version != expectedVersion {
						return pkgerrors.New(pkgerrors.CodeConflict, "order was changed while splitting, retry").
							WithReason(pkgerrors.ReasonConcurrentUpdate)
					}
					_, locked.Items = partitionItems(locked.Items, movedProducts)
					RecalculateTotals(locked)
					if err := s.save(ctx, tx, locked); err != nil {
						return err
					}
					if err := s.emit(ctx, tx, enums.EventOrderCreated, child.ID, input.Actor, orderCreatedPayload(child)); err != nil {
						return err
					}
					movedIDs := make([]uuid.UUID, 0, len(child.Items))
					for _, item := range child.Items {
						movedIDs = append(movedIDs, item.ID)
					}
					if err := s.emit(ctx, tx, enums.EventOrderSplit, locked.ID, input.Actor, payloads.OrderSplitEvent{
						ParentOrderID:    locked.ID,
						ChildOrderID:     child.ID,
						ChildOrderNumber: child.OrderNumber,
						MovedItemIDs:     movedIDs,
					}); err != nil {
						return err
					}
					updated = locked
					return nil
				})
			},
		},
	)
	if err := orchestrator.Run(ctx); err != nil {
		return nil, asServiceError(err, "split order")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":       parent.ID.String(),
		"child_order_id": child.ID.String(),
		"moved_items":    len(child.Items),
	}), "order split")
	return &SplitResult{Parent: updated, Child: child, Moves: moves}, nil
}

func checkSplittable(order *models.Order) error {
	if !IsSplittable(order.Status) {
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("order in status %s cannot be split", order.Status)).
			WithReason(pkgerrors.ReasonInvalidTransition).
			WithDetails(map[string]any{"status": order.Status})
	}
	if len(order.Refunds) > 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "orders with refunds cannot be split")
	}
	return nil
}

// resolveSelectors maps selectors onto parent lines. A product selector
// matches the first line carrying that product. Lines sharing a selected
// product are reported after the selected ones.
func resolveSelectors(order *models.Order, selectors []SplitSelector) ([]SplitMove, map[uuid.UUID]bool, []SplitViolation) {
	var (
		moves      []SplitMove
		violations []SplitViolation
	)
	movedProducts := make(map[uuid.UUID]bool)
	selected := make(map[uuid.UUID]bool)
	for i, sel := range selectors {
		if (sel.ItemID == nil) == (sel.ProductID == nil) {
			violations = append(violations, SplitViolation{Index: i, Problem: "exactly one of item id or product id is required"})
			continue
		}
		if sel.Quantity < 0 {
			violations = append(violations, SplitViolation{Index: i, Problem: "quantity must not be negative"})
			continue
		}
		var item *models.LineItem
		if sel.ItemID != nil {
			item = ItemByID(order, *sel.ItemID)
		} else {
			for j := range order.Items {
				if order.Items[j].ProductID == *sel.ProductID {
					item = &order.Items[j]
					break
				}
			}
		}
		if item == nil {
			violations = append(violations, SplitViolation{Index: i, Problem: "no matching line item"})
			continue
		}
		if selected[item.ID] {
			continue
		}
		selected[item.ID] = true
		requested := sel.Quantity
		if requested == 0 || requested > item.Quantity {
			requested = item.Quantity
		}
		movedProducts[item.ProductID] = true
		moves = append(moves, SplitMove{
			ItemID:            item.ID,
			ProductID:         item.ProductID,
			RequestedQuantity: requested,
			MovedQuantity:     item.Quantity,
		})
	}
	for _, item := range order.Items {
		if movedProducts[item.ProductID] && !selected[item.ID] {
			moves = append(moves, SplitMove{
				ItemID:        item.ID,
				ProductID:     item.ProductID,
				MovedQuantity: item.Quantity,
			})
		}
	}
	return moves, movedProducts, violations
}

// partitionItems splits items into those whose product moves and those that stay.
func partitionItems(items []models.LineItem, movedProducts map[uuid.UUID]bool) (moved, kept []models.LineItem) {
	moved = []models.LineItem{}
	kept = []models.LineItem{}
	for _, item := range items {
		if movedProducts[item.ProductID] {
			moved = append(moved, item)
		} else {
			kept = append(kept, item)
		}
	}
	return moved, kept
}
