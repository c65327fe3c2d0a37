package returns

import (
	"fmt"

	"github.com/angelmondragon/ordercore/internal/orders"
	"github.com/angelmondragon/ordercore/pkg/db"
	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/angelmondragon/ordercore/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/google/uuid"
)

// validateItems checks every requested item against the order and collects
// all problems. Any item that already has an active return turns the error
// into a duplicate_return conflict.
func validateItems(order *models.Order, inputs []ReturnItemInput) ([]models.ReturnItem, error) {
	active := activeReturnItems(order)
	seen := make(map[uuid.UUID]bool, len(inputs))

	var (
		items      []models.ReturnItem
		violations []Violation
		duplicate  bool
	)
	for i, in := range inputs {
		problem := ""
		line := orders.ItemByID(order, in.OrderItemID)
		switch {
		case in.OrderItemID == uuid.Nil:
			problem = "order item id is required"
		case line == nil:
			problem = "no line item with this id on the order"
		case in.Quantity < 1:
			problem = "quantity must be at least 1"
		case in.Quantity > line.Quantity:
			problem = fmt.Sprintf("quantity exceeds the %d ordered", line.Quantity)
		case active[in.OrderItemID] > 0:
			problem = "item already has an active return"
			duplicate = true
		case seen[in.OrderItemID]:
			problem = "item is listed more than once"
		}
		if problem != "" {
			violations = append(violations, Violation{Index: i, OrderItemID: in.OrderItemID, Problem: problem})
			continue
		}
		seen[in.OrderItemID] = true
		items = append(items, models.ReturnItem{
			OrderItemID:    in.OrderItemID,
			Quantity:       in.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			Reason:         in.Reason,
		})
	}

	if len(violations) == 0 {
		return items, nil
	}
	details := map[string]any{"violations": violations}
	if duplicate {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "one or more items already have an active return").
			WithReason(pkgerrors.ReasonDuplicateReturn).
			WithDetails(details)
	}
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "one or more return items are invalid").WithDetails(details)
}

// activeReturnItems sums non-rejected return quantities per order line.
func activeReturnItems(order *models.Order) map[uuid.UUID]int {
	active := make(map[uuid.UUID]int)
	for _, request := range order.Returns {
		for _, item := range request.Items {
			if item.Status.IsActive() {
				active[item.OrderItemID] += item.Quantity
			}
		}
	}
	return active
}

// coversAllItems reports whether every line's full quantity is under an
// active return.
func coversAllItems(order *models.Order) bool {
	if len(order.Items) == 0 {
		return false
	}
	active := activeReturnItems(order)
	for _, line := range order.Items {
		if active[line.ID] < line.Quantity {
			return false
		}
	}
	return true
}

// itemStatusFor maps a return status onto the sub-state its open items take.
func itemStatusFor(status enums.ReturnStatus) (enums.ReturnItemStatus, bool) {
	switch status {
	case enums.ReturnStatusApproved:
		return enums.ReturnItemStatusApproved, true
	case enums.ReturnStatusRejected:
		return enums.ReturnItemStatusRejected, true
	case enums.ReturnStatusProcessing:
		return enums.ReturnItemStatusPending, true
	case enums.ReturnStatusCompleted:
		return enums.ReturnItemStatusRefunded, true
	default:
		return "", false
	}
}

// isOpenItem reports whether an item is still in a request-like sub-state.
func isOpenItem(status enums.ReturnItemStatus) bool {
	switch status {
	case enums.ReturnItemStatusPending, enums.ReturnItemStatusApproved, enums.ReturnItemStatusReceived:
		return true
	default:
		return false
	}
}

func mapReturnLookupError(err error, returnID string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("return %s not found", returnID))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load return ref")
}
