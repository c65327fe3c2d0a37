package orders

import (
	"net/http"

	"github.com/angelmondragon/ordercore/api/controllers/actorcontext"
	"github.com/angelmondragon/ordercore/api/responses"
	"github.com/angelmondragon/ordercore/api/validators"
	internalorders "github.com/angelmondragon/ordercore/internal/orders"
	"github.com/angelmondragon/ordercore/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/google/uuid"
)

type transitionRequest struct {
	Status         string  `json:"status" validate:"required"`
	Note           string  `json:"note,omitempty" validate:"max=500"`
	TrackingNumber *string `json:"tracking_number,omitempty" validate:"omitempty,max=128"`
}

type bulkTransitionRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids" validate:"required,min=1"`
	Status   string      `json:"status" validate:"required"`
	Note     string      `json:"note,omitempty" validate:"max=500"`
}

type splitSelectorRequest struct {
	ItemID    *uuid.UUID `json:"item_id,omitempty"`
	ProductID *uuid.UUID `json:"product_id,omitempty"`
	Quantity  int        `json:"quantity,omitempty" validate:"min=0"`
}

type splitRequest struct {
	Items []splitSelectorRequest `json:"items" validate:"required,min=1,dive"`
}

type splitResponse struct {
	Parent *internalorders.OrderDTO   `json:"parent"`
	Child  *internalorders.OrderDTO   `json:"child"`
	Moves  []internalorders.SplitMove `json:"moves"`
}

// AdminTransition moves one order to a new status.
func AdminTransition(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload transitionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		order, err := svc.Transition(r.Context(), internalorders.TransitionInput{
			OrderID:        orderID,
			Status:         status,
			Actor:          actor,
			Note:           validators.SanitizeString(payload.Note, maxNoteLength),
			TrackingNumber: payload.TrackingNumber,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order))
	}
}

// AdminBulkTransition applies one status to many orders and reports each.
func AdminBulkTransition(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload bulkTransitionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		report, err := svc.BulkTransition(r.Context(), internalorders.BulkTransitionInput{
			OrderIDs: payload.OrderIDs,
			Status:   status,
			Actor:    actor,
			Note:     validators.SanitizeString(payload.Note, maxNoteLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// AdminSplit moves selected lines into a new child order.
func AdminSplit(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId", "order id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload splitRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		selectors := make([]internalorders.SplitSelector, 0, len(payload.Items))
		for _, item := range payload.Items {
			selectors = append(selectors, internalorders.SplitSelector{
				ItemID:    item.ItemID,
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
			})
		}

		result, err := svc.Split(r.Context(), internalorders.SplitInput{
			OrderID:   orderID,
			Selectors: selectors,
			Actor:     actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, splitResponse{
			Parent: internalorders.NewOrderDTO(result.Parent),
			Child:  internalorders.NewOrderDTO(result.Child),
			Moves:  result.Moves,
		})
	}
}
