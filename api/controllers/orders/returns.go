package orders

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/ordercore/api/controllers/actorcontext"
	"github.com/angelmondragon/ordercore/api/responses"
	"github.com/angelmondragon/ordercore/api/validators"
	internalorders "github.com/angelmondragon/ordercore/internal/orders"
	"github.com/angelmondragon/ordercore/internal/returns"
	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/angelmondragon/ordercore/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/angelmondragon/ordercore/pkg/money"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type returnItemRequest struct {
	OrderItemID uuid.UUID `json:"order_item_id"`
	Quantity    int       `json:"quantity"`
	Reason      string    `json:"reason,omitempty" validate:"max=500"`
}

// Item rules are checked by the service so every violation is reported at once.
type requestReturnRequest struct {
	Reason string              `json:"reason" validate:"required,max=500"`
	Items  []returnItemRequest `json:"items" validate:"required,min=1,dive"`
}

type refundRequest struct {
	Amount string `json:"amount" validate:"required,money"`
	Reason string `json:"reason" validate:"required,max=500"`
	Method string `json:"method,omitempty"`
}

type updateReturnRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes,omitempty" validate:"max=500"`
}

type returnResponse struct {
	Order  *internalorders.OrderDTO `json:"order"`
	Return internalorders.ReturnDTO `json:"return"`
}

type refundResponse struct {
	Order  *internalorders.OrderDTO `json:"order"`
	Refund internalorders.RefundDTO `json:"refund"`
}

// RequestReturn opens a return request on a delivered order.
func RequestReturn(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
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

		var payload requestReturnRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]returns.ReturnItemInput, 0, len(payload.Items))
		for _, item := range payload.Items {
			items = append(items, returns.ReturnItemInput{
				OrderItemID: item.OrderItemID,
				Quantity:    item.Quantity,
				Reason:      validators.SanitizeString(item.Reason, maxNoteLength),
			})
		}

		result, err := svc.RequestReturn(r.Context(), returns.RequestReturnInput{
			OrderID:   orderID,
			Reason:    validators.SanitizeString(payload.Reason, maxNoteLength),
			Items:     items,
			Requester: actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newReturnResponse(result))
	}
}

// ListReturns lists the return requests of an order visible to the caller.
func ListReturns(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
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

		list, err := svc.ListReturns(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewReturnDTOs(list))
	}
}

// AdminUpdateReturn moves a return request to a new status.
func AdminUpdateReturn(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}
		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		returnID := strings.TrimSpace(chi.URLParam(r, "returnId"))
		if returnID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "return id is required"))
			return
		}

		var payload updateReturnRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseReturnStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid return status"))
			return
		}

		result, err := svc.UpdateReturnStatus(r.Context(), returns.UpdateReturnInput{
			ReturnID: returnID,
			Status:   status,
			Notes:    validators.SanitizeString(payload.Notes, maxNoteLength),
			Actor:    actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newReturnResponse(result))
	}
}

// AdminRefund records a refund against an order's remaining balance.
func AdminRefund(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
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

		var payload refundRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := money.ParseCents(payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount"))
			return
		}

		result, err := svc.ProcessRefund(r.Context(), returns.RefundInput{
			OrderID:     orderID,
			AmountCents: amount,
			Reason:      validators.SanitizeString(payload.Reason, maxNoteLength),
			Method:      enums.RefundMethod(strings.TrimSpace(payload.Method)),
			Actor:       actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, refundResponse{
			Order: internalorders.NewOrderDTO(result.Order),
			Refund: internalorders.RefundDTO{
				ID:          result.Refund.ID,
				Amount:      money.FormatCents(result.Refund.AmountCents),
				Reason:      result.Refund.Reason,
				Method:      result.Refund.Method,
				ProcessedBy: result.Refund.ProcessedBy,
				ProcessedAt: result.Refund.ProcessedAt,
			},
		})
	}
}

func newReturnResponse(result *returns.ReturnResult) returnResponse {
	var dto internalorders.ReturnDTO
	if converted := internalorders.NewReturnDTOs([]models.ReturnRequest{result.Return}); len(converted) == 1 {
		dto = converted[0]
	}
	return returnResponse{Order: internalorders.NewOrderDTO(result.Order), Return: dto}
}
