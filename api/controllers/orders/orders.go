package orders

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/ordercore/api/controllers/actorcontext"
	"github.com/angelmondragon/ordercore/api/responses"
	"github.com/angelmondragon/ordercore/api/validators"
	internalorders "github.com/angelmondragon/ordercore/internal/orders"
	"github.com/angelmondragon/ordercore/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/angelmondragon/ordercore/pkg/money"
	"github.com/angelmondragon/ordercore/pkg/pagination"
	"github.com/angelmondragon/ordercore/pkg/types"
	"github.com/google/uuid"
)

const maxNoteLength = 500

type createItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1,max=10000"`
	Discount  string    `json:"discount,omitempty" validate:"omitempty,money"`
}

type createOrderRequest struct {
	Items           []createItemRequest `json:"items" validate:"required,min=1,max=200,dive"`
	ShippingAddress types.Address       `json:"shipping_address"`
	UserID          *uuid.UUID          `json:"user_id,omitempty"`
	GuestEmail      *string             `json:"guest_email,omitempty" validate:"omitempty,email"`
	Notes           *string             `json:"notes,omitempty"`
	ShippingFee     string              `json:"shipping_fee,omitempty" validate:"omitempty,money"`
	Discount        string              `json:"discount,omitempty" validate:"omitempty,money"`
}

// toInput resolves the owner from the caller. Customers always order for
// themselves; operators may place orders on behalf of a user or guest;
// anonymous callers must give a guest email.
func (p createOrderRequest) toInput(actor internalorders.Actor, authenticated bool) (internalorders.CreateOrderInput, error) {
	input := internalorders.CreateOrderInput{
		ShippingAddress: p.ShippingAddress,
		Actor:           actor,
	}
	if p.Notes != nil {
		note := validators.SanitizeString(*p.Notes, maxNoteLength)
		input.Notes = &note
	}

	var err error
	if input.ShippingFeeCents, err = optionalCents(p.ShippingFee); err != nil {
		return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping_fee")
	}
	if input.DiscountCents, err = optionalCents(p.Discount); err != nil {
		return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid discount")
	}

	for i, item := range p.Items {
		discount, err := optionalCents(item.Discount)
		if err != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item discount").WithDetails(map[string]any{"index": i})
		}
		input.Items = append(input.Items, internalorders.CreateItemInput{
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			DiscountCents: discount,
		})
	}

	switch {
	case !authenticated:
		input.GuestEmail = p.GuestEmail
	case actor.IsPrivileged():
		input.UserID = p.UserID
		input.GuestEmail = p.GuestEmail
	default:
		if p.UserID != nil && *p.UserID != actor.UserID {
			return input, pkgerrors.New(pkgerrors.CodeForbidden, "customers may only order for themselves")
		}
		userID := actor.UserID
		input.UserID = &userID
	}
	return input, nil
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// Create places an order for the caller or, for anonymous callers, a guest.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		actor, authenticated, err := actorcontext.ResolveOptionalActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !authenticated {
			if payload.GuestEmail == nil || strings.TrimSpace(*payload.GuestEmail) == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "guest_email is required without a token"))
				return
			}
			actor = internalorders.Actor{Role: enums.ActorRoleCustomer, Email: *payload.GuestEmail}
		}

		input, err := payload.toInput(actor, authenticated)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, internalorders.NewOrderDTO(order))
	}
}

// Get returns one order visible to the caller.
func Get(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
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

		order, err := svc.Get(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order))
	}
}

// List pages through orders. Customers only ever see their own; operators
// may filter by owner.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
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

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		filters, err := buildListFilters(r, actor.IsPrivileged())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), filters, params, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderPageDTO(page))
	}
}

// Cancel cancels a pending or processing order the caller owns.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload cancelRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		order, err := svc.Cancel(r.Context(), orderID, actor, validators.SanitizeString(payload.Reason, maxNoteLength))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(order))
	}
}

func buildListFilters(r *http.Request, privileged bool) (internalorders.ListFilters, error) {
	q := r.URL.Query()
	var filters internalorders.ListFilters

	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(q.Get("payment_status")); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment_status filter")
		}
		filters.PaymentStatus = &status
	}

	var err error
	if filters.CreatedFrom, err = validators.ParseQueryTime(r, "created_from"); err != nil {
		return filters, err
	}
	if filters.CreatedTo, err = validators.ParseQueryTime(r, "created_to"); err != nil {
		return filters, err
	}
	filters.NumberQuery = validators.SanitizeString(q.Get("q"), 64)

	if !privileged {
		return filters, nil
	}
	if raw := strings.TrimSpace(q.Get("user_id")); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user_id filter")
		}
		filters.UserID = &userID
	}
	if raw := strings.TrimSpace(q.Get("guest_email")); raw != "" {
		email := strings.ToLower(raw)
		filters.GuestEmail = &email
	}
	return filters, nil
}

func optionalCents(raw string) (int64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return money.ParseCents(raw)
}
