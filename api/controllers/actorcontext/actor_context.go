package actorcontext

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/ordercore/api/middleware"
	"github.com/angelmondragon/ordercore/internal/orders"
	"github.com/angelmondragon/ordercore/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/google/uuid"
)

// ResolveActor turns the authenticated identity into an order actor.
func ResolveActor(r *http.Request) (orders.Actor, error) {
	actor, ok, err := ResolveOptionalActor(r)
	if err != nil {
		return orders.Actor{}, err
	}
	if !ok {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return actor, nil
}

// ResolveOptionalActor reports ok=false for anonymous requests.
func ResolveOptionalActor(r *http.Request) (orders.Actor, bool, error) {
	ctx := r.Context()
	rawUserID := middleware.UserIDFromContext(ctx)
	if rawUserID == "" {
		return orders.Actor{}, false, nil
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return orders.Actor{}, false, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role, err := enums.ParseActorRole(middleware.RoleFromContext(ctx))
	if err != nil {
		return orders.Actor{}, false, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "unknown role")
	}
	return orders.Actor{
		UserID: userID,
		Role:   role,
		Email:  strings.ToLower(strings.TrimSpace(middleware.EmailFromContext(ctx))),
	}, true, nil
}
