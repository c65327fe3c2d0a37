package orders

import (
	"strings"

	"github.com/angelmondragon/ordercore/pkg/db/models"
	"github.com/angelmondragon/ordercore/pkg/enums"
	"github.com/angelmondragon/ordercore/pkg/outbox"
	"github.com/google/uuid"
)

// Actor is whoever asked for a change: an authenticated customer, an admin,
// or an internal process such as the payment consumer.
type Actor struct {
	UserID uuid.UUID
	Email  string
	Role   enums.ActorRole
	// Name overrides the history label for system actors, e.g. "payment".
	Name string
}

// SystemActor returns an internal, privileged actor labelled name.
func SystemActor(name string) Actor {
	return Actor{Role: enums.ActorRoleSystem, Name: name}
}

// Label is the value recorded in status history and processedBy fields.
func (a Actor) Label() string {
	switch {
	case a.Name != "":
		return a.Name
	case a.UserID != uuid.Nil:
		return a.UserID.String()
	case a.Email != "":
		return strings.ToLower(a.Email)
	default:
		return string(enums.ActorRoleSystem)
	}
}

// IsPrivileged reports whether the actor may act on orders it does not own.
func (a Actor) IsPrivileged() bool {
	return a.Role.IsPrivileged()
}

// Owns reports whether order belongs to the actor, either through the user id
// or a case-insensitive guest email match.
func (a Actor) Owns(order *models.Order) bool {
	if order == nil {
		return false
	}
	if order.UserID != nil && a.UserID != uuid.Nil && *order.UserID == a.UserID {
		return true
	}
	if order.GuestEmail != nil && a.Email != "" && strings.EqualFold(*order.GuestEmail, strings.TrimSpace(a.Email)) {
		return true
	}
	return false
}

// CanView reports whether the actor may read or act on order as its owner.
func (a Actor) CanView(order *models.Order) bool {
	return a.IsPrivileged() || a.Owns(order)
}

// Ref is the actor as recorded on outbox events.
func (a Actor) Ref() *outbox.ActorRef {
	return &outbox.ActorRef{ID: a.Label(), Role: string(a.Role)}
}
