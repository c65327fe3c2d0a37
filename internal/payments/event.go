package payments

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/ordercore/pkg/enums"
	"github.com/google/uuid"
)

// Message is a transport-neutral delivery from the payment collaborator.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Event is a decoded payment outcome.
type Event struct {
	EventID    string                 `json:"event_id"`
	Type       enums.PaymentEventType `json:"type"`
	OrderID    uuid.UUID              `json:"order_id"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// DecodeEvent reads the JSON body of msg. The event_type and event_id
// attributes fill in fields the body leaves empty; the transport message id
// is the last fallback for the event id.
func DecodeEvent(msg Message) (Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return Event{}, fmt.Errorf("decode payment event: %w", err)
	}
	if event.Type == "" {
		event.Type = enums.PaymentEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	}
	if strings.TrimSpace(event.EventID) == "" {
		event.EventID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	if event.EventID == "" {
		event.EventID = strings.TrimSpace(msg.ID)
	}

	eventType, err := enums.ParsePaymentEventType(string(event.Type))
	if err != nil {
		return Event{}, err
	}
	event.Type = eventType
	if event.OrderID == uuid.Nil {
		return Event{}, fmt.Errorf("payment event %q has no order id", event.EventID)
	}
	if event.EventID == "" {
		return Event{}, fmt.Errorf("payment event for order %s has no event id", event.OrderID)
	}
	return event, nil
}
