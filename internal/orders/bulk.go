package orders

import (
	"context"
	"fmt"

	"github.com/angelmondragon/ordercore/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/angelmondragon/ordercore/pkg/metrics"
	"github.com/google/uuid"
)

// BulkTransitionInput moves many orders to the same status.
type BulkTransitionInput struct {
	OrderIDs []uuid.UUID
	Status   enums.OrderStatus
	Actor    Actor
	Note     string
}

// BulkItemResult is the outcome for one order of a bulk update.
type BulkItemResult struct {
	OrderID        uuid.UUID         `json:"order_id"`
	Success        bool              `json:"success"`
	PreviousStatus enums.OrderStatus `json:"previous_status,omitempty"`
	Error          string            `json:"error,omitempty"`
	Code           pkgerrors.Code    `json:"code,omitempty"`
}

// BulkReport lists per-order outcomes in request order.
type BulkReport struct {
	Status    enums.OrderStatus `json:"status"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Results   []BulkItemResult  `json:"results"`
}

// BulkTransition applies the same transition to each order in its own
// transaction. One order failing never rolls back another. The call fails
// with bulk_no_effect only when nothing changed.
func (s *service) BulkTransition(ctx context.Context, input BulkTransitionInput) (*BulkReport, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown order status %q", input.Status))
	}
	if !input.Actor.IsPrivileged() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only operators may change order status")
	}
	ids := dedupeIDs(input.OrderIDs)
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one order id is required")
	}
	if len(ids) > s.bulkMax {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d orders per request", s.bulkMax))
	}

	report := &BulkReport{Status: input.Status, Results: make([]BulkItemResult, 0, len(ids))}
	for _, id := range ids {
		result := BulkItemResult{OrderID: id}
		_, previous, err := s.transitionOne(ctx, TransitionInput{
			OrderID: id,
			Status:  input.Status,
			Actor:   input.Actor,
			Note:    input.Note,
		})
		result.PreviousStatus = previous
		if err != nil {
			result.Error = err.Error()
			if typed := pkgerrors.As(err); typed != nil {
				result.Code = typed.Code()
				result.Error = typed.Message()
			}
			report.Failed++
			s.metrics.BulkResult(metrics.OutcomeFailure)
			s.logg.Error(s.logg.WithFields(ctx, map[string]any{
				"order_id": id.String(),
				"status":   input.Status,
			}), "bulk transition item failed", err)
		} else {
			result.Success = true
			report.Succeeded++
			s.metrics.BulkResult(metrics.OutcomeSuccess)
		}
		report.Results = append(report.Results, result)
	}

	if report.Succeeded == 0 {
		return report, pkgerrors.New(pkgerrors.CodeConflict, "no order changed state").
			WithReason(pkgerrors.ReasonBulkNoEffect).
			WithDetails(report)
	}
	return report, nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
