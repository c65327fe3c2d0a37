package orders

import (
	"context"
	"testing"

	"github.com/angelmondragon/ordercore/pkg/enums"
	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkTransitionIsolatesFailures(t *testing.T) {
	h := newHarness(t)
	product := h.product(t, 100, 0, 10, true)
	first := h.createOrder(t, CreateItemInput{ProductID: product, Quantity: 1})
	shipped := h.createOrder(t, CreateItemInput{ProductID: product, Quantity: 1})
	h.forceStatus(t, shipped.ID, enums.OrderStatusShipped)
	missing := uuid.New()

	report, err := h.svc.BulkTransition(context.Background(), BulkTransitionInput{
		OrderIDs: []uuid.UUID{first.ID, shipped.ID, first.ID, missing, uuid.Nil},
		Status:   enums.OrderStatusCancelled,
		Actor:    admin,
		Note:     "fraud sweep",
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 2, report.Failed)

	assert.True(t, report.Results[0].Success)
	assert.Equal(t, enums.OrderStatusPending, report.Results[0].PreviousStatus)

	assert.False(t, report.Results[1].Success)
	assert.Equal(t, pkgerrors.CodeConflict, report.Results[1].Code)
	assert.Equal(t, enums.OrderStatusShipped, report.Results[1].PreviousStatus)

	assert.Equal(t, missing, report.Results[2].OrderID)
	assert.Equal(t, pkgerrors.CodeNotFound, report.Results[2].Code)

	assert.Equal(t, enums.OrderStatusCancelled, h.reload(t, first.ID).Status)
	assert.Equal(t, enums.OrderStatusShipped, h.reload(t, shipped.ID).Status)
	assert.Equal(t, 9, h.available(t, product))
	assert.Equal(t, float64(2), counterValue(t, h.reg, "bulk_transition_results_total", map[string]string{"outcome": "failure"}))
}

func TestBulkTransitionWithNoSuccessReturnsReport(t *testing.T) {
	h := newHarness(t)
	product := h.product(t, 100, 0, 10, true)
	order := h.createOrder(t, CreateItemInput{ProductID: product, Quantity: 1})

	report, err := h.svc.BulkTransition(context.Background(), BulkTransitionInput{
		OrderIDs: []uuid.UUID{order.ID},
		Status:   enums.OrderStatusDelivered,
		Actor:    admin,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasReason(err, pkgerrors.ReasonBulkNoEffect))
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Failed)
	assert.Same(t, report, pkgerrors.As(err).Details())
}

func TestBulkTransitionRejectsBadRequests(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.BulkTransition(context.Background(), BulkTransitionInput{Status: enums.OrderStatusProcessing, Actor: admin})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	tooMany := make([]uuid.UUID, 6)
	for i := range tooMany {
		tooMany[i] = uuid.New()
	}
	_, err = h.svc.BulkTransition(context.Background(), BulkTransitionInput{OrderIDs: tooMany, Status: enums.OrderStatusProcessing, Actor: admin})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.BulkTransition(context.Background(), BulkTransitionInput{OrderIDs: tooMany[:1], Status: "lost", Actor: admin})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.BulkTransition(context.Background(), BulkTransitionInput{OrderIDs: tooMany[:1], Status: enums.OrderStatusProcessing, Actor: customer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestDedupeIDsKeepsFirstOccurrence(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, []uuid.UUID{a, b}, dedupeIDs([]uuid.UUID{a, uuid.Nil, b, a, b}))
}
