package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
)

type recorderStub struct {
	outcomes []string
}

func (r *recorderStub) Compensation(_ string, outcome string) {
	r.outcomes = append(r.outcomes, outcome)
}

func TestRunExecutesAllSteps(t *testing.T) {
	var calls []string
	o := NewOrchestrator("test", nil, nil,
		Step{Name: "a", Execute: func(context.Context) error { calls = append(calls, "a"); return nil }},
		Step{Name: "b", Execute: func(context.Context) error { calls = append(calls, "b"); return nil }},
	)
	require.NoError(t, o.Run(context.Background()))
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestRunCompensatesInReverseOrder(t *testing.T) {
	var calls []string
	stepErr := errors.New("step c failed")
	rec := &recorderStub{}
	o := NewOrchestrator("test", nil, rec,
		Step{
			Name:       "a",
			Execute:    func(context.Context) error { return nil },
			Compensate: func(context.Context) error { calls = append(calls, "undo a"); return nil },
		},
		Step{
			Name:       "b",
			Execute:    func(context.Context) error { return nil },
			Compensate: func(context.Context) error { calls = append(calls, "undo b"); return nil },
		},
		Step{
			Name:       "c",
			Execute:    func(context.Context) error { return stepErr },
			Compensate: func(context.Context) error { calls = append(calls, "undo c"); return nil },
		},
	)

	err := o.Run(context.Background())
	assert.ErrorIs(t, err, stepErr)
	assert.Equal(t, []string{"undo b", "undo a"}, calls)
	assert.Equal(t, []string{"compensated"}, rec.outcomes)
}

func TestRunSurfacesCompensationFailureAsCritical(t *testing.T) {
	stepErr := errors.New("update parent failed")
	compErr := errors.New("delete child failed")
	rec := &recorderStub{}
	o := NewOrchestrator("order_split", nil, rec,
		Step{
			Name:       "create_child",
			Execute:    func(context.Context) error { return nil },
			Compensate: func(context.Context) error { return compErr },
		},
		Step{
			Name:    "update_parent",
			Execute: func(context.Context) error { return stepErr },
		},
	)

	err := o.Run(context.Background())
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeDependency, typed.Code())
	assert.Equal(t, pkgerrors.ReasonCompensationFailed, typed.Reason())
	assert.True(t, typed.Critical())
	assert.ErrorIs(t, err, stepErr)
	assert.ErrorIs(t, err, compErr)
	assert.Len(t, multierr.Errors(errors.Unwrap(err)), 2)
	assert.Equal(t, []string{"failed"}, rec.outcomes)
}

func TestRunFirstStepFailureSkipsCompensation(t *testing.T) {
	rec := &recorderStub{}
	o := NewOrchestrator("test", nil, rec, Step{
		Name:       "only",
		Execute:    func(context.Context) error { return errors.New("boom") },
		Compensate: func(context.Context) error { t.Fatal("should not compensate"); return nil },
	})
	assert.EqualError(t, o.Run(context.Background()), "boom")
	assert.Empty(t, rec.outcomes)
}
