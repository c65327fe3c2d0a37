// Package saga runs a fixed sequence of steps, undoing completed steps in
// reverse order when a later one fails.
package saga

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	pkgerrors "github.com/angelmondragon/ordercore/pkg/errors"
	"github.com/angelmondragon/ordercore/pkg/logger"
)

// Step is one unit of work with its compensating action. Compensate may be
// nil for steps that have nothing to undo.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Recorder receives compensation outcomes.
type Recorder interface {
	Compensation(saga, outcome string)
}

const (
	outcomeCompensated = "compensated"
	outcomeFailed      = "failed"
)

// Orchestrator executes the steps of one named saga.
type Orchestrator struct {
	name     string
	steps    []Step
	logg     *logger.Logger
	recorder Recorder
}

func NewOrchestrator(name string, logg *logger.Logger, recorder Recorder, steps ...Step) *Orchestrator {
	return &Orchestrator{name: name, steps: steps, logg: logg, recorder: recorder}
}

// Run executes every step in order. When a step fails the completed steps are
// compensated and the step error is returned. If any compensation fails too,
// the result is a critical dependency error carrying every underlying cause.
func (o *Orchestrator) Run(ctx context.Context) error {
	completed := make([]Step, 0, len(o.steps))
	for _, step := range o.steps {
		if err := step.Execute(ctx); err != nil {
			o.warn(ctx, step.Name, "saga step failed, compensating")
			if compErr := o.rollback(ctx, completed); compErr != nil {
				combined := multierr.Append(err, compErr)
				critical := pkgerrors.Wrap(pkgerrors.CodeDependency, combined,
					fmt.Sprintf("%s: compensation failed after step %q; manual reconciliation required", o.name, step.Name)).
					WithReason(pkgerrors.ReasonCompensationFailed).
					MarkCritical()
				if o.logg != nil {
					o.logg.Error(o.logg.WithField(ctx, "saga", o.name), "saga compensation failed", critical)
				}
				o.record(outcomeFailed)
				return critical
			}
			if len(completed) > 0 {
				o.record(outcomeCompensated)
			}
			return err
		}
		completed = append(completed, step)
	}
	return nil
}

func (o *Orchestrator) rollback(ctx context.Context, completed []Step) error {
	var errs error
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("compensate %s: %w", step.Name, err))
		}
	}
	return errs
}

func (o *Orchestrator) warn(ctx context.Context, step, msg string) {
	if o.logg == nil {
		return
	}
	o.logg.Warn(o.logg.WithFields(ctx, map[string]any{"saga": o.name, "step": step}), msg)
}

func (o *Orchestrator) record(outcome string) {
	if o.recorder != nil {
		o.recorder.Compensation(o.name, outcome)
	}
}
