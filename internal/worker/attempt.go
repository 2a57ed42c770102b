package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/filler"
	"github.com/xkilldash9x/formpilot/internal/submit"
)

// Attempter runs one navigate, fill and submit cycle on an open page. It records
// the resolved selectors and the submission result into rec as it progresses.
type Attempter interface {
	Attempt(ctx context.Context, page schemas.Page, job *schemas.Target, profile schemas.SenderProfile, rec *schemas.ExecutionAttempt) error
}

// AttemptFunc adapts a function to the Attempter interface.
type AttemptFunc func(ctx context.Context, page schemas.Page, job *schemas.Target, profile schemas.SenderProfile, rec *schemas.ExecutionAttempt) error

func (f AttemptFunc) Attempt(ctx context.Context, page schemas.Page, job *schemas.Target, profile schemas.SenderProfile, rec *schemas.ExecutionAttempt) error {
	return f(ctx, page, job, profile, rec)
}

// PlanApplier applies a fill plan to a page.
type PlanApplier interface {
	Apply(ctx context.Context, page schemas.Page, plan []filler.Action) filler.Report
}

// Submitter runs the submission protocol.
type Submitter interface {
	Submit(ctx context.Context, page schemas.Page, m schemas.FieldSelectorMap) (schemas.SubmissionResult, error)
}

// Pipeline is the production Attempter.
type Pipeline struct {
	resolver  schemas.SelectorResolver
	filler    PlanApplier
	submitter Submitter
	logger    *zap.Logger
}

var _ Attempter = (*Pipeline)(nil)

// NewPipeline wires the resolver, filler and submission engine into an Attempter.
func NewPipeline(resolver schemas.SelectorResolver, applier PlanApplier, submitter Submitter, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		resolver:  resolver,
		filler:    applier,
		submitter: submitter,
		logger:    logger.Named("pipeline"),
	}
}

// Attempt loads the job's page, resolves and prunes its selectors, fills the form and submits it.
func (p *Pipeline) Attempt(ctx context.Context, page schemas.Page, job *schemas.Target, profile schemas.SenderProfile, rec *schemas.ExecutionAttempt) error {
	logger := p.logger.With(zap.String("job_id", job.ID), zap.Int("attempt", rec.Ordinal))

	if err := page.Navigate(ctx, job.URL); err != nil {
		return err
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return err
	}

	selectors, err := p.resolver.Resolve(ctx, html)
	if err != nil {
		return err
	}
	if pruned := selectors.Prune(ctx, page); len(pruned) > 0 {
		logger.Debug("Pruned selectors absent from the page.", zap.Strings("slots", pruned))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.Selectors = selectors

	if !selectors.HasSubmitControl() {
		return submit.ErrNoSubmitControl
	}

	plan := filler.BuildPlan(selectors, profile, *job)
	report := p.filler.Apply(ctx, page, plan)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !report.OK() {
		logger.Info("Some form fields could not be filled.",
			zap.Int("applied", len(report.Applied)),
			zap.Strings("failed_slots", report.FailedSlots()),
		)
	}

	result, err := p.submitter.Submit(ctx, page, selectors)
	rec.Result = result
	if err != nil {
		return fmt.Errorf("submit (%s): %w", result.Shape, err)
	}
	return nil
}
