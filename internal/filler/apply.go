package filler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

const (
	defaultActionTimeout = 5 * time.Second
	defaultPostFillPause = time.Second
)

// Failure records an action that could not be completed.
type Failure struct {
	Action Action
	Err    error
}

// Report summarizes a best-effort plan application.
type Report struct {
	Applied  []Action
	Failures []Failure
}

// OK reports whether every action succeeded.
func (r Report) OK() bool { return len(r.Failures) == 0 }

// FailedSlots lists the slots of the failed actions in plan order.
func (r Report) FailedSlots() []string {
	slots := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		slots = append(slots, f.Action.Slot)
	}
	return slots
}

// Filler applies plans to a page.
type Filler struct {
	actionTimeout time.Duration
	postFillPause time.Duration
	logger        *zap.Logger
}

// New creates a Filler from the engine and submit configuration.
func New(cfg config.Interface, logger *zap.Logger) *Filler {
	f := &Filler{
		actionTimeout: cfg.Engine().ActionTimeout,
		postFillPause: cfg.Submit().PostFillPause,
		logger:        logger.Named("filler"),
	}
	if f.actionTimeout <= 0 {
		f.actionTimeout = defaultActionTimeout
	}
	if f.postFillPause < 0 {
		f.postFillPause = defaultPostFillPause
	}
	return f
}

// Apply runs every action of plan with its own timeout. A failed action is recorded
// and the next one is attempted; only cancellation of ctx stops the run early.
func (f *Filler) Apply(ctx context.Context, page schemas.Page, plan []Action) Report {
	var report Report
	for i, action := range plan {
		if err := ctx.Err(); err != nil {
			for _, rest := range plan[i:] {
				report.Failures = append(report.Failures, Failure{Action: rest, Err: err})
			}
			return report
		}

		actionCtx, cancel := context.WithTimeout(ctx, f.actionTimeout)
		err := f.apply(actionCtx, page, action)
		cancel()

		if err != nil {
			f.logger.Debug("Form action failed.",
				zap.String("slot", action.Slot),
				zap.String("op", string(action.Op)),
				zap.String("selector", action.Selector),
				zap.Error(err),
			)
			report.Failures = append(report.Failures, Failure{Action: action, Err: err})
			continue
		}
		report.Applied = append(report.Applied, action)
	}

	if f.postFillPause > 0 {
		_ = page.Sleep(ctx, f.postFillPause)
	}
	return report
}

func (f *Filler) apply(ctx context.Context, page schemas.Page, a Action) error {
	if a.Slot == schemas.SlotInquiryCategory {
		return f.applyCategory(ctx, page, a)
	}

	switch a.Op {
	case OpFill:
		return page.Fill(ctx, a.Selector, a.Value)
	case OpSelect:
		return page.SelectOption(ctx, a.Selector, a.Value)
	case OpClick:
		return page.Click(ctx, a.Selector)
	case OpCheck:
		err := page.Check(ctx, a.Selector)
		if err == nil {
			return nil
		}
		// Styled agreement widgets often hide the real input behind a label or div.
		if clickErr := page.Click(ctx, a.Selector); clickErr != nil {
			return errors.Join(err, clickErr)
		}
		return nil
	default:
		return fmt.Errorf("unknown action op %q", a.Op)
	}
}

// applyCategory picks select or click from the live element kind.
func (f *Filler) applyCategory(ctx context.Context, page schemas.Page, a Action) error {
	kind, err := page.ElementKind(ctx, a.Selector)
	if err != nil {
		return err
	}
	switch {
	case kind == schemas.KindMissing:
		return fmt.Errorf("%w: %s", schemas.ErrElementNotFound, a.Selector)
	case kind == schemas.KindSelect:
		if a.Value == "" {
			return fmt.Errorf("no category value for select %s", a.Selector)
		}
		return page.SelectOption(ctx, a.Selector, a.Value)
	case kind.Toggle():
		if err := page.Check(ctx, a.Selector); err == nil {
			return nil
		}
		return page.Click(ctx, a.Selector)
	default:
		return page.Click(ctx, a.Selector)
	}
}
