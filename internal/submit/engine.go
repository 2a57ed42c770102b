// Package submit drives the last step of a form: the confirm and submit clicks.
package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

var (
	// ErrNoSubmitControl means the page has neither a confirm nor a submit control.
	ErrNoSubmitControl = errors.New("no confirm or submit control on page")
	// ErrNoFinalButton means the confirmation step showed no recognizable send button
	// and no submit selector was resolved to fall back on.
	ErrNoFinalButton = errors.New("no final submit button after confirmation")
)

// Engine runs the submission protocol for a filled form.
type Engine struct {
	cfg     config.SubmitConfig
	network config.NetworkConfig
	logger  *zap.Logger
}

// New creates an Engine from the submit and network configuration.
func New(cfg config.Interface, logger *zap.Logger) *Engine {
	sc := cfg.Submit()
	if sc.LabelPattern == "" {
		sc.LabelPattern = config.DefaultLabelPattern
	}
	return &Engine{
		cfg:     sc,
		network: cfg.Network(),
		logger:  logger.Named("submit"),
	}
}

// Submit clicks through the form's submission flow. The returned result is filled
// in as far as the flow got, even on error.
func (e *Engine) Submit(ctx context.Context, page schemas.Page, m schemas.FieldSelectorMap) (schemas.SubmissionResult, error) {
	result := schemas.SubmissionResult{Shape: SelectShape(m)}

	var err error
	switch result.Shape {
	case schemas.ShapeConfirmThenSubmit:
		err = e.confirmThenSubmit(ctx, page, m, &result)
	case schemas.ShapeDirectSubmit:
		err = e.directSubmit(ctx, page, m, &result)
	default:
		return result, ErrNoSubmitControl
	}
	if err != nil {
		return result, err
	}

	if err := page.Sleep(ctx, e.cfg.SettleDelay); err != nil {
		return result, fmt.Errorf("waiting for submission to settle: %w", err)
	}

	e.logger.Info("Form submitted.",
		zap.String("shape", string(result.Shape)),
		zap.String("final_control", result.FinalControl),
		zap.Bool("label_match", result.LabelMatch),
		zap.Bool("second_click", result.SecondClick),
	)
	return result, nil
}

func (e *Engine) confirmThenSubmit(ctx context.Context, page schemas.Page, m schemas.FieldSelectorMap, result *schemas.SubmissionResult) error {
	if err := page.Click(ctx, m.ConfirmButton); err != nil {
		return fmt.Errorf("clicking confirm button: %w", err)
	}
	if err := page.Sleep(ctx, e.cfg.ConfirmWait); err != nil {
		return err
	}
	e.waitDOMReady(ctx, page)

	final, found, err := page.FindButtonByLabel(ctx, e.cfg.LabelPattern, "")
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("Final button scan failed.", zap.Error(err))
	}

	switch {
	case found:
		if err := page.Click(ctx, final); err != nil {
			return fmt.Errorf("clicking final submit button: %w", err)
		}
		result.FinalControl = final
		result.LabelMatch = true
		return e.waitNetworkIdle(ctx, page)
	case m.SubmitButton != "":
		e.logger.Debug("No labelled final button, retrying the submit selector.", zap.String("selector", m.SubmitButton))
		if err := page.Click(ctx, m.SubmitButton); err != nil {
			return fmt.Errorf("clicking submit button after confirmation: %w", err)
		}
		result.FinalControl = m.SubmitButton
		return nil
	default:
		return ErrNoFinalButton
	}
}

func (e *Engine) directSubmit(ctx context.Context, page schemas.Page, m schemas.FieldSelectorMap, result *schemas.SubmissionResult) error {
	if err := page.Click(ctx, m.SubmitButton); err != nil {
		return fmt.Errorf("clicking submit button: %w", err)
	}
	result.FinalControl = m.SubmitButton
	if err := e.waitNetworkIdle(ctx, page); err != nil {
		return err
	}

	if err := page.Sleep(ctx, e.cfg.RescanDelay); err != nil {
		return err
	}

	// Some forms put up a second "send" or "OK" step after the submit click.
	again, found, err := page.FindButtonByLabel(ctx, e.cfg.LabelPattern, m.SubmitButton)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("Follow-up button scan failed.", zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}
	if err := page.Click(ctx, again); err != nil {
		e.logger.Debug("Follow-up confirmation click failed.", zap.String("selector", again), zap.Error(err))
		return nil
	}
	result.FinalControl = again
	result.LabelMatch = true
	result.SecondClick = true
	return nil
}

// waitDOMReady is tolerant: a form that confirms in place never reloads.
func (e *Engine) waitDOMReady(ctx context.Context, page schemas.Page) {
	readyCtx, cancel := context.WithTimeout(ctx, e.navigationTimeout())
	defer cancel()
	if err := page.WaitDOMReady(readyCtx); err != nil {
		e.logger.Debug("DOM ready wait after confirm did not complete.", zap.Error(err))
	}
}

// waitNetworkIdle bounds the wait by the idle timeout. Only cancellation of ctx is an error.
func (e *Engine) waitNetworkIdle(ctx context.Context, page schemas.Page) error {
	idleCtx, cancel := context.WithTimeout(ctx, e.network.IdleTimeout)
	defer cancel()
	if err := page.WaitNetworkIdle(idleCtx, e.network.QuietPeriod); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("Network did not go idle after submit click.",
			zap.Duration("idle_timeout", e.network.IdleTimeout),
			zap.Error(err),
		)
	}
	return nil
}

func (e *Engine) navigationTimeout() time.Duration {
	if e.network.NavigationTimeout > 0 {
		return e.network.NavigationTimeout
	}
	return 25 * time.Second
}
