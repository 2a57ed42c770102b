package browser

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/browser/stealth"
	"github.com/xkilldash9x/formpilot/internal/config"
)

const defaultCloseTimeout = 10 * time.Second

// Launcher starts one fresh Chrome process per session, so no cookies, storage or
// cache leak between attempts.
type Launcher struct {
	browserCfg config.BrowserConfig
	networkCfg config.NetworkConfig
	persona    stealth.Persona
	opts       []chromedp.ExecAllocatorOption
	logger     *zap.Logger

	opened atomic.Int64
	closed atomic.Int64
}

var _ schemas.SessionFactory = (*Launcher)(nil)

// NewLauncher builds a launcher from the browser and network configuration.
func NewLauncher(cfg config.Interface, logger *zap.Logger) *Launcher {
	browserCfg := cfg.Browser()
	return &Launcher{
		browserCfg: browserCfg,
		networkCfg: cfg.Network(),
		persona:    stealth.PersonaFromConfig(browserCfg),
		opts:       DefaultAllocatorOptions(browserCfg),
		logger:     logger.Named("browser"),
	}
}

// Open launches a browser, applies the stealth persona and returns the ready session.
// ctx bounds the startup only; the session lives until Close.
func (l *Launcher) Open(ctx context.Context) (schemas.Session, error) {
	id := uuid.NewString()
	logger := l.logger.With(zap.String("session_id", id))

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), l.opts...)

	sugar := logger.Sugar()
	ctxOpts := []chromedp.ContextOption{
		chromedp.WithLogf(sugar.Debugf),
		// cdproto reports unknown events as errors; they are noise for form filling.
		chromedp.WithErrorf(sugar.Debugf),
	}
	if l.browserCfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(sugar.Debugf))
	}
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	tracker := newNetworkTracker()
	chromedp.ListenTarget(browserCtx, tracker.handle)

	stealthTasks, err := stealth.Apply(l.persona, logger)
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}

	// The first Run starts the browser and must use the browser context itself,
	// otherwise chromedp ties the browser lifetime to the derived context.
	stop := context.AfterFunc(ctx, browserCancel)
	err = chromedp.Run(browserCtx, network.Enable(), stealthTasks)
	stopped := stop()
	if err != nil || !stopped {
		browserCancel()
		allocCancel()
		if err == nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	closeTimeout := l.browserCfg.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = defaultCloseTimeout
	}

	s := &Session{
		id:         id,
		ctx:        browserCtx,
		tracker:    tracker,
		navTimeout: l.networkCfg.NavigationTimeout,
		logger:     logger,
	}
	s.release = func(ctx context.Context) error {
		defer l.closed.Add(1)
		err := closeBrowser(ctx, browserCtx, closeTimeout)
		browserCancel()
		// Cancelling the allocator kills the process if it is still alive and removes the profile dir.
		allocCancel()
		if err != nil {
			logger.Warn("Browser did not shut down cleanly.", zap.Error(err))
		} else {
			logger.Debug("Browser session closed.")
		}
		return err
	}

	l.opened.Add(1)
	logger.Debug("Browser session opened.")
	return s, nil
}

// closeBrowser asks Chrome to exit and waits at most timeout for it.
func closeBrowser(ctx, browserCtx context.Context, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(browserCtx) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("browser close timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the number of sessions opened and closed so far.
func (l *Launcher) Stats() (opened, closed int64) {
	return l.opened.Load(), l.closed.Load()
}
