// Package notify delivers batch completion reports.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// LogNotifier writes batch reports to the log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a notifier that logs at info level.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) BatchCompleted(_ context.Context, r schemas.BatchReport) error {
	n.logger.Info("Batch completed.",
		zap.String("owner_id", r.Summary.OwnerID),
		zap.String("batch", r.Summary.PackageName),
		zap.Int("total", r.Summary.Total),
		zap.Int("succeeded", r.Summary.Completed),
		zap.Int("errored", r.Summary.Errored),
		zap.String("profile", r.ProfileName),
		zap.Time("finished_at", r.FinishedAt),
	)
	return nil
}

// Multi fans a report out to several notifiers. Every notifier is called; the
// errors are joined.
type Multi []schemas.Notifier

func (m Multi) BatchCompleted(ctx context.Context, r schemas.BatchReport) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.BatchCompleted(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ schemas.Notifier = (*LogNotifier)(nil)
	_ schemas.Notifier = (*WebhookNotifier)(nil)
	_ schemas.Notifier = Multi(nil)
)
