package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// webhookPayload is the JSON body posted on batch completion.
type webhookPayload struct {
	Event       string    `json:"event"`
	OwnerID     string    `json:"owner_id"`
	Batch       string    `json:"batch"`
	Total       int       `json:"total"`
	Succeeded   int       `json:"succeeded"`
	Errored     int       `json:"errored"`
	ProfileName string    `json:"profile_name"`
	MessageBody string    `json:"message_body"`
	FinishedAt  time.Time `json:"finished_at"`
}

// WebhookNotifier posts batch reports as JSON to a URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookNotifier creates a webhook notifier from the notify configuration.
func NewWebhookNotifier(cfg config.NotifyConfig, logger *zap.Logger) *WebhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("webhook"),
	}
}

func (n *WebhookNotifier) BatchCompleted(ctx context.Context, r schemas.BatchReport) error {
	body, err := json.Marshal(webhookPayload{
		Event:       "batch.completed",
		OwnerID:     r.Summary.OwnerID,
		Batch:       r.Summary.PackageName,
		Total:       r.Summary.Total,
		Succeeded:   r.Summary.Completed,
		Errored:     r.Summary.Errored,
		ProfileName: r.ProfileName,
		MessageBody: r.MessageBody,
		FinishedAt:  r.FinishedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	n.logger.Debug("Batch report delivered.", zap.String("batch", r.Summary.PackageName), zap.Int("status", resp.StatusCode))
	return nil
}
