package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/xilian/diagnostics-service/internal/models"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	defaultMaxRetries     = 3
)

// WebhookNotifier posts anomaly notifications as JSON to a configured URL,
// retrying transient failures with exponential backoff.
type WebhookNotifier struct {
	url        string
	maxRetries int
	httpClient *http.Client
}

// NewWebhookNotifier creates a webhook-backed notifier
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:        url,
		maxRetries: defaultMaxRetries,
		httpClient: &http.Client{Timeout: defaultWebhookTimeout},
	}
}

// webhookPayload is the JSON body posted to the webhook
type webhookPayload struct {
	Type    string               `json:"type"`
	Anomaly models.AnomalyRecord `json:"anomaly"`
	SentAt  time.Time            `json:"sentAt"`
}

// Notify posts the anomaly, retrying on network errors and 5xx responses
func (n *WebhookNotifier) Notify(ctx context.Context, record models.AnomalyRecord) error {
	body, err := json.Marshal(webhookPayload{
		Type:    "anomaly.detected",
		Anomaly: record,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build alert request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode)

		// 4xx responses will not improve on retry
		if resp.StatusCode < 500 {
			return lastErr
		}
	}
	return fmt.Errorf("alert delivery failed after %d attempts: %w", n.maxRetries+1, lastErr)
}
