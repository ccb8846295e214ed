package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"loki-watch/internal/trigger"

	"github.com/cenkalti/backoff/v5"
)

const maxDeliveryAttempts = 4

// Webhook delivers cycle results as JSON POSTs. Delivery is at-least-once:
// transport errors and 5xx responses are retried with exponential backoff,
// 4xx responses are treated as permanent failures.
type Webhook struct {
	client *http.Client
	url    string
}

var _ trigger.Notifier = (*Webhook)(nil)

// NewWebhook creates a webhook notifier for the given endpoint.
func NewWebhook(client *http.Client, url string) *Webhook {
	return &Webhook{client: client, url: url}
}

// Notify posts the cycle result to the webhook endpoint.
func (w *Webhook) Notify(ctx context.Context, result *trigger.CycleResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, w.post(ctx, payload)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(maxDeliveryAttempts))
	if err != nil {
		return fmt.Errorf("webhook delivery to %s failed: %w", w.url, err)
	}
	return nil
}

func (w *Webhook) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return backoff.Permanent(fmt.Errorf("webhook rejected with status %d", resp.StatusCode))
	default:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
}
