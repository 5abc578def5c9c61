package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wb-go/wbf/retry"
)

const defaultWebhookTimeout = 10 * time.Second

// Webhook posts events as JSON to a configured URL. Non-2xx responses are
// treated as failures and retried per the strategy.
type Webhook struct {
	url      string
	headers  map[string]string
	client   *http.Client
	strategy retry.Strategy
}

// NewWebhook creates a webhook sink.
func NewWebhook(url string, headers map[string]string, timeout time.Duration, strategy retry.Strategy) *Webhook {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}

	return &Webhook{
		url:      url,
		headers:  headers,
		client:   &http.Client{Timeout: timeout},
		strategy: strategy,
	}
}

// Send delivers one event, retrying transient failures.
func (w *Webhook) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return err
		}

		req.Header.Set("Content-Type", "application/json")
		for k, v := range w.headers {
			req.Header.Set(k, v)
		}

		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}

		return nil
	}, w.strategy)
	if err != nil {
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}

	return nil
}
