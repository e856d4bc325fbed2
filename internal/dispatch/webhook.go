package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"wishwell/internal/wish"
)

// Webhook POSTs enrichment requests to an external processing endpoint.
// Delivery is at-most-once best-effort; no response body is awaited beyond
// the status line.
type Webhook struct {
	endpoint string
	client   *http.Client
}

func NewWebhook(endpoint string, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{endpoint: endpoint, client: client}
}

func (w *Webhook) Dispatch(ctx context.Context, req wish.EnrichmentRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshalling webhook payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Multi fans a dispatch out to several channels. All channels are attempted;
// the first error is reported after the rest have run.
type Multi []wish.Dispatcher

func (m Multi) Dispatch(ctx context.Context, req wish.EnrichmentRequest) error {
	var firstErr error
	for _, d := range m {
		if err := d.Dispatch(ctx, req); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
