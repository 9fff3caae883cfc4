package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// WebhookNotifier POSTs each notification as JSON. Bursts beyond the
// limiter are dropped rather than queued.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

func NewWebhookNotifier(url string, every time.Duration, burst int) *WebhookNotifier {
	if every <= 0 {
		every = 2 * time.Second
	}
	if burst <= 0 {
		burst = 5
	}
	return &WebhookNotifier{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Every(every), burst),
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, n Notification) error {
	if !w.limiter.Allow() {
		return fmt.Errorf("%w: webhook rate limited", ErrPresentation)
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPresentation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPresentation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPresentation, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: webhook status %d", ErrPresentation, resp.StatusCode)
	}
	return nil
}
