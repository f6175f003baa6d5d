package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ///////////////////////////////////////////////
// Payload
// ///////////////////////////////////////////////

// Payload is the JSON body POSTed to each webhook URL.
type Payload struct {
	// ID identifies the event; the same id is recorded in state.json.
	ID string `json:"id"`
	// Event is "sleep" or "wake".
	Event string `json:"event"`
	// Host is the machine's hostname.
	Host string `json:"host"`
	// Time is when the notification was handled, in RFC 3339.
	Time time.Time `json:"time"`
}

// ///////////////////////////////////////////////
// Webhook
// ///////////////////////////////////////////////

// Webhook POSTs a [Payload] to every configured URL.
type Webhook struct {
	urls   []string
	client *retryablehttp.Client
	host   string
	log    *slog.Logger
	now    func() time.Time
}

// WebhookOptions configures [NewWebhook].
type WebhookOptions struct {
	// URLs receive the notifications, in order.
	URLs []string
	// RetryMax is the number of retries after the first attempt.
	RetryMax int
	// Timeout bounds each attempt.
	Timeout time.Duration
	// Log receives per-URL failures. Nil uses slog.Default.
	Log *slog.Logger
}

// NewWebhook returns a Webhook with its own retrying HTTP client.
func NewWebhook(opts WebhookOptions) *Webhook {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &Webhook{
		urls:   opts.URLs,
		client: newHTTPClient(opts.RetryMax, opts.Timeout),
		host:   host,
		log:    opts.Log.With("component", "webhook"),
		now:    time.Now,
	}
}

// newHTTPClient builds the retrying client. Waits between retries are kept
// short because a sleep notification holds up the suspend.
func newHTTPClient(retryMax int, timeout time.Duration) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = retryMax
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = timeout
	c.Logger = nil // suppress retryablehttp's default logging
	return c
}

// NotifySleep implements [power.Hooks].
func (w *Webhook) NotifySleep(ctx context.Context) error {
	return w.send(ctx, EventSleep)
}

// NotifyWake implements [power.Hooks].
func (w *Webhook) NotifyWake(ctx context.Context) error {
	return w.send(ctx, EventWake)
}

// send delivers one payload to every URL, continuing past failures.
func (w *Webhook) send(ctx context.Context, event string) error {
	body, err := json.Marshal(Payload{
		ID:    eventIDOrNew(ctx),
		Event: event,
		Host:  w.host,
		Time:  w.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	var errs []error
	for _, url := range w.urls {
		if err := w.post(ctx, url, body); err != nil {
			w.log.Warn("webhook delivery failed", "url", url, "event", event, "error", err)
			errs = append(errs, fmt.Errorf("webhook %s: %w", url, err))
			continue
		}
		w.log.Debug("webhook delivered", "url", url, "event", event)
	}
	return errors.Join(errs...)
}

func (w *Webhook) post(ctx context.Context, url string, body []byte) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "powerhook")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
