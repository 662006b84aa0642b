// Package notify posts completed action results to a configured webhook.
//
// The chat transport that fronts this manager lives outside the process;
// the webhook is how it (or any other collaborator) hears about actions
// finishing without polling. Delivery is fire-and-forget with retries:
// a dead webhook never blocks or fails an action.
package notify

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Event is the payload posted for each completed action.
type Event struct {
	App       string `json:"app"`
	Action    string `json:"action"`
	Outcome   string `json:"outcome"`
	ExitCode  int    `json:"exit_code"`
	TimedOut  bool   `json:"timed_out"`
	Duration  string `json:"duration"`
	Timestamp int64  `json:"timestamp"`
}

// Notifier delivers events to the webhook. A nil Notifier is valid and
// drops everything, so callers never branch on configuration.
type Notifier struct {
	url    string
	client *retryablehttp.Client
	logger *zap.Logger
}

// New creates a notifier, or nil when no webhook is configured.
func New(url string, timeout time.Duration, logger *zap.Logger) *Notifier {
	if url == "" {
		return nil
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil // zap below, not retryablehttp's own logger

	return &Notifier{
		url:    url,
		client: client,
		logger: logger,
	}
}

// Publish delivers the event asynchronously. Failures are logged, never
// returned: notification is best-effort by contract.
func (n *Notifier) Publish(event Event) {
	if n == nil {
		return
	}
	event.Timestamp = time.Now().Unix()

	go func() {
		body, err := json.Marshal(event)
		if err != nil {
			n.logger.Warn("Failed to encode webhook event", zap.Error(err))
			return
		}

		resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(body))
		if err != nil {
			n.logger.Warn("Webhook delivery failed",
				zap.String("url", n.url),
				zap.String("app", event.App),
				zap.Error(err),
			)
			return
		}
		resp.Body.Close()
	}()
}
