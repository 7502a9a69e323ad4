package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const sendTimeout = 10 * time.Second

// Notifier posts plain-text operational alerts to an NTFY-style
// endpoint. A nil Notifier or empty endpoint disables delivery.
type Notifier struct {
	endpoint string
	client   *http.Client
}

// New creates a notifier for the given endpoint. Returns nil when the
// endpoint is empty so callers can hold a nil-safe handle.
func New(endpoint string) *Notifier {
	if endpoint == "" {
		return nil
	}
	return &Notifier{endpoint: endpoint, client: &http.Client{Timeout: sendTimeout}}
}

// SessionFailure reports a session whose control-channel recovery gave up.
func (n *Notifier) SessionFailure(ctx context.Context, sessionID string, cause error) error {
	if n == nil {
		return nil
	}
	msg := fmt.Sprintf("browser session %s lost its control channel and recovery gave up: %v", sessionID, cause)
	return Send(ctx, n.client, n.endpoint, msg)
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
