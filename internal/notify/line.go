package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultLineEndpoint is the LINE Notify API.
const DefaultLineEndpoint = "https://notify-api.line.me/api/notify"

// LineTransport posts messages to LINE Notify; the recipient is the user's access token.
type LineTransport struct {
	endpoint   string
	httpClient *http.Client
}

func NewLineTransport(endpoint string, timeout time.Duration) *LineTransport {
	if endpoint == "" {
		endpoint = DefaultLineEndpoint
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LineTransport{endpoint: endpoint, httpClient: &http.Client{Timeout: timeout}}
}

func (t *LineTransport) Deliver(ctx context.Context, recipient, message string) error {
	form := url.Values{}
	form.Set("message", "\n"+message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("line: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+recipient)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("line: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("line: http status %d", resp.StatusCode)
	}
	return nil
}
