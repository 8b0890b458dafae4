// Package netx contains the connectivity check used by the network monitor.
package netx

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPPinger checks reachability of the hosted backend with a GET request.
// Any transport error or 5xx response counts as offline.
type HTTPPinger struct {
	client *resty.Client
	path   string
}

// NewHTTPPinger builds a pinger against baseURL+path. apiKey, when set, is sent
// as the "apikey" header (the hosted gateway rejects anonymous requests).
func NewHTTPPinger(baseURL, path, apiKey string, timeout time.Duration) *HTTPPinger {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	if apiKey != "" {
		c.SetHeader("apikey", apiKey)
	}
	return &HTTPPinger{client: c, path: path}
}

// Ping returns nil when the backend answered.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	resp, err := p.client.R().SetContext(ctx).Get(p.path)
	if err != nil {
		return fmt.Errorf("ping %s: %w", p.path, err)
	}
	if resp.StatusCode() >= 500 {
		return fmt.Errorf("ping %s: status %s", p.path, resp.Status())
	}
	return nil
}
