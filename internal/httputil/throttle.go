// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across stages.
package httputil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/pubmed-digest/pkg/types"
)

// Throttled issues GET requests no closer together than a fixed interval.
// It does not retry: a failed request is returned to the caller as is.
type Throttled struct {
	Client    *http.Client
	UserAgent string

	limiter *rate.Limiter
}

// NewThrottled wraps client with a limiter that admits one request per
// interval. A zero interval disables throttling.
func NewThrottled(client *http.Client, userAgent string, interval time.Duration) *Throttled {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Throttled{
		Client:    client,
		UserAgent: userAgent,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// Get waits for the limiter, fetches url under a per-request timeout, and
// returns the body. Any transport failure or non-200 status is wrapped in
// types.ErrNetwork.
func (t *Throttled) Get(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: waiting for rate limiter: %v", types.ErrNetwork, err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: HTTP %d from %s", types.ErrNetwork, resp.StatusCode, req.URL.Path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", types.ErrNetwork, err)
	}
	return body, nil
}
