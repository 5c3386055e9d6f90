package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// backoff between retry attempts. Swapped in tests to keep them fast.
var backoff = func(attempt int) time.Duration {
	return time.Duration(attempt) * 500 * time.Millisecond
}

const maxAttempts = 3

// httpCore is the shared HTTP plumbing: rate-limited requests with retries on
// transient failures and mapping of status codes onto the error taxonomy.
type httpCore struct {
	deps     Deps
	provider string
}

func newHTTPCore(deps Deps, provider string) *httpCore {
	return &httpCore{deps: deps, provider: provider}
}

func (c *httpCore) getJSON(ctx context.Context, rawURL string, params url.Values, header http.Header) (json.RawMessage, error) {
	if len(params) > 0 {
		rawURL = rawURL + "?" + params.Encode()
	}
	return c.doJSON(ctx, http.MethodGet, rawURL, nil, header)
}

func (c *httpCore) postJSON(ctx context.Context, rawURL string, body []byte, header http.Header) (json.RawMessage, error) {
	return c.doJSON(ctx, http.MethodPost, rawURL, body, header)
}

func (c *httpCore) doJSON(ctx context.Context, method, rawURL string, body []byte, header http.Header) (json.RawMessage, error) {
	var lastErr error
	waited := false
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 && !waited {
			select {
			case <-time.After(backoff(attempt - 1)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		waited = false
		if err := c.deps.Limiter.Acquire(ctx, c.provider); err != nil {
			return nil, err
		}

		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "application/json")
		}

		resp, err := c.deps.httpClient().Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrAPIRequest, err)
			continue
		}
		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w: status %d: %s", ErrAPIAuth, resp.StatusCode, truncate(respBody))
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: status 429: %s", ErrAPIRateLimit, truncate(respBody))
			if attempt < maxAttempts {
				if wait := retryAfter(resp); wait > 0 {
					select {
					case <-time.After(wait):
					case <-ctx.Done():
						return nil, ctx.Err()
					}
				}
				// Retry-After already paced this retry; skip the backoff sleep.
				waited = true
			}
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("%w: status %d: %s", ErrAPIRequest, resp.StatusCode, truncate(respBody))
			continue
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("%w: status %d: %s", ErrAPIRequest, resp.StatusCode, truncate(respBody))
		}
		if readErr != nil {
			lastErr = fmt.Errorf("%w: read body: %v", ErrAPIRequest, readErr)
			continue
		}
		if !json.Valid(respBody) {
			return nil, fmt.Errorf("%w: response is not valid JSON", ErrAPIRequest)
		}
		return json.RawMessage(respBody), nil
	}
	return nil, lastErr
}

// retryAfter parses the Retry-After header. Missing or unparsable falls back
// to one second; an explicit 0 means retry immediately.
func retryAfter(resp *http.Response) time.Duration {
	s, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || s < 0 {
		return time.Second
	}
	return time.Duration(s) * time.Second
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max])
	}
	return string(b)
}
