// Package provider implements the commerce data sources the pipeline pulls
// from: the real marketplace APIs and the synthetic generator. All clients
// fetch through the shared rate limiter and response cache and hand back raw
// payload records; normalization happens elsewhere.
package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cpipe/internal/cache"
	"cpipe/internal/model"
	"cpipe/internal/ratelimit"
)

// Error taxonomy for provider fetches. Credential problems skip the provider,
// API errors fail it; neither aborts the run.
var (
	ErrCredentialMissing = errors.New("provider credential missing")
	ErrAPIAuth           = errors.New("api auth error")
	ErrAPIRateLimit      = errors.New("api rate limit hit")
	ErrAPIRequest        = errors.New("api request failed")
)

// Client is one configured provider ready to collect its resources.
type Client interface {
	Name() string
	Collect(ctx context.Context) ([]model.RawRecord, error)
}

// Status tags the outcome of one provider's fetch task.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result is the tagged outcome of one provider fetch. The orchestrator
// aggregates these instead of letting failures propagate across tasks.
type Result struct {
	Provider string
	Status   Status
	Records  []model.RawRecord
	Reason   string // skip reason
	Err      error  // failure cause
}

// Deps are the shared collaborators handed to every client.
type Deps struct {
	HTTPClient *http.Client
	Limiter    *ratelimit.Limiters
	Cache      *cache.Cache
	TTL        time.Duration
	NoCache    bool
	Now        func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}
