// Package pipeline orchestrates one ingestion run: parallel per-provider
// fetches, raw dumps, normalization, a single-threaded merge per entity type,
// persistence and the run log entry. Provider failures degrade the run; they
// never abort it unless strict mode is on.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"cpipe/internal/config"
	"cpipe/internal/merge"
	"cpipe/internal/metrics"
	"cpipe/internal/model"
	"cpipe/internal/normalize"
	"cpipe/internal/provider"
	"cpipe/internal/runlog"
	"cpipe/internal/store"
)

// Options are the per-invocation knobs, resolved from flags by the cmd.
type Options struct {
	RunID     string
	KeyMode   model.KeyMode
	Providers []string // subset filter, empty means all configured
	DryRun    bool
	Offline   bool
	Strict    bool
	Seed      int64
	Timeout   time.Duration
}

// Runner wires one run's collaborators together.
type Runner struct {
	cfg      *config.Config
	opts     Options
	deps     provider.Deps
	datasets *store.Datasets
	log      runlog.Writer
	reg      *metrics.Registry

	// newClient builds the client for one provider name. Tests swap it to
	// inject fakes; the default reads credentials from the environment.
	newClient func(name string) (provider.Client, error)
}

func New(cfg *config.Config, opts Options, deps provider.Deps, datasets *store.Datasets, logw runlog.Writer, reg *metrics.Registry) *Runner {
	r := &Runner{
		cfg:      cfg,
		opts:     opts,
		deps:     deps,
		datasets: datasets,
		log:      logw,
		reg:      reg,
	}
	r.newClient = r.defaultClient
	return r
}

func (r *Runner) now() time.Time {
	if r.deps.Now != nil {
		return r.deps.Now()
	}
	return time.Now()
}

func (r *Runner) defaultClient(name string) (provider.Client, error) {
	p := r.cfg.Providers[name]
	d := r.cfg.Defaults
	if r.opts.Offline || name == "mock" {
		return provider.NewSynthetic(name, r.seedFor(name), p, d, r.now), nil
	}
	switch name {
	case "shopify":
		return provider.NewShopifyFromEnv(r.deps, p, d)
	case "amazon":
		return provider.NewAmazonFromEnv(r.deps, p, d)
	case "ebay":
		return provider.NewEbayFromEnv(r.deps, p, d)
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}

// seedFor derives a per-provider seed so providers generate independent but
// reproducible payloads from one -seed value.
func (r *Runner) seedFor(name string) int64 {
	for i, p := range config.ProviderOrder {
		if p == name {
			return r.opts.Seed + int64(i)
		}
	}
	return r.opts.Seed
}

// Run executes one pipeline run and returns its log entry. The entry is valid
// even when err is non-nil: it carries the aborted/failed status that was (or
// would have been) logged.
func (r *Runner) Run(ctx context.Context) (runlog.Entry, error) {
	started := r.now()
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	entry := runlog.Entry{
		RunID:     r.opts.RunID,
		StartedAt: started.UTC(),
		KeyMode:   string(r.opts.KeyMode),
	}
	enabled := r.cfg.Enabled(r.opts.Providers)
	if len(enabled) == 0 {
		return r.finish(entry, started, runlog.StatusFailed, errors.New("no providers enabled"))
	}
	entry.Providers = enabled

	results := r.fetch(ctx, enabled)

	var products []model.Product
	var orders []model.Order
	okCount := 0
	for _, res := range results {
		switch res.Status {
		case provider.StatusSkipped:
			entry.ProvidersSkipped = append(entry.ProvidersSkipped, res.Provider)
			log.Printf("[warn] provider %s skipped: %s", res.Provider, res.Reason)
		case provider.StatusFailed:
			entry.ProvidersFailed = append(entry.ProvidersFailed, res.Provider)
			entry.Errors = append(entry.Errors, fmt.Sprintf("%s: %v", res.Provider, res.Err))
			if r.reg != nil {
				r.reg.FetchErrors.WithLabelValues(res.Provider).Inc()
			}
			log.Printf("[warn] provider %s failed: %v", res.Provider, res.Err)
		case provider.StatusOK:
			okCount++
			p, o, err := r.ingest(res, &entry)
			if err != nil {
				return r.finish(entry, started, runlog.StatusAborted, err)
			}
			products = append(products, p...)
			orders = append(orders, o...)
		}
	}

	if err := ctx.Err(); err != nil {
		return r.finish(entry, started, runlog.StatusAborted, fmt.Errorf("run deadline: %w", err))
	}

	existingProducts, err := r.datasets.LoadProducts()
	if err != nil {
		return r.finish(entry, started, runlog.StatusFailed, err)
	}
	existingOrders, err := r.datasets.LoadOrders()
	if err != nil {
		return r.finish(entry, started, runlog.StatusFailed, err)
	}

	mergedProducts, pm := merge.Merge(existingProducts, products, r.opts.KeyMode)
	mergedOrders, om := merge.Merge(existingOrders, orders, r.opts.KeyMode)

	entry.NewProducts, entry.UpdatedProducts = pm.New, pm.Updated
	entry.NewOrders, entry.UpdatedOrders = om.New, om.Updated

	if !r.opts.DryRun {
		if pm.Changed() {
			if err := r.datasets.SaveProducts(mergedProducts); err != nil {
				return r.finish(entry, started, runlog.StatusFailed, err)
			}
		}
		if om.Changed() {
			if err := r.datasets.SaveOrders(mergedOrders); err != nil {
				return r.finish(entry, started, runlog.StatusFailed, err)
			}
		}
		if pm.Changed() || om.Changed() {
			if err := r.datasets.WriteManifest(r.opts.RunID, len(mergedProducts), len(mergedOrders), r.now()); err != nil {
				return r.finish(entry, started, runlog.StatusFailed, err)
			}
		}
	}

	status := runlog.StatusSuccess
	if len(entry.ProvidersFailed) > 0 || len(entry.Errors) > 0 {
		status = runlog.StatusPartial
	}
	if okCount == 0 && len(entry.ProvidersFailed) > 0 {
		status = runlog.StatusFailed
	}
	return r.finish(entry, started, status, nil)
}

// fetch collects all providers in parallel. Results keep the deterministic
// provider order regardless of completion order.
func (r *Runner) fetch(ctx context.Context, enabled []string) []provider.Result {
	results := make([]provider.Result, len(enabled))
	var wg sync.WaitGroup
	for i, name := range enabled {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = r.collectOne(ctx, name)
		}(i, name)
	}
	wg.Wait()
	return results
}

func (r *Runner) collectOne(ctx context.Context, name string) provider.Result {
	client, err := r.newClient(name)
	if err != nil {
		if errors.Is(err, provider.ErrCredentialMissing) {
			return provider.Result{Provider: name, Status: provider.StatusSkipped, Reason: err.Error()}
		}
		return provider.Result{Provider: name, Status: provider.StatusFailed, Err: err}
	}
	records, err := client.Collect(ctx)
	if err != nil {
		return provider.Result{Provider: name, Status: provider.StatusFailed, Err: err}
	}
	return provider.Result{Provider: name, Status: provider.StatusOK, Records: records}
}

// ingest dumps and normalizes one provider's records. The returned error is
// only non-nil in strict mode or on a disk failure; otherwise bad records are
// skipped and counted.
func (r *Runner) ingest(res provider.Result, entry *runlog.Entry) ([]model.Product, []model.Order, error) {
	var products []model.Product
	var orders []model.Order
	for _, rec := range res.Records {
		if !r.opts.DryRun {
			path, err := store.DumpRaw(r.datasets.Root(), rec, r.opts.RunID, r.now())
			if err != nil {
				return nil, nil, fmt.Errorf("dump raw %s/%s: %w", rec.Provider, rec.Resource, err)
			}
			rec.RawFile = path
			entry.RawFiles++
		}

		p, o, violations, err := normalize.Record(rec, r.now())
		if err != nil {
			if r.opts.Strict {
				return nil, nil, err
			}
			entry.Errors = append(entry.Errors, err.Error())
			log.Printf("[warn] %v", err)
			continue
		}
		if len(violations) > 0 {
			if r.opts.Strict {
				return nil, nil, violations[0]
			}
			entry.SkippedRecords += len(violations)
			if r.reg != nil {
				r.reg.RecordsSkipped.Add(float64(len(violations)))
			}
			for _, v := range violations {
				log.Printf("[warn] skipping record: %v", v)
			}
		}
		products = append(products, p...)
		orders = append(orders, o...)
	}
	return products, orders, nil
}

// finish stamps the entry, appends it to the run log (except in dry runs) and
// updates the metrics.
func (r *Runner) finish(entry runlog.Entry, started time.Time, status string, cause error) (runlog.Entry, error) {
	if cause != nil {
		entry.Errors = append(entry.Errors, cause.Error())
	}
	entry.Status = status
	finished := r.now()
	entry.FinishedAt = finished.UTC()
	entry.DurationMS = finished.Sub(started).Milliseconds()

	if r.reg != nil {
		r.reg.RunsTotal.WithLabelValues(status).Inc()
		r.reg.RunDurationSec.Observe(finished.Sub(started).Seconds())
		r.reg.NewProducts.Add(float64(entry.NewProducts))
		r.reg.UpdatedProducts.Add(float64(entry.UpdatedProducts))
		r.reg.NewOrders.Add(float64(entry.NewOrders))
		r.reg.UpdatedOrders.Add(float64(entry.UpdatedOrders))
	}
	if !r.opts.DryRun && r.log != nil {
		if err := r.log.Append(entry); err != nil {
			if cause == nil {
				cause = fmt.Errorf("append run log: %w", err)
			} else {
				log.Printf("[warn] append run log: %v", err)
			}
		}
	}
	return entry, cause
}
