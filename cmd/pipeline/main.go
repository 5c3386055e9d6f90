package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"cpipe/internal/cache"
	"cpipe/internal/config"
	"cpipe/internal/metrics"
	"cpipe/internal/model"
	"cpipe/internal/pipeline"
	"cpipe/internal/provider"
	"cpipe/internal/ratelimit"
	"cpipe/internal/runlog"
	"cpipe/internal/store"
)

// Config holds CLI flags for one pipeline invocation.
type Config struct {
	ConfigPath    string
	Providers     string // comma-separated subset
	RunID         string
	KeyMode       string
	Limit         int
	TTL           time.Duration
	NoCache       bool
	DryRun        bool
	Offline       bool
	Strict        bool
	Seed          int64
	Timeout       time.Duration
	DataRoot      string
	DatasetFormat string
	CacheBackend  string
	CacheRoot     string
	RunlogSink    string
	Bootstrap     string
	HTTPAddr      string
	Verbose       bool
}

func main() {
	cfg := readFlags()
	if err := run(cfg); err != nil {
		log.Fatalf("pipeline failed: %v", err)
	}
}

func readFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.ConfigPath, "config", "", "config file path (default: config/pipeline.yaml)")
	flag.StringVar(&cfg.Providers, "providers", "", "comma-separated provider subset, empty means all configured")
	flag.StringVar(&cfg.RunID, "run-id", "auto", "run identifier, auto generates one")
	flag.StringVar(&cfg.KeyMode, "key-mode", "triple", "dedup key mode: triple|pair")
	flag.IntVar(&cfg.Limit, "limit", 0, "override per-resource fetch limit")
	flag.DurationVar(&cfg.TTL, "ttl", 0, "override response cache TTL, 0 keeps the configured value")
	flag.BoolVar(&cfg.NoCache, "no-cache", false, "bypass cache lookups (responses are still stored)")
	flag.BoolVar(&cfg.DryRun, "dry-run", false, "fetch and merge but write nothing")
	flag.BoolVar(&cfg.Offline, "offline", false, "use the synthetic generator for every provider")
	flag.BoolVar(&cfg.Strict, "strict", false, "abort the run on the first schema violation")
	flag.Int64Var(&cfg.Seed, "seed", 0, "seed for the synthetic generator")
	flag.DurationVar(&cfg.Timeout, "timeout", 0, "run deadline, 0 disables it")
	flag.StringVar(&cfg.DataRoot, "data-root", "", "override data root directory")
	flag.StringVar(&cfg.DatasetFormat, "dataset-format", "parquet", "dataset format: parquet|jsonl")
	flag.StringVar(&cfg.CacheBackend, "cache-backend", "", "override cache backend: fs|pebble")
	flag.StringVar(&cfg.CacheRoot, "cache-root", "", "override cache root directory")
	flag.StringVar(&cfg.RunlogSink, "runlog-sink", "", "override run log sink: file|kafka|both")
	flag.StringVar(&cfg.Bootstrap, "kafka-bootstrap", "", "kafka bootstrap servers for the run log sink")
	flag.StringVar(&cfg.HTTPAddr, "http", "", "http listen for /metrics, empty disables the endpoint")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "print the run log entry as JSON")
	flag.Parse()
	return cfg
}

func run(cfg Config) error {
	conf, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return err
	}
	applyOverrides(conf, cfg)

	keyMode, err := model.ParseKeyMode(cfg.KeyMode)
	if err != nil {
		return err
	}
	format, err := store.ParseFormat(cfg.DatasetFormat)
	if err != nil {
		return err
	}
	runID := cfg.RunID
	if runID == "auto" {
		runID = strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	}

	cacheStore, err := openCacheStore(conf)
	if err != nil {
		return err
	}
	defer cacheStore.Close()
	respCache := cache.New(cacheStore)

	reg := metrics.NewRegistry()
	respCache.OnLookup = func(p string, hit bool) {
		if hit {
			reg.CacheHits.WithLabelValues(p).Inc()
		} else {
			reg.CacheMisses.WithLabelValues(p).Inc()
		}
	}
	if cfg.HTTPAddr != "" {
		go func() {
			http.Handle("/metrics", reg.Handler())
			if err := http.ListenAndServe(cfg.HTTPAddr, nil); err != nil {
				log.Printf("[warn] metrics endpoint: %v", err)
			}
		}()
	}

	limits := map[string]ratelimit.Limit{}
	for name, p := range conf.Providers {
		limits[name] = ratelimit.Limit{RPS: p.RPS, Burst: p.Burst}
	}

	logw, err := buildRunLog(conf)
	if err != nil {
		return err
	}

	deps := provider.Deps{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Limiter:    ratelimit.New(limits),
		Cache:      respCache,
		TTL:        conf.Defaults.CacheTTL,
		NoCache:    cfg.NoCache,
	}
	opts := pipeline.Options{
		RunID:     runID,
		KeyMode:   keyMode,
		Providers: splitCSV(cfg.Providers),
		DryRun:    cfg.DryRun,
		Offline:   cfg.Offline,
		Strict:    cfg.Strict,
		Seed:      cfg.Seed,
		Timeout:   cfg.Timeout,
	}
	datasets := store.NewDatasets(conf.DataRoot, format)

	log.Printf("starting run %s providers=%v key-mode=%s dry-run=%v offline=%v",
		runID, conf.Enabled(opts.Providers), keyMode, cfg.DryRun, cfg.Offline)

	entry, err := pipeline.New(conf, opts, deps, datasets, logw, reg).Run(context.Background())
	if cfg.Verbose {
		if b, merr := json.MarshalIndent(&entry, "", "  "); merr == nil {
			fmt.Fprintln(os.Stderr, string(b))
		}
	}
	if err != nil {
		return err
	}
	log.Printf("run %s finished status=%s products=%d new/%d updated orders=%d new/%d updated raw-files=%d in %dms",
		entry.RunID, entry.Status, entry.NewProducts, entry.UpdatedProducts,
		entry.NewOrders, entry.UpdatedOrders, entry.RawFiles, entry.DurationMS)
	return nil
}

func applyOverrides(conf *config.Config, cfg Config) {
	if cfg.DataRoot != "" {
		conf.DataRoot = cfg.DataRoot
	}
	if cfg.CacheBackend != "" {
		conf.Cache.Backend = cfg.CacheBackend
	}
	if cfg.CacheRoot != "" {
		conf.Cache.Root = cfg.CacheRoot
	}
	if cfg.RunlogSink != "" {
		conf.RunLog.Sink = cfg.RunlogSink
	}
	if cfg.Bootstrap != "" {
		conf.RunLog.KafkaBootstrap = cfg.Bootstrap
	}
	if cfg.Limit > 0 {
		conf.ForceLimit(cfg.Limit)
	}
	if cfg.TTL > 0 {
		conf.Defaults.CacheTTL = cfg.TTL
	}
}

func openCacheStore(conf *config.Config) (cache.Store, error) {
	if conf.Cache.Backend == "pebble" {
		return cache.NewPebbleStore(conf.Cache.Root)
	}
	return cache.NewFSStore(conf.Cache.Root), nil
}

func buildRunLog(conf *config.Config) (runlog.Writer, error) {
	fileWriter := func() (runlog.Writer, error) {
		return runlog.NewFileWriter(filepath.Join(conf.DataRoot, "metadata"), "pipeline_runs.jsonl")
	}
	switch conf.RunLog.Sink {
	case "kafka":
		return runlog.NewKafkaWriter(conf.RunLog.KafkaBootstrap, conf.RunLog.KafkaTopic), nil
	case "both":
		fw, err := fileWriter()
		if err != nil {
			return nil, err
		}
		return runlog.NewMultiWriter(fw, runlog.NewKafkaWriter(conf.RunLog.KafkaBootstrap, conf.RunLog.KafkaTopic)), nil
	default:
		return fileWriter()
	}
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
