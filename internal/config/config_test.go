package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
data_root: /tmp/cpipe-data
defaults:
  limit: 25
  cache_ttl: 30m
providers:
  shopify:
    rps: 2
    resources:
      products:
        limit: 100
        max_pages: 3
      orders:
        status: any
  mock:
    resources:
      products: {limit: 20}
      orders: {limit: 10}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataRoot != "/tmp/cpipe-data" {
		t.Fatalf("data_root = %q", cfg.DataRoot)
	}
	if cfg.Defaults.Limit != 25 || cfg.Defaults.CacheTTL != 30*time.Minute {
		t.Fatalf("defaults = %+v", cfg.Defaults)
	}
	if cfg.Cache.Backend != "fs" {
		t.Fatalf("cache backend default = %q", cfg.Cache.Backend)
	}
	if cfg.RunLog.Sink != "file" {
		t.Fatalf("runlog sink default = %q", cfg.RunLog.Sink)
	}

	shop := cfg.Providers["shopify"]
	if shop.RPS != 2 {
		t.Fatalf("shopify rps = %v", shop.RPS)
	}
	products, ok := shop.Resource("products", cfg.Defaults)
	if !ok || products.Limit != 100 || products.MaxPages != 3 {
		t.Fatalf("products resource = %+v ok=%v", products, ok)
	}
	orders, ok := shop.Resource("orders", cfg.Defaults)
	if !ok || orders.Limit != 25 || orders.MaxPages != 1 || orders.Status != "any" {
		t.Fatalf("orders resource must inherit defaults: %+v", orders)
	}
	if _, ok := shop.Resource("search", cfg.Defaults); ok {
		t.Fatalf("unconfigured resource must report !ok")
	}
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad cache backend", "cache:\n  backend: redis\n"},
		{"bad runlog sink", "runlog:\n  sink: s3\n"},
		{"kafka sink without bootstrap", "runlog:\n  sink: kafka\n"},
		{"negative rps", "providers:\n  ebay:\n    rps: -1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestForceLimit_WinsOverResourceLimit(t *testing.T) {
	cfg := &Config{
		Defaults: Defaults{Limit: 50, MaxPages: 2},
		Providers: map[string]Provider{
			"shopify": {Resources: map[string]Resource{
				"products": {Limit: 100},
				"orders":   {},
			}},
		},
	}
	cfg.ForceLimit(5)

	products, ok := cfg.Providers["shopify"].Resource("products", cfg.Defaults)
	if !ok || products.Limit != 5 {
		t.Fatalf("products limit = %d, want the forced 5 over the yaml 100", products.Limit)
	}
	orders, ok := cfg.Providers["shopify"].Resource("orders", cfg.Defaults)
	if !ok || orders.Limit != 5 {
		t.Fatalf("orders limit = %d, want 5", orders.Limit)
	}
	if orders.MaxPages != 2 {
		t.Fatalf("max pages = %d, other defaults must still apply", orders.MaxPages)
	}
}

func TestEnabled_CanonicalOrderAndFilter(t *testing.T) {
	cfg := &Config{Providers: map[string]Provider{
		"mock":    {},
		"shopify": {},
		"ebay":    {},
	}}

	got := cfg.Enabled(nil)
	want := []string{"shopify", "ebay", "mock"}
	if len(got) != len(want) {
		t.Fatalf("enabled = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("enabled = %v, want %v", got, want)
		}
	}

	got = cfg.Enabled([]string{"mock", "amazon"})
	if len(got) != 1 || got[0] != "mock" {
		t.Fatalf("filtered = %v", got)
	}
}
