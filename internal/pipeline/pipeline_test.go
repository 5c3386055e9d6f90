package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cpipe/internal/config"
	"cpipe/internal/model"
	"cpipe/internal/provider"
	"cpipe/internal/runlog"
	"cpipe/internal/store"
)

func testConfig(root string) *config.Config {
	return &config.Config{
		DataRoot: root,
		Defaults: config.Defaults{Limit: 5, MaxPages: 1},
		Providers: map[string]config.Provider{
			"mock": {Resources: map[string]config.Resource{
				"products": {Limit: 4},
				"orders":   {Limit: 2},
			}},
		},
		RunLog: config.RunLog{Sink: "file"},
	}
}

func testRunner(t *testing.T, cfg *config.Config, opts Options) *Runner {
	t.Helper()
	if opts.RunID == "" {
		opts.RunID = "test-run"
	}
	if opts.KeyMode == "" {
		opts.KeyMode = model.KeyModeTriple
	}
	datasets := store.NewDatasets(cfg.DataRoot, store.FormatJSONL)
	logw, err := runlog.NewFileWriter(filepath.Join(cfg.DataRoot, "metadata"), "pipeline_runs.jsonl")
	if err != nil {
		t.Fatalf("run log writer: %v", err)
	}
	return New(cfg, opts, provider.Deps{}, datasets, logw, nil)
}

// fakeClient feeds fixed records into the run.
type fakeClient struct {
	name    string
	records []model.RawRecord
	err     error
}

func (f *fakeClient) Name() string { return f.name }
func (f *fakeClient) Collect(ctx context.Context) ([]model.RawRecord, error) {
	return f.records, f.err
}

func productsRecord(t *testing.T, providerName string, payload string) model.RawRecord {
	t.Helper()
	hash, err := model.SHA256JSON(json.RawMessage(payload))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return model.RawRecord{
		Provider:  providerName,
		Resource:  "products",
		FetchedAt: time.Now().UTC(),
		Payload:   []byte(payload),
		RawHash:   hash,
	}
}

func TestRunOfflineMock(t *testing.T) {
	root := t.TempDir()
	r := testRunner(t, testConfig(root), Options{Seed: 7})

	entry, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if entry.Status != runlog.StatusSuccess {
		t.Fatalf("status = %s", entry.Status)
	}
	if entry.NewProducts != 4 || entry.NewOrders != 2 {
		t.Fatalf("new products/orders = %d/%d, want 4/2", entry.NewProducts, entry.NewOrders)
	}
	if entry.RawFiles != 2 {
		t.Fatalf("raw files = %d, want 2 (products + orders)", entry.RawFiles)
	}

	products, err := store.NewDatasets(root, store.FormatJSONL).LoadProducts()
	if err != nil {
		t.Fatalf("load products: %v", err)
	}
	if len(products) != 4 {
		t.Fatalf("persisted products = %d", len(products))
	}
	if products[0].RawFile == "" {
		t.Fatal("persisted product has no raw file pointer")
	}
	if _, err := os.Stat(products[0].RawFile); err != nil {
		t.Fatalf("raw dump missing: %v", err)
	}

	entries, err := runlog.Read(filepath.Join(root, "metadata", "pipeline_runs.jsonl"))
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if len(entries) != 1 || entries[0].RunID != "test-run" {
		t.Fatalf("run log = %+v", entries)
	}

	m, err := store.NewDatasets(root, store.FormatJSONL).ReadManifest()
	if err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if m.Products != 4 || m.Orders != 2 {
		t.Fatalf("manifest = %+v", m)
	}
}

func TestRunSameSeedReplayIsNoOp(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)

	first, err := testRunner(t, cfg, Options{Seed: 11, RunID: "run-1"}).Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.NewProducts == 0 {
		t.Fatal("first run ingested nothing")
	}

	second, err := testRunner(t, cfg, Options{Seed: 11, RunID: "run-2"}).Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.NewProducts != 0 || second.UpdatedProducts != 0 {
		t.Fatalf("replay counters = %d new / %d updated, want 0/0",
			second.NewProducts, second.UpdatedProducts)
	}
}

func TestRunPairModeCountsNetEffect(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)

	run1 := testRunner(t, cfg, Options{RunID: "run-1", KeyMode: model.KeyModePair})
	run1.newClient = func(name string) (provider.Client, error) {
		return &fakeClient{name: name, records: []model.RawRecord{
			productsRecord(t, name, `[{"id":"A","title":"Alpha v1"}]`),
		}}, nil
	}
	if _, err := run1.Run(context.Background()); err != nil {
		t.Fatalf("run 1: %v", err)
	}

	run2 := testRunner(t, cfg, Options{RunID: "run-2", KeyMode: model.KeyModePair})
	run2.newClient = func(name string) (provider.Client, error) {
		return &fakeClient{name: name, records: []model.RawRecord{
			productsRecord(t, name, `[{"id":"A","title":"Alpha v2"},{"id":"B","title":"Beta"}]`),
		}}, nil
	}
	entry, err := run2.Run(context.Background())
	if err != nil {
		t.Fatalf("run 2: %v", err)
	}
	if entry.NewProducts != 1 || entry.UpdatedProducts != 1 {
		t.Fatalf("counters = %d new / %d updated, want 1/1", entry.NewProducts, entry.UpdatedProducts)
	}

	products, err := store.NewDatasets(root, store.FormatJSONL).LoadProducts()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("rows = %d, want 2 (one live row per key)", len(products))
	}
	for _, p := range products {
		if p.SourceID == "A" && p.Title != "Alpha v2" {
			t.Fatalf("row A = %q, want newest version", p.Title)
		}
	}
}

func ordersRecord(t *testing.T, providerName string, payload string) model.RawRecord {
	t.Helper()
	hash, err := model.SHA256JSON(json.RawMessage(payload))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return model.RawRecord{
		Provider:  providerName,
		Resource:  "orders",
		FetchedAt: time.Now().UTC(),
		Payload:   []byte(payload),
		RawHash:   hash,
	}
}

func TestTripleModePreservesOrderHistory(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)

	run1 := testRunner(t, cfg, Options{RunID: "run-1"})
	run1.newClient = func(name string) (provider.Client, error) {
		return &fakeClient{name: name, records: []model.RawRecord{
			ordersRecord(t, name, `[{"id":"o-1","total_price":"10.00"}]`),
		}}, nil
	}
	if _, err := run1.Run(context.Background()); err != nil {
		t.Fatalf("run 1: %v", err)
	}

	// Same order, amended total. Triple mode keys orders by
	// (source, order_id, raw_hash), so the amendment is a new version row.
	run2 := testRunner(t, cfg, Options{RunID: "run-2"})
	run2.newClient = func(name string) (provider.Client, error) {
		return &fakeClient{name: name, records: []model.RawRecord{
			ordersRecord(t, name, `[{"id":"o-1","total_price":"12.00"}]`),
		}}, nil
	}
	entry, err := run2.Run(context.Background())
	if err != nil {
		t.Fatalf("run 2: %v", err)
	}
	if entry.NewOrders != 1 || entry.UpdatedOrders != 0 {
		t.Fatalf("counters = %d new / %d updated, want 1/0", entry.NewOrders, entry.UpdatedOrders)
	}

	orders, err := store.NewDatasets(root, store.FormatJSONL).LoadOrders()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("rows = %d, want both versions of the order", len(orders))
	}
}

func TestPairModeKeepsOneOrderRow(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(root)

	for i, payload := range []string{
		`[{"id":"o-1","total_price":"10.00"}]`,
		`[{"id":"o-1","total_price":"12.00"}]`,
	} {
		r := testRunner(t, cfg, Options{RunID: fmt.Sprintf("run-%d", i+1), KeyMode: model.KeyModePair})
		rec := ordersRecord(t, "mock", payload)
		r.newClient = func(name string) (provider.Client, error) {
			return &fakeClient{name: name, records: []model.RawRecord{rec}}, nil
		}
		if _, err := r.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}

	orders, err := store.NewDatasets(root, store.FormatJSONL).LoadOrders()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(orders) != 1 || orders[0].TotalPrice == nil || *orders[0].TotalPrice != 12.0 {
		t.Fatalf("orders = %+v, want one live row with the newest total", orders)
	}
}

func TestRunProviderFailureIsPartial(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Providers["shopify"] = config.Provider{Resources: map[string]config.Resource{"products": {Limit: 2}}}

	r := testRunner(t, cfg, Options{})
	r.newClient = func(name string) (provider.Client, error) {
		if name == "shopify" {
			return &fakeClient{name: name, err: provider.ErrAPIRequest}, nil
		}
		return r.defaultClient(name)
	}
	entry, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if entry.Status != runlog.StatusPartial {
		t.Fatalf("status = %s, want partial", entry.Status)
	}
	if len(entry.ProvidersFailed) != 1 || entry.ProvidersFailed[0] != "shopify" {
		t.Fatalf("failed = %v", entry.ProvidersFailed)
	}
	// The mock provider's batch still merged.
	if entry.NewProducts == 0 {
		t.Fatal("surviving provider's records were not merged")
	}
}

func TestRunAllProvidersFailed(t *testing.T) {
	r := testRunner(t, testConfig(t.TempDir()), Options{})
	r.newClient = func(name string) (provider.Client, error) {
		return nil, provider.ErrAPIAuth
	}
	entry, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if entry.Status != runlog.StatusFailed {
		t.Fatalf("status = %s, want failed", entry.Status)
	}
}

func TestRunMissingCredentialsSkipsProvider(t *testing.T) {
	r := testRunner(t, testConfig(t.TempDir()), Options{})
	r.newClient = func(name string) (provider.Client, error) {
		return nil, provider.ErrCredentialMissing
	}
	entry, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(entry.ProvidersSkipped) != 1 || entry.ProvidersSkipped[0] != "mock" {
		t.Fatalf("skipped = %v", entry.ProvidersSkipped)
	}
	if entry.Status != runlog.StatusSuccess {
		t.Fatalf("status = %s (skips are not failures)", entry.Status)
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	root := t.TempDir()
	r := testRunner(t, testConfig(root), Options{DryRun: true, Seed: 3})

	entry, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if entry.NewProducts == 0 {
		t.Fatal("dry run should still compute counters")
	}
	if entry.RawFiles != 0 {
		t.Fatalf("raw files = %d, want 0", entry.RawFiles)
	}
	for _, sub := range []string{"raw", "normalized"} {
		if _, err := os.Stat(filepath.Join(root, sub)); !os.IsNotExist(err) {
			t.Fatalf("%s directory written during dry run", sub)
		}
	}
	entries, err := runlog.Read(filepath.Join(root, "metadata", "pipeline_runs.jsonl"))
	if err != nil {
		t.Fatalf("read run log: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("run log entries = %d, want 0", len(entries))
	}
}

func TestStrictModeAbortsOnSchemaViolation(t *testing.T) {
	r := testRunner(t, testConfig(t.TempDir()), Options{Strict: true})
	r.newClient = func(name string) (provider.Client, error) {
		return &fakeClient{name: name, records: []model.RawRecord{
			productsRecord(t, name, `[{"id":"A"}]`), // no title
		}}, nil
	}
	entry, err := r.Run(context.Background())
	if err == nil {
		t.Fatal("want abort error in strict mode")
	}
	if entry.Status != runlog.StatusAborted {
		t.Fatalf("status = %s, want aborted", entry.Status)
	}
}

func TestNonStrictSkipsViolatingRecords(t *testing.T) {
	r := testRunner(t, testConfig(t.TempDir()), Options{})
	r.newClient = func(name string) (provider.Client, error) {
		return &fakeClient{name: name, records: []model.RawRecord{
			productsRecord(t, name, `[{"id":"A"},{"id":"B","title":"Beta"}]`),
		}}, nil
	}
	entry, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if entry.SkippedRecords != 1 {
		t.Fatalf("skipped = %d, want 1", entry.SkippedRecords)
	}
	if entry.NewProducts != 1 {
		t.Fatalf("new = %d, want 1", entry.NewProducts)
	}
}

func TestRunTimeoutAborts(t *testing.T) {
	r := testRunner(t, testConfig(t.TempDir()), Options{Timeout: 20 * time.Millisecond})
	r.newClient = func(name string) (provider.Client, error) {
		return &slowClient{name: name}, nil
	}
	entry, err := r.Run(context.Background())
	if err == nil {
		t.Fatal("want deadline error")
	}
	if entry.Status != runlog.StatusAborted {
		t.Fatalf("status = %s, want aborted", entry.Status)
	}
}

type slowClient struct{ name string }

func (s *slowClient) Name() string { return s.name }
func (s *slowClient) Collect(ctx context.Context) ([]model.RawRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRunNoProvidersEnabled(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Providers = nil
	_, err := testRunner(t, cfg, Options{}).Run(context.Background())
	if err == nil {
		t.Fatal("want error when nothing is enabled")
	}
}

func TestDeterministicResultOrder(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Providers["shopify"] = config.Provider{Resources: map[string]config.Resource{"products": {Limit: 1}}}
	cfg.Providers["ebay"] = config.Provider{Resources: map[string]config.Resource{"search": {Limit: 1, Queries: []string{"q"}}}}

	r := testRunner(t, cfg, Options{Offline: true, Seed: 1})
	entry, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"shopify", "ebay", "mock"}
	if len(entry.Providers) != len(want) {
		t.Fatalf("providers = %v", entry.Providers)
	}
	for i := range want {
		if entry.Providers[i] != want[i] {
			t.Fatalf("providers = %v, want canonical order %v", entry.Providers, want)
		}
	}
}

func TestRunTimeoutNotAppliedWithoutFlag(t *testing.T) {
	r := testRunner(t, testConfig(t.TempDir()), Options{})
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("run without timeout: %v", err)
	}
}
