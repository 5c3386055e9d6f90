package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"cpipe/internal/config"
)

func fixedNow() time.Time {
	return time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
}

func TestSyntheticSameSeedSamePayload(t *testing.T) {
	p := config.Provider{Resources: map[string]config.Resource{
		"products": {Limit: 8},
		"orders":   {Limit: 4},
	}}
	d := config.Defaults{Limit: 10, MaxPages: 1}

	a, err := NewSynthetic("mock", 42, p, d, fixedNow).Collect(context.Background())
	if err != nil {
		t.Fatalf("first collect: %v", err)
	}
	b, err := NewSynthetic("mock", 42, p, d, fixedNow).Collect(context.Background())
	if err != nil {
		t.Fatalf("second collect: %v", err)
	}
	if len(a) != 2 || len(b) != 2 {
		t.Fatalf("records = %d/%d, want 2/2", len(a), len(b))
	}
	for i := range a {
		if !bytes.Equal(a[i].Payload, b[i].Payload) {
			t.Fatalf("record %d payloads differ for same seed", i)
		}
		if a[i].RawHash != b[i].RawHash {
			t.Fatalf("record %d hashes differ for same seed", i)
		}
	}
}

func TestSyntheticDifferentSeedDifferentPayload(t *testing.T) {
	p := config.Provider{Resources: map[string]config.Resource{"products": {Limit: 8}}}
	d := config.Defaults{Limit: 10, MaxPages: 1}

	a, _ := NewSynthetic("mock", 1, p, d, fixedNow).Collect(context.Background())
	b, _ := NewSynthetic("mock", 2, p, d, fixedNow).Collect(context.Background())
	if a[0].RawHash == b[0].RawHash {
		t.Fatal("different seeds produced identical payloads")
	}
}

func TestSyntheticProductShape(t *testing.T) {
	p := config.Provider{Resources: map[string]config.Resource{"products": {Limit: 3}}}
	records, err := NewSynthetic("mock", 7, p, config.Defaults{Limit: 10}, fixedNow).Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if records[0].Resource != "products" {
		t.Fatalf("resource = %s", records[0].Resource)
	}
	var products []map[string]any
	if err := json.Unmarshal(records[0].Payload, &products); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("products = %d, want 3", len(products))
	}
	for _, prod := range products {
		if prod["id"] == "" || prod["title"] == "" {
			t.Fatalf("product missing id/title: %v", prod)
		}
		variants, ok := prod["variants"].([]any)
		if !ok || len(variants) == 0 {
			t.Fatalf("product %v has no variants", prod["id"])
		}
	}
}

func TestSyntheticAmazonShape(t *testing.T) {
	p := config.Provider{Resources: map[string]config.Resource{"items": {Limit: 4}}}
	records, err := NewSynthetic("amazon", 7, p, config.Defaults{Limit: 10}, fixedNow).Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 1 || records[0].Resource != "items" {
		t.Fatalf("records = %v", records)
	}
	var resp struct {
		ItemsResult struct {
			Items []map[string]any `json:"Items"`
		} `json:"ItemsResult"`
	}
	if err := json.Unmarshal(records[0].Payload, &resp); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if len(resp.ItemsResult.Items) != 4 {
		t.Fatalf("items = %d, want 4", len(resp.ItemsResult.Items))
	}
}

func TestSyntheticEbayRecordPerQuery(t *testing.T) {
	p := config.Provider{Resources: map[string]config.Resource{
		"search": {Limit: 2, Queries: []string{"ssd", "router"}},
	}}
	records, err := NewSynthetic("ebay", 7, p, config.Defaults{Limit: 10}, fixedNow).Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].Tag != "ssd" || records[1].Tag != "router" {
		t.Fatalf("tags = %q/%q", records[0].Tag, records[1].Tag)
	}
}

func TestSyntheticOrdersReferenceProducts(t *testing.T) {
	p := config.Provider{Resources: map[string]config.Resource{
		"products": {Limit: 5},
		"orders":   {Limit: 3},
	}}
	records, err := NewSynthetic("mock", 9, p, config.Defaults{Limit: 10}, fixedNow).Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	var orders []map[string]any
	if err := json.Unmarshal(records[1].Payload, &orders); err != nil {
		t.Fatalf("orders payload: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("orders = %d, want 3", len(orders))
	}
	for _, o := range orders {
		lineItems := o["line_items"].([]any)
		if len(lineItems) == 0 {
			t.Fatalf("order %v has no line items", o["id"])
		}
		created, err := time.Parse(time.RFC3339, o["created_at"].(string))
		if err != nil {
			t.Fatalf("created_at: %v", err)
		}
		if !created.Before(fixedNow()) {
			t.Fatalf("created_at %v not before now", created)
		}
	}
}
