package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// KeyMode selects which fields form the dedup key.
type KeyMode string

const (
	// KeyModeTriple keys rows by (source, source_id, raw_hash): every distinct
	// payload version is its own row, history is preserved.
	KeyModeTriple KeyMode = "triple"
	// KeyModePair keys rows by (source, source_id): one live row per entity,
	// newest ingestion wins.
	KeyModePair KeyMode = "pair"
)

func ParseKeyMode(s string) (KeyMode, error) {
	switch KeyMode(s) {
	case KeyModeTriple, KeyModePair:
		return KeyMode(s), nil
	}
	return "", fmt.Errorf("unknown key mode %q (want triple or pair)", s)
}

// Key is the full dedup key of an entity. Pair mode ignores RawHash.
type Key struct {
	Source   string
	SourceID string
	RawHash  string
}

// Pair reduces the key to (source, source_id).
func (k Key) Pair() Key { return Key{Source: k.Source, SourceID: k.SourceID} }

// RawRecord is one fetched payload before normalization.
type RawRecord struct {
	Provider  string          `json:"provider"`
	Resource  string          `json:"resource"`
	FetchedAt time.Time       `json:"fetched_at"`
	Payload   json.RawMessage `json:"payload"`
	RawHash   string          `json:"raw_hash"`
	// Tag distinguishes multiple fetches of the same resource (e.g. a search
	// query); it only affects the raw dump filename.
	Tag string `json:"tag,omitempty"`
	// RawFile is where the payload dump was written, empty in dry runs.
	RawFile string `json:"raw_file,omitempty"`
}

// Product is the unified product schema shared by all providers.
type Product struct {
	Source        string    `json:"source" parquet:"source"`
	SourceID      string    `json:"source_id" parquet:"source_id"`
	Title         string    `json:"title" parquet:"title"`
	PriceAmount   *float64  `json:"price_amount" parquet:"price_amount,optional"`
	PriceCurrency *string   `json:"price_currency" parquet:"price_currency,optional"`
	ImageURL      *string   `json:"image_url" parquet:"image_url,optional"`
	Category      *string   `json:"category" parquet:"category,optional"`
	URL           *string   `json:"url" parquet:"url,optional"`
	IngestedAt    time.Time `json:"ingested_at" parquet:"ingested_at,timestamp"`
	RawHash       string    `json:"raw_hash" parquet:"raw_hash"`
	RawFile       string    `json:"raw_file" parquet:"raw_file"`
	Additional    string    `json:"additional" parquet:"additional"`
}

func (p Product) EntityKey() Key {
	return Key{Source: p.Source, SourceID: p.SourceID, RawHash: p.RawHash}
}

func (p Product) IngestionTime() time.Time { return p.IngestedAt }

// Order is the unified order schema. Customer email is never stored raw,
// only its lowercase SHA-256.
type Order struct {
	Source            string    `json:"source" parquet:"source"`
	OrderID           string    `json:"order_id" parquet:"order_id"`
	SourceOrderNumber *string   `json:"source_order_number" parquet:"source_order_number,optional"`
	CreatedAt         *string   `json:"created_at" parquet:"created_at,optional"`
	ClosedAt          *string   `json:"closed_at" parquet:"closed_at,optional"`
	Currency          *string   `json:"currency" parquet:"currency,optional"`
	TotalPrice        *float64  `json:"total_price" parquet:"total_price,optional"`
	SubtotalPrice     *float64  `json:"subtotal_price" parquet:"subtotal_price,optional"`
	TotalTax          *float64  `json:"total_tax" parquet:"total_tax,optional"`
	TotalDiscount     *float64  `json:"total_discount" parquet:"total_discount,optional"`
	TotalShipping     *float64  `json:"total_shipping" parquet:"total_shipping,optional"`
	FinancialStatus   *string   `json:"financial_status" parquet:"financial_status,optional"`
	FulfillmentStatus *string   `json:"fulfillment_status" parquet:"fulfillment_status,optional"`
	LineItemsCount    int64     `json:"line_items_count" parquet:"line_items_count"`
	LineItemsSKUs     *string   `json:"line_items_skus" parquet:"line_items_skus,optional"`
	CustomerID        *string   `json:"customer_id" parquet:"customer_id,optional"`
	CustomerEmailHash *string   `json:"customer_email_hash" parquet:"customer_email_hash,optional"`
	IngestedAt        time.Time `json:"ingested_at" parquet:"ingested_at,timestamp"`
	RawHash           string    `json:"raw_hash" parquet:"raw_hash"`
	RawFile           string    `json:"raw_file" parquet:"raw_file"`
	Additional        string    `json:"additional" parquet:"additional"`
}

func (o Order) EntityKey() Key {
	return Key{Source: o.Source, SourceID: o.OrderID, RawHash: o.RawHash}
}

func (o Order) IngestionTime() time.Time { return o.IngestedAt }

// String returns a pointer to s, nil when s is empty.
func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Float64 returns a pointer to f.
func Float64(f float64) *float64 { return &f }
