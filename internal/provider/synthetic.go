package provider

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"cpipe/internal/config"
	"cpipe/internal/model"
)

var (
	categories = []string{"Electronics", "Books", "Home", "Toys", "Sports", "Fashion"}
	adjectives = []string{"Smart", "Eco", "Ultra", "Mini", "Pro", "Air", "Max", "Hyper", "Nano", "Prime"}
	nouns      = []string{"Speaker", "Lamp", "Bottle", "Backpack", "Watch", "Camera", "Helmet", "Router", "Shirt", "Drone"}
	currencies = []string{"USD", "EUR", "GBP", "BRL"}
)

// Synthetic generates provider-shaped payloads locally. It backs the "mock"
// provider and, in offline runs, stands in for any real provider so the
// normalization and merge paths stay identical to a live run. A fixed seed
// reproduces the exact same payload sequence.
type Synthetic struct {
	provider     string
	rng          *rand.Rand
	now          func() time.Time
	productLimit int
	orderLimit   int
	queries      []string
}

func NewSynthetic(providerName string, seed int64, p config.Provider, d config.Defaults, now func() time.Time) *Synthetic {
	s := &Synthetic{
		provider: providerName,
		rng:      rand.New(rand.NewSource(seed)),
		now:      now,
	}
	switch providerName {
	case amazonName:
		r, ok := p.Resource("items", d)
		s.productLimit = r.Limit
		if !ok {
			s.productLimit = d.Limit
		}
	case ebayName:
		r, ok := p.Resource("search", d)
		s.productLimit = r.Limit
		if !ok {
			s.productLimit = d.Limit
		}
		s.queries = r.Queries
		if len(s.queries) == 0 {
			s.queries = []string{"mock"}
		}
	default:
		r, ok := p.Resource("products", d)
		s.productLimit = r.Limit
		if !ok {
			s.productLimit = d.Limit
		}
		if r, ok := p.Resource("orders", d); ok {
			s.orderLimit = r.Limit
		}
	}
	return s
}

func (s *Synthetic) Name() string { return s.provider }

func (s *Synthetic) Collect(ctx context.Context) ([]model.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	switch s.provider {
	case amazonName:
		items := GenerateAmazonItems(s.rng, s.productLimit)
		rec, err := rawRecord(s.provider, "items", "", items, now)
		if err != nil {
			return nil, err
		}
		return []model.RawRecord{rec}, nil
	case ebayName:
		var records []model.RawRecord
		for _, q := range s.queries {
			items := GenerateEbayItems(s.rng, s.productLimit, q)
			rec, err := rawRecord(s.provider, "search", q, items, now)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
		return records, nil
	default:
		products := GenerateProducts(s.rng, s.productLimit)
		rec, err := rawRecord(s.provider, "products", "", products, now)
		if err != nil {
			return nil, err
		}
		records := []model.RawRecord{rec}
		if s.orderLimit > 0 {
			ids := make([]string, 0, len(products))
			for _, p := range products {
				ids = append(ids, p["id"].(string))
			}
			orders := GenerateOrders(s.rng, s.orderLimit, ids, now)
			rec, err := rawRecord(s.provider, "orders", "", orders, now)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
		return records, nil
	}
}

func choice(rng *rand.Rand, opts []string) string { return opts[rng.Intn(len(opts))] }

func round2(f float64) float64 { return math.Round(f*100) / 100 }

// GenerateProducts produces shopify-shaped product payloads.
func GenerateProducts(rng *rand.Rand, n int) []map[string]any {
	items := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		pid := fmt.Sprintf("mock-prod-%d", i+1)
		title := choice(rng, adjectives) + " " + choice(rng, nouns)
		price := round2(5 + rng.Float64()*295)
		currency := choice(rng, currencies)
		category := choice(rng, categories)

		var variants []map[string]any
		for v := 0; v < rng.Intn(3); v++ {
			factor := 1 + (rng.Float64()*0.25 - 0.10)
			variants = append(variants, map[string]any{
				"id":       fmt.Sprintf("%s-v%d", pid, v+1),
				"price":    strconv.FormatFloat(round2(price*factor), 'f', 2, 64),
				"currency": currency,
			})
		}
		if len(variants) == 0 {
			variants = []map[string]any{{
				"id":       pid + "-v1",
				"price":    strconv.FormatFloat(price, 'f', 2, 64),
				"currency": currency,
			}}
		}

		images := []map[string]any{}
		if rng.Float64() < 0.8 {
			images = append(images, map[string]any{"src": "https://example.com/img/" + pid + ".png"})
		}
		tags := ""
		if rng.Float64() < 0.5 {
			tags = choice(rng, categories)
		}
		items = append(items, map[string]any{
			"id":           pid,
			"title":        title,
			"variants":     variants,
			"images":       images,
			"product_type": category,
			"handle":       pid,
			"vendor":       "MockVendor",
			"tags":         tags,
		})
	}
	return items
}

// GenerateOrders produces shopify-shaped order payloads referencing the given
// product ids.
func GenerateOrders(rng *rand.Rand, m int, productIDs []string, now time.Time) []map[string]any {
	if len(productIDs) == 0 {
		for i := 0; i < 30; i++ {
			productIDs = append(productIDs, fmt.Sprintf("mock-prod-%d", i+1))
		}
	}
	orders := make([]map[string]any, 0, m)
	for i := 0; i < m; i++ {
		oid := fmt.Sprintf("mock-order-%d", i+1)
		created := now.Add(-time.Duration(1+rng.Intn(240)) * time.Hour)

		var lineItems []map[string]any
		total := 0.0
		for li := 0; li < 1+rng.Intn(4); li++ {
			pid := choice(rng, productIDs)
			qty := 1 + rng.Intn(3)
			unit := round2(5 + rng.Float64()*245)
			lineItems = append(lineItems, map[string]any{
				"id":         fmt.Sprintf("%s-li%d", oid, li+1),
				"sku":        pid,
				"quantity":   qty,
				"price":      strconv.FormatFloat(unit, 'f', 2, 64),
				"variant_id": pid + "-v1",
			})
			total += unit * float64(qty)
		}
		subtotal := total
		tax := round2(total * rng.Float64() * 0.18)
		shipping := 0.0
		if rng.Float64() < 0.6 {
			shipping = round2(rng.Float64() * 25)
		}
		total += tax + shipping

		shippingLines := []map[string]any{}
		if shipping > 0 {
			shippingLines = append(shippingLines, map[string]any{"price": strconv.FormatFloat(shipping, 'f', 2, 64)})
		}
		var fulfillment any
		if rng.Float64() < 0.7 {
			fulfillment = choice(rng, []string{"fulfilled", "partial"})
		}
		orders = append(orders, map[string]any{
			"id":                    oid,
			"order_number":          i + 1,
			"created_at":            created.UTC().Format(time.RFC3339),
			"closed_at":             nil,
			"currency":              choice(rng, currencies),
			"total_price":           strconv.FormatFloat(round2(total), 'f', 2, 64),
			"subtotal_price":        strconv.FormatFloat(round2(subtotal), 'f', 2, 64),
			"total_tax":             strconv.FormatFloat(tax, 'f', 2, 64),
			"shipping_lines":        shippingLines,
			"discount_applications": []map[string]any{},
			"financial_status":      choice(rng, []string{"paid", "pending", "refunded"}),
			"fulfillment_status":    fulfillment,
			"line_items":            lineItems,
			"customer":              map[string]any{"id": fmt.Sprintf("cust-%d", i+1), "email": fmt.Sprintf("user%d@example.com", i+1)},
			"gateway":               "mock_gateway",
			"processing_method":     "mock",
			"cancelled_at":          nil,
			"tags":                  "mock",
		})
	}
	return orders
}

// GenerateAmazonItems produces a PA-API shaped GetItems response.
func GenerateAmazonItems(rng *rand.Rand, n int) map[string]any {
	items := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		asin := fmt.Sprintf("FAKEASIN%03d", i+1)
		items = append(items, map[string]any{
			"ASIN":     asin,
			"ItemInfo": map[string]any{"Title": map[string]any{"DisplayValue": choice(rng, adjectives) + " " + choice(rng, nouns)}},
			"Offers": map[string]any{"Listings": []map[string]any{{
				"Price": map[string]any{"Amount": round2(5 + rng.Float64()*395), "Currency": choice(rng, currencies)},
			}}},
			"Images":         map[string]any{"Primary": map[string]any{"Small": map[string]any{"URL": "https://example.com/img/" + asin + ".png"}}},
			"BrowseNodeInfo": map[string]any{"BrowseNodes": []any{}},
			"DetailPageURL":  "https://example.com/dp/" + asin,
		})
	}
	return map[string]any{"ItemsResult": map[string]any{"Items": items}}
}

// GenerateEbayItems produces Browse API shaped item summaries for a query.
func GenerateEbayItems(rng *rand.Rand, n int, query string) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		itemID := fmt.Sprintf("FAKEEBAY%03d", i+1)
		out = append(out, map[string]any{
			"itemId":       itemID,
			"title":        choice(rng, adjectives) + " " + choice(rng, nouns) + " for " + query,
			"price":        map[string]any{"value": round2(3 + rng.Float64()*347), "currency": choice(rng, currencies)},
			"image":        map[string]any{"imageUrl": "https://example.com/img/" + itemID + ".jpg"},
			"categoryPath": []string{"Root", choice(rng, categories)},
			"itemWebUrl":   "https://example.com/itm/" + itemID,
			"seller":       map[string]any{"username": "mock_seller"},
			"condition":    "NEW",
		})
	}
	return out
}
