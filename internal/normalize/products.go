package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cpipe/internal/model"
)

// ShopifyProducts normalizes Shopify admin product payloads. The synthetic
// provider emits the same shape, so source is a parameter rather than a
// constant.
func ShopifyProducts(source string, payload json.RawMessage, rawFile, rawHash string, ingestedAt time.Time) ([]model.Product, []*SchemaViolation, error) {
	var raw []map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, nil, fmt.Errorf("decode %s products payload: %w", source, err)
	}
	var out []model.Product
	var violations []*SchemaViolation
	for i, p := range raw {
		id := asString(p["id"])
		title, _ := p["title"].(string)
		if v := requireProduct(source, "products", i, id, title); v != nil {
			violations = append(violations, v)
			continue
		}

		var priceAmount *float64
		var priceCurrency *string
		if variants, _ := p["variants"].([]any); len(variants) > 0 {
			if first, ok := variants[0].(map[string]any); ok {
				priceAmount = safeFloat(first["price"])
				priceCurrency = strField(first, "currency")
			}
		}
		var imageURL *string
		if images, _ := p["images"].([]any); len(images) > 0 {
			if first, ok := images[0].(map[string]any); ok {
				imageURL = strField(first, "src")
			}
		}
		category := strField(p, "product_type")
		if category == nil {
			if tags, _ := p["tags"].(string); tags != "" {
				category = model.String(strings.TrimSpace(strings.SplitN(tags, ",", 2)[0]))
			}
		}

		out = append(out, model.Product{
			Source:        source,
			SourceID:      id,
			Title:         title,
			PriceAmount:   nonNegative(priceAmount),
			PriceCurrency: priceCurrency,
			ImageURL:      imageURL,
			Category:      category,
			IngestedAt:    ingestedAt,
			RawHash:       rawHash,
			RawFile:       rawFile,
			Additional:    additional(map[string]any{"handle": p["handle"], "vendor": p["vendor"]}),
		})
	}
	return out, violations, nil
}

// AmazonItems normalizes a PA-API GetItems response.
func AmazonItems(source string, payload json.RawMessage, rawFile, rawHash string, ingestedAt time.Time) ([]model.Product, []*SchemaViolation, error) {
	var resp struct {
		ItemsResult struct {
			Items []map[string]any `json:"Items"`
		} `json:"ItemsResult"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, nil, fmt.Errorf("decode %s items payload: %w", source, err)
	}
	var out []model.Product
	var violations []*SchemaViolation
	for i, it := range resp.ItemsResult.Items {
		asin := asString(it["ASIN"])
		title := asString(dig(it, "ItemInfo", "Title")["DisplayValue"])
		if v := requireProduct(source, "items", i, asin, title); v != nil {
			violations = append(violations, v)
			continue
		}

		var priceAmount *float64
		var priceCurrency *string
		if listings, _ := dig(it, "Offers")["Listings"].([]any); len(listings) > 0 {
			if first, ok := listings[0].(map[string]any); ok {
				price := dig(first, "Price")
				priceAmount = safeFloat(price["Amount"])
				priceCurrency = strField(price, "Currency")
			}
		}
		imageURL := strField(dig(it, "Images", "Primary", "Small"), "URL")

		out = append(out, model.Product{
			Source:        source,
			SourceID:      asin,
			Title:         title,
			PriceAmount:   nonNegative(priceAmount),
			PriceCurrency: priceCurrency,
			ImageURL:      imageURL,
			URL:           strField(it, "DetailPageURL"),
			IngestedAt:    ingestedAt,
			RawHash:       rawHash,
			RawFile:       rawFile,
			Additional:    additional(map[string]any{"browseNodeInfo": it["BrowseNodeInfo"]}),
		})
	}
	return out, violations, nil
}

// EbaySearch normalizes Browse API item summaries.
func EbaySearch(source string, payload json.RawMessage, rawFile, rawHash string, ingestedAt time.Time) ([]model.Product, []*SchemaViolation, error) {
	var raw []map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, nil, fmt.Errorf("decode %s search payload: %w", source, err)
	}
	var out []model.Product
	var violations []*SchemaViolation
	for i, it := range raw {
		id := asString(it["itemId"])
		title, _ := it["title"].(string)
		if v := requireProduct(source, "search", i, id, title); v != nil {
			violations = append(violations, v)
			continue
		}

		price := dig(it, "price")
		var category *string
		if path, _ := it["categoryPath"].([]any); len(path) > 0 {
			category = model.String(asString(path[len(path)-1]))
		}

		out = append(out, model.Product{
			Source:        source,
			SourceID:      id,
			Title:         title,
			PriceAmount:   nonNegative(safeFloat(price["value"])),
			PriceCurrency: strField(price, "currency"),
			ImageURL:      strField(dig(it, "image"), "imageUrl"),
			Category:      category,
			URL:           strField(it, "itemWebUrl"),
			IngestedAt:    ingestedAt,
			RawHash:       rawHash,
			RawFile:       rawFile,
			Additional:    additional(map[string]any{"seller": it["seller"], "condition": it["condition"]}),
		})
	}
	return out, violations, nil
}

func requireProduct(source, resource string, index int, id, title string) *SchemaViolation {
	if id == "" {
		return &SchemaViolation{Source: source, Resource: resource, Field: "source_id", Index: index}
	}
	if title == "" {
		return &SchemaViolation{Source: source, Resource: resource, Field: "title", Index: index}
	}
	return nil
}

// dig walks nested objects, returning an empty map when any level is absent.
func dig(m map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		next, ok := m[k].(map[string]any)
		if !ok {
			return map[string]any{}
		}
		m = next
	}
	return m
}
