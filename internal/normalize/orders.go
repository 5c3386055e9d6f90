package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"cpipe/internal/model"
)

// ShopifyOrders normalizes Shopify admin order payloads. Customer email is
// reduced to its lowercase SHA-256 so no raw PII reaches the dataset.
func ShopifyOrders(source string, payload json.RawMessage, rawFile, rawHash string, ingestedAt time.Time) ([]model.Order, []*SchemaViolation, error) {
	var raw []map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, nil, fmt.Errorf("decode %s orders payload: %w", source, err)
	}
	var out []model.Order
	var violations []*SchemaViolation
	for i, o := range raw {
		id := asString(o["id"])
		if id == "" {
			violations = append(violations, &SchemaViolation{Source: source, Resource: "orders", Field: "order_id", Index: i})
			continue
		}
		number := asString(o["order_number"])
		if number == "" {
			number = asString(o["name"])
		}

		lineItems, _ := o["line_items"].([]any)
		skuSet := map[string]bool{}
		for _, li := range lineItems {
			item, ok := li.(map[string]any)
			if !ok {
				continue
			}
			sku := asString(item["sku"])
			if sku == "" {
				sku = asString(item["variant_id"])
			}
			if sku != "" {
				skuSet[sku] = true
			}
		}
		var skus *string
		if len(skuSet) > 0 {
			list := make([]string, 0, len(skuSet))
			for s := range skuSet {
				list = append(list, s)
			}
			sort.Strings(list)
			skus = model.String(strings.Join(list, ","))
		}

		var customerID, emailHash *string
		if cust, ok := o["customer"].(map[string]any); ok {
			customerID = model.String(asString(cust["id"]))
			if email := asString(cust["email"]); email != "" {
				emailHash = model.String(model.HashEmail(email))
			}
		}

		out = append(out, model.Order{
			Source:            source,
			OrderID:           id,
			SourceOrderNumber: model.String(number),
			CreatedAt:         strField(o, "created_at"),
			ClosedAt:          strField(o, "closed_at"),
			Currency:          strField(o, "currency"),
			TotalPrice:        nonNegative(safeFloat(o["total_price"])),
			SubtotalPrice:     nonNegative(safeFloat(o["subtotal_price"])),
			TotalTax:          nonNegative(safeFloat(o["total_tax"])),
			TotalDiscount:     sumDiscounts(o["discount_applications"]),
			TotalShipping:     nonNegative(sumShipping(o["shipping_lines"])),
			FinancialStatus:   strField(o, "financial_status"),
			FulfillmentStatus: strField(o, "fulfillment_status"),
			LineItemsCount:    int64(len(lineItems)),
			LineItemsSKUs:     skus,
			CustomerID:        customerID,
			CustomerEmailHash: emailHash,
			IngestedAt:        ingestedAt,
			RawHash:           rawHash,
			RawFile:           rawFile,
			Additional: additional(map[string]any{
				"gateway":           o["gateway"],
				"processing_method": o["processing_method"],
				"cancelled_at":      o["cancelled_at"],
				"tags":              o["tags"],
			}),
		})
	}
	return out, violations, nil
}

// sumShipping totals shipping_lines prices. Nil when there are no lines.
func sumShipping(v any) *float64 {
	lines, _ := v.([]any)
	if len(lines) == 0 {
		return nil
	}
	total := 0.0
	for _, l := range lines {
		if m, ok := l.(map[string]any); ok {
			if f := safeFloat(m["price"]); f != nil {
				total += *f
			}
		}
	}
	return &total
}

// sumDiscounts totals discount_applications values. Nil when nothing applies.
func sumDiscounts(v any) *float64 {
	apps, _ := v.([]any)
	total := 0.0
	for _, a := range apps {
		if m, ok := a.(map[string]any); ok {
			if f := safeFloat(m["value"]); f != nil {
				total += *f
			}
		}
	}
	if total <= 0 {
		return nil
	}
	return &total
}
