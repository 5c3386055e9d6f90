// Package normalize turns raw provider payloads into the unified product and
// order schemas. Normalizers are pure: ingestion time comes in as a parameter
// and nothing here touches the network or the filesystem.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cpipe/internal/model"
)

// additionalMaxLen caps the serialized provider-extras blob.
const additionalMaxLen = 8000

// SchemaViolation reports a raw record missing a required field. The caller
// decides whether to skip the record or abort the run.
type SchemaViolation struct {
	Source   string
	Resource string
	Field    string
	Index    int
}

func (v *SchemaViolation) Error() string {
	return fmt.Sprintf("%s/%s record %d: missing required field %q", v.Source, v.Resource, v.Index, v.Field)
}

// Record dispatches one raw record to the normalizer for its resource. The
// returned violations are the records that were skipped; a non-nil error means
// the whole payload was undecodable.
func Record(rec model.RawRecord, ingestedAt time.Time) ([]model.Product, []model.Order, []*SchemaViolation, error) {
	switch rec.Resource {
	case "products":
		products, violations, err := ShopifyProducts(rec.Provider, rec.Payload, rec.RawFile, rec.RawHash, ingestedAt)
		return products, nil, violations, err
	case "items":
		products, violations, err := AmazonItems(rec.Provider, rec.Payload, rec.RawFile, rec.RawHash, ingestedAt)
		return products, nil, violations, err
	case "search":
		products, violations, err := EbaySearch(rec.Provider, rec.Payload, rec.RawFile, rec.RawHash, ingestedAt)
		return products, nil, violations, err
	case "orders":
		orders, violations, err := ShopifyOrders(rec.Provider, rec.Payload, rec.RawFile, rec.RawHash, ingestedAt)
		return nil, orders, violations, err
	}
	return nil, nil, nil, fmt.Errorf("no normalizer for resource %q (provider %s)", rec.Resource, rec.Provider)
}

// additional serializes provider extras with sorted keys, truncated at
// additionalMaxLen.
func additional(obj map[string]any) string {
	b, err := json.Marshal(obj)
	if err != nil {
		return "{}"
	}
	if len(b) > additionalMaxLen {
		return string(b[:additionalMaxLen]) + "..."
	}
	return string(b)
}

// safeFloat converts JSON numbers and numeric strings, nil on anything else.
func safeFloat(v any) *float64 {
	switch x := v.(type) {
	case float64:
		return &x
	case string:
		if x == "" {
			return nil
		}
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

// nonNegative drops negative monetary values; the schema treats them as
// absent.
func nonNegative(f *float64) *float64 {
	if f != nil && *f < 0 {
		return nil
	}
	return f
}

// asString renders ids and numbers that providers emit as either strings or
// JSON numbers. Empty when absent.
func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return ""
}

func strField(m map[string]any, key string) *string {
	s, _ := m[key].(string)
	return model.String(s)
}
