package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"cpipe/internal/config"
	"cpipe/internal/model"
)

const shopifyName = "shopify"

// Shopify lists products and (when configured) orders from the Shopify Admin
// API. Pagination is since_id based; every page goes through the response
// cache and the rate limiter.
type Shopify struct {
	deps     Deps
	core     *httpCore
	baseURL  string
	token    string
	products config.Resource
	orders   *config.Resource
}

func NewShopify(deps Deps, baseURL, token string, products config.Resource, orders *config.Resource) *Shopify {
	return &Shopify{
		deps:     deps,
		core:     newHTTPCore(deps, shopifyName),
		baseURL:  baseURL,
		token:    token,
		products: products,
		orders:   orders,
	}
}

// NewShopifyFromEnv builds the client from SHOPIFY_* environment variables.
// Missing credentials wrap ErrCredentialMissing so the run skips the provider.
func NewShopifyFromEnv(deps Deps, p config.Provider, d config.Defaults) (*Shopify, error) {
	domain := os.Getenv("SHOPIFY_SHOP_DOMAIN")
	if domain == "" {
		return nil, fmt.Errorf("%w: SHOPIFY_SHOP_DOMAIN", ErrCredentialMissing)
	}
	token := os.Getenv("SHOPIFY_ACCESS_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("%w: SHOPIFY_ACCESS_TOKEN", ErrCredentialMissing)
	}
	version := os.Getenv("SHOPIFY_API_VERSION")
	if version == "" {
		version = "2025-07"
	}

	products, ok := p.Resource("products", d)
	if !ok {
		products = config.Resource{Limit: d.Limit, MaxPages: d.MaxPages}
	}
	var orders *config.Resource
	if r, ok := p.Resource("orders", d); ok {
		orders = &r
	}
	baseURL := fmt.Sprintf("https://%s/admin/api/%s", domain, version)
	return NewShopify(deps, baseURL, token, products, orders), nil
}

func (s *Shopify) Name() string { return shopifyName }

func (s *Shopify) headers() http.Header {
	h := http.Header{}
	h.Set("X-Shopify-Access-Token", s.token)
	h.Set("Accept", "application/json")
	return h
}

func (s *Shopify) Collect(ctx context.Context) ([]model.RawRecord, error) {
	products, err := s.listPaged(ctx, "products", s.products)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	rec, err := rawRecord(shopifyName, "products", "", products, s.deps.now())
	if err != nil {
		return nil, err
	}
	records := []model.RawRecord{rec}

	if s.orders != nil {
		orders, err := s.listPaged(ctx, "orders", *s.orders)
		if err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		if len(orders) > 0 {
			rec, err := rawRecord(shopifyName, "orders", "", orders, s.deps.now())
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

func (s *Shopify) listPaged(ctx context.Context, resource string, cfg config.Resource) ([]json.RawMessage, error) {
	var items []json.RawMessage
	sinceID := ""
	for page := 0; page < cfg.MaxPages; page++ {
		cursor := sinceID
		if cursor == "" {
			cursor = "first"
		}
		parts := []string{resource, cfg.Status, strconv.Itoa(cfg.Limit), cursor}

		body, _, err := s.deps.Cache.GetOrFetch(ctx, shopifyName, parts, s.deps.TTL, s.deps.NoCache,
			func(ctx context.Context) (json.RawMessage, error) {
				params := url.Values{}
				params.Set("limit", strconv.Itoa(cfg.Limit))
				if resource == "orders" && cfg.Status != "" {
					params.Set("status", cfg.Status)
				}
				if sinceID != "" {
					params.Set("since_id", sinceID)
				}
				return s.core.getJSON(ctx, s.baseURL+"/"+resource+".json", params, s.headers())
			})
		if err != nil {
			return nil, err
		}

		var wrapper map[string][]json.RawMessage
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, fmt.Errorf("%w: decode %s page: %v", ErrAPIRequest, resource, err)
		}
		pageItems := wrapper[resource]
		items = append(items, pageItems...)
		if len(pageItems) < cfg.Limit {
			break
		}
		sinceID = itemID(pageItems[len(pageItems)-1])
		if sinceID == "" {
			break
		}
	}
	return items, nil
}
