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

const ebayName = "ebay"

// Ebay runs the configured Browse API search queries. Each query yields one
// raw record tagged with the query text.
type Ebay struct {
	deps        Deps
	core        *httpCore
	baseURL     string
	token       string
	marketplace string
	search      config.Resource
}

func NewEbay(deps Deps, baseURL, token, marketplace string, search config.Resource) *Ebay {
	return &Ebay{
		deps:        deps,
		core:        newHTTPCore(deps, ebayName),
		baseURL:     baseURL,
		token:       token,
		marketplace: marketplace,
		search:      search,
	}
}

func NewEbayFromEnv(deps Deps, p config.Provider, d config.Defaults) (*Ebay, error) {
	token := os.Getenv("EBAY_OAUTH_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("%w: EBAY_OAUTH_TOKEN", ErrCredentialMissing)
	}
	marketplace := os.Getenv("EBAY_MARKETPLACE_ID")
	if marketplace == "" {
		marketplace = "EBAY_US"
	}
	search, _ := p.Resource("search", d)
	return NewEbay(deps, "https://api.ebay.com/buy/browse/v1", token, marketplace, search), nil
}

func (e *Ebay) Name() string { return ebayName }

func (e *Ebay) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+e.token)
	h.Set("Accept", "application/json")
	h.Set("X-EBAY-C-MARKETPLACE-ID", e.marketplace)
	return h
}

func (e *Ebay) Collect(ctx context.Context) ([]model.RawRecord, error) {
	var records []model.RawRecord
	for _, query := range e.search.Queries {
		items, err := e.searchItems(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("search %q: %w", query, err)
		}
		rec, err := rawRecord(ebayName, "search", query, items, e.deps.now())
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (e *Ebay) searchItems(ctx context.Context, query string) ([]json.RawMessage, error) {
	limit := e.search.Limit
	parts := []string{"search", query, strconv.Itoa(limit)}
	body, _, err := e.deps.Cache.GetOrFetch(ctx, ebayName, parts, e.deps.TTL, e.deps.NoCache,
		func(ctx context.Context) (json.RawMessage, error) {
			params := url.Values{}
			params.Set("q", query)
			params.Set("limit", strconv.Itoa(limit))
			return e.core.getJSON(ctx, e.baseURL+"/item_summary/search", params, e.headers())
		})
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		ItemSummaries []json.RawMessage `json:"itemSummaries"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", ErrAPIRequest, err)
	}
	return wrapper.ItemSummaries, nil
}
