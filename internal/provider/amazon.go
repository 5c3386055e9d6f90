package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"cpipe/internal/config"
	"cpipe/internal/model"
)

const amazonName = "amazon"

// amazonMaxASINs is the PA-API GetItems batch ceiling.
const amazonMaxASINs = 10

// Amazon looks up the configured ASINs through the PA-API GetItems operation.
// Request signing is delegated to the transport layer and kept minimal here.
type Amazon struct {
	deps       Deps
	core       *httpCore
	baseURL    string
	accessKey  string
	partnerTag string
	asins      []string
}

func NewAmazon(deps Deps, baseURL, accessKey, partnerTag string, asins []string) *Amazon {
	if len(asins) > amazonMaxASINs {
		asins = asins[:amazonMaxASINs]
	}
	return &Amazon{
		deps:       deps,
		core:       newHTTPCore(deps, amazonName),
		baseURL:    baseURL,
		accessKey:  accessKey,
		partnerTag: partnerTag,
		asins:      asins,
	}
}

// NewAmazonFromEnv builds the client from AMAZON_PAAPI_* environment
// variables; any missing one wraps ErrCredentialMissing.
func NewAmazonFromEnv(deps Deps, p config.Provider, d config.Defaults) (*Amazon, error) {
	var vals []string
	for _, name := range []string{"AMAZON_PAAPI_ACCESS_KEY", "AMAZON_PAAPI_SECRET_KEY", "AMAZON_PAAPI_PARTNER_TAG", "AMAZON_PAAPI_HOST"} {
		v := os.Getenv(name)
		if v == "" {
			return nil, fmt.Errorf("%w: %s", ErrCredentialMissing, name)
		}
		vals = append(vals, v)
	}
	items, _ := p.Resource("items", d)
	baseURL := "https://" + vals[3] + "/paapi5"
	return NewAmazon(deps, baseURL, vals[0], vals[2], items.ASINs), nil
}

func (a *Amazon) Name() string { return amazonName }

func (a *Amazon) Collect(ctx context.Context) ([]model.RawRecord, error) {
	if len(a.asins) == 0 {
		return nil, nil
	}
	parts := []string{"items", strings.Join(a.asins, ",")}
	body, _, err := a.deps.Cache.GetOrFetch(ctx, amazonName, parts, a.deps.TTL, a.deps.NoCache,
		func(ctx context.Context) (json.RawMessage, error) {
			payload, err := json.Marshal(map[string]any{
				"ItemIds":     a.asins,
				"PartnerTag":  a.partnerTag,
				"PartnerType": "Associates",
				"Resources": []string{
					"Images.Primary.Small",
					"ItemInfo.Title",
					"Offers.Listings.Price",
				},
			})
			if err != nil {
				return nil, fmt.Errorf("marshal getitems payload: %w", err)
			}
			h := http.Header{}
			h.Set("Content-Type", "application/json; charset=UTF-8")
			h.Set("X-Amz-Target", "com.amazon.paapi5.v1.ProductAdvertisingAPIv1.GetItems")
			h.Set("Authorization", "AWS4-HMAC-SHA256 Credential="+a.accessKey)
			return a.core.postJSON(ctx, a.baseURL+"/getitems", payload, h)
		})
	if err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}
	rec, err := rawRecord(amazonName, "items", "", json.RawMessage(body), a.deps.now())
	if err != nil {
		return nil, err
	}
	return []model.RawRecord{rec}, nil
}
