package provider

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cpipe/internal/model"
)

// rawRecord wraps one fetched payload with its provenance and content hash.
func rawRecord(providerName, resource, tag string, payload any, fetchedAt time.Time) (model.RawRecord, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return model.RawRecord{}, fmt.Errorf("marshal %s/%s payload: %w", providerName, resource, err)
	}
	hash, err := model.SHA256JSON(json.RawMessage(body))
	if err != nil {
		return model.RawRecord{}, fmt.Errorf("hash %s/%s payload: %w", providerName, resource, err)
	}
	return model.RawRecord{
		Provider:  providerName,
		Resource:  resource,
		Tag:       tag,
		FetchedAt: fetchedAt.UTC(),
		Payload:   body,
		RawHash:   hash,
	}, nil
}

// itemID extracts the "id" field of a JSON object as a string, tolerating both
// numeric and string ids. Empty when absent.
func itemID(item json.RawMessage) string {
	var v struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(item, &v); err != nil || v.ID == nil {
		return ""
	}
	return strings.Trim(string(v.ID), `"`)
}
