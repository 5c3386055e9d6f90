package cache

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPebbleStore_PutGet(t *testing.T) {
	s, err := NewPebbleStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	e := Entry{
		Signature:   Signature("products", "50", "first"),
		Provider:    "shopify",
		StoredAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		TTLSeconds:  3600,
		RawResponse: json.RawMessage(`{"products":[{"id":1}]}`),
	}
	if err := s.Put(e); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok := s.Get("shopify", e.Signature)
	if !ok {
		t.Fatalf("entry not found after put")
	}
	if got.Provider != e.Provider || !got.StoredAt.Equal(e.StoredAt) || got.TTLSeconds != e.TTLSeconds {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if string(got.RawResponse) != string(e.RawResponse) {
		t.Fatalf("body mismatch: %s", got.RawResponse)
	}
}

func TestPebbleStore_MissingAndOverwrite(t *testing.T) {
	s, err := NewPebbleStore(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, ok := s.Get("ebay", "nope"); ok {
		t.Fatalf("missing key must miss")
	}

	sig := Signature("search", "drone")
	for i, body := range []string{`[1]`, `[1,2]`} {
		e := Entry{Signature: sig, Provider: "ebay", StoredAt: time.Now().UTC(), RawResponse: json.RawMessage(body)}
		if err := s.Put(e); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	got, ok := s.Get("ebay", sig)
	if !ok || string(got.RawResponse) != `[1,2]` {
		t.Fatalf("overwrite must keep last value, got ok=%v body=%s", ok, got.RawResponse)
	}
}
