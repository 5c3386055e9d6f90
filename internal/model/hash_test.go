package model

import (
	"encoding/json"
	"testing"
)

func TestSHA256JSON_KeyOrderIndependent(t *testing.T) {
	a := json.RawMessage(`{"b":2,"a":1,"nested":{"y":true,"x":null}}`)
	b := json.RawMessage(`{"a":1,"nested":{"x":null,"y":true},"b":2}`)

	ha, err := SHA256JSON(a)
	if err != nil {
		t.Fatalf("hash a: %v", err)
	}
	hb, err := SHA256JSON(b)
	if err != nil {
		t.Fatalf("hash b: %v", err)
	}
	if ha != hb {
		t.Fatalf("hashes differ for equal payloads: %s vs %s", ha, hb)
	}
}

func TestSHA256JSON_DistinguishesPayloads(t *testing.T) {
	ha, err := SHA256JSON(map[string]any{"id": "1"})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	hb, err := SHA256JSON(map[string]any{"id": "2"})
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if ha == hb {
		t.Fatalf("different payloads must not collide")
	}
}

func TestHashEmail_Normalizes(t *testing.T) {
	if HashEmail(" User@Example.COM ") != HashEmail("user@example.com") {
		t.Fatalf("email hash should ignore case and whitespace")
	}
}

func TestKeyPair_DropsRawHash(t *testing.T) {
	k := Key{Source: "shopify", SourceID: "123", RawHash: "abc"}
	p := k.Pair()
	if p.RawHash != "" || p.Source != "shopify" || p.SourceID != "123" {
		t.Fatalf("unexpected pair key: %+v", p)
	}
}
