package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FSStore keeps one JSON file per entry under <root>/<provider>/<signature>.json.
// The per-provider directory allows wiping a single provider's cache by hand.
// Entries are replaced whole via rename, so overlapping pipeline invocations
// degrade to last-writer-wins on a signature.
type FSStore struct {
	root string
}

func NewFSStore(root string) *FSStore { return &FSStore{root: root} }

func (s *FSStore) path(provider, signature string) string {
	return filepath.Join(s.root, provider, signature+".json")
}

func (s *FSStore) Get(provider, signature string) (Entry, bool) {
	data, err := os.ReadFile(s.path(provider, signature))
	if err != nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// Corrupt entry: treat as miss, the next Put overwrites it.
		return Entry{}, false
	}
	return e, true
}

func (s *FSStore) Put(e Entry) error {
	dir := filepath.Join(s.root, e.Provider)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	data, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	final := s.path(e.Provider, e.Signature)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("rename entry: %w", err)
	}
	return nil
}

func (s *FSStore) Close() error { return nil }
