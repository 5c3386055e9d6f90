package cache

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

// PebbleStore implements Store on PebbleDB for deployments where the cache
// directory would otherwise accumulate very many small files.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	opts := &pebble.Options{
		MemTableSize:          64 << 20,
		L0CompactionThreshold: 4,
	}
	db, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func pebbleKey(provider, signature string) []byte {
	return []byte(provider + "/" + signature)
}

func (s *PebbleStore) Get(provider, signature string) (Entry, bool) {
	v, closer, err := s.db.Get(pebbleKey(provider, signature))
	if err != nil {
		return Entry{}, false
	}
	defer closer.Close()
	var e Entry
	if err := json.Unmarshal(v, &e); err != nil {
		return Entry{}, false
	}
	return e, true
}

func (s *PebbleStore) Put(e Entry) error {
	data, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	// NoSync: cache entries are refetchable, no need to pay for durability.
	if err := s.db.Set(pebbleKey(e.Provider, e.Signature), data, pebble.NoSync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}
