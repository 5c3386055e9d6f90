package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Manifest records which run last rewrote the normalized datasets and how big
// they are. Written next to the datasets as manifest.latest.json.
type Manifest struct {
	RunID                string `json:"runId"`
	Products             int    `json:"products"`
	Orders               int    `json:"orders"`
	Format               string `json:"format"`
	UpdatedAtEpochSecond int64  `json:"updatedAt"`
}

func (d *Datasets) manifestPath() string {
	return filepath.Join(d.root, "normalized", "manifest.latest.json")
}

func (d *Datasets) WriteManifest(runID string, products, orders int, now time.Time) error {
	if err := os.MkdirAll(filepath.Dir(d.manifestPath()), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	m := Manifest{
		RunID:                runID,
		Products:             products,
		Orders:               orders,
		Format:               string(d.format),
		UpdatedAtEpochSecond: now.UTC().Unix(),
	}
	out, err := os.Create(d.manifestPath())
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer out.Close()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&m); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

func (d *Datasets) ReadManifest() (Manifest, error) {
	data, err := os.ReadFile(d.manifestPath())
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return m, nil
}
