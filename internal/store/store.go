// Package store persists the normalized datasets and the raw payload dumps.
// Datasets are columnar parquet by default with a row-oriented JSONL fallback;
// loads accept either so the format can change between runs.
package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"cpipe/internal/model"
)

// Format selects the on-disk representation of the normalized datasets.
type Format string

const (
	FormatParquet Format = "parquet"
	FormatJSONL   Format = "jsonl"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatParquet, FormatJSONL:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown dataset format %q (want parquet or jsonl)", s)
}

// Datasets reads and writes the normalized product and order files under
// <root>/normalized/.
type Datasets struct {
	root   string
	format Format
}

func NewDatasets(root string, format Format) *Datasets {
	if format == "" {
		format = FormatParquet
	}
	return &Datasets{root: root, format: format}
}

// Root is the data root the datasets and raw dumps live under.
func (d *Datasets) Root() string { return d.root }

func (d *Datasets) path(name string, f Format) string {
	ext := "parquet"
	if f == FormatJSONL {
		ext = "jsonl"
	}
	return filepath.Join(d.root, "normalized", name+"."+ext)
}

// LoadProducts returns the persisted product dataset, trying parquet first and
// the JSONL fallback second. A missing dataset is empty, not an error.
func (d *Datasets) LoadProducts() ([]model.Product, error) {
	return loadRows[model.Product](d, "products")
}

func (d *Datasets) SaveProducts(rows []model.Product) error {
	return saveRows(d, "products", rows)
}

func (d *Datasets) LoadOrders() ([]model.Order, error) {
	return loadRows[model.Order](d, "orders")
}

func (d *Datasets) SaveOrders(rows []model.Order) error {
	return saveRows(d, "orders", rows)
}

func loadRows[T any](d *Datasets, name string) ([]T, error) {
	if p := d.path(name, FormatParquet); exists(p) {
		rows, err := parquet.ReadFile[T](p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		return rows, nil
	}
	if p := d.path(name, FormatJSONL); exists(p) {
		rows, err := readJSONL[T](p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		return rows, nil
	}
	return nil, nil
}

// saveRows writes the full dataset through a temp file and a rename so readers
// never observe a half-written file.
func saveRows[T any](d *Datasets, name string, rows []T) error {
	target := d.path(name, d.format)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := target + ".tmp"
	var err error
	switch d.format {
	case FormatJSONL:
		err = writeJSONL(tmp, rows)
	default:
		err = parquet.WriteFile(tmp, rows)
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", target, err)
	}
	// A superseded fallback file would otherwise shadow future loads.
	other := d.path(name, FormatJSONL)
	if d.format == FormatJSONL {
		other = d.path(name, FormatParquet)
	}
	if err := os.Remove(other); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale %s: %w", other, err)
	}
	return nil
}

func writeJSONL[T any](path string, rows []T) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	for i := range rows {
		if err := enc.Encode(&rows[i]); err != nil {
			out.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func readJSONL[T any](path string) ([]T, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	var rows []T
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, fmt.Errorf("line %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
