package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"cpipe/internal/provider"
)

// gencatalog writes synthetic raw payload fixtures to disk: a shopify-shaped
// product catalog and matching orders. Useful for offline runs and e2e tests
// without any provider credentials.
func main() {
	var (
		products int
		orders   int
		seed     int64
		outDir   string
	)
	flag.IntVar(&products, "products", 100, "number of products to generate")
	flag.IntVar(&orders, "orders", 30, "number of orders to generate")
	flag.Int64Var(&seed, "seed", 0, "generator seed, 0 uses the current time")
	flag.StringVar(&outDir, "output", "fixtures", "output directory")
	flag.Parse()

	if err := generate(products, orders, seed, outDir); err != nil {
		log.Fatalf("generation failed: %v", err)
	}
}

func generate(products, orders int, seed int64, outDir string) error {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	rng := rand.New(rand.NewSource(seed))

	catalog := provider.GenerateProducts(rng, products)
	if err := writeJSON(filepath.Join(outDir, "products.json"), catalog); err != nil {
		return err
	}

	ids := make([]string, 0, len(catalog))
	for _, p := range catalog {
		ids = append(ids, p["id"].(string))
	}
	orderList := provider.GenerateOrders(rng, orders, ids, time.Now().UTC())
	if err := writeJSON(filepath.Join(outDir, "orders.json"), orderList); err != nil {
		return err
	}

	log.Printf("generated %d products and %d orders to %s (seed %d)", products, orders, outDir, seed)
	return nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
