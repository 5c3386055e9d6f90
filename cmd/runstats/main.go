package main

import (
	"flag"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"cpipe/internal/metrics"
	"cpipe/internal/runlog"
)

// runstats tails the pipeline run log on an interval and exports the latest
// run's counters and age as Prometheus metrics.
func main() {
	var (
		dataRoot        string
		httpAddr        string
		pollIntervalSec int
	)
	flag.StringVar(&dataRoot, "data-root", "data", "pipeline data root")
	flag.StringVar(&httpAddr, "http", ":9091", "http listen for /metrics")
	flag.IntVar(&pollIntervalSec, "poll", 10, "poll interval seconds for the run log")
	flag.Parse()

	reg := metrics.NewRegistry()
	go func() {
		http.Handle("/metrics", reg.Handler())
		if err := http.ListenAndServe(httpAddr, nil); err != nil {
			log.Fatalf("metrics endpoint: %v", err)
		}
	}()

	logPath := filepath.Join(dataRoot, "metadata", "pipeline_runs.jsonl")
	ticker := time.NewTicker(time.Duration(pollIntervalSec) * time.Second)
	defer ticker.Stop()

	seen := 0
	for {
		entries, err := runlog.Read(logPath)
		if err != nil {
			log.Printf("read run log: %v", err)
			<-ticker.C
			continue
		}
		if n := ingestEntries(reg, entries, seen); n != seen {
			log.Printf("run log at %d entries", n)
			seen = n
		}

		if len(entries) > 0 {
			last := entries[len(entries)-1]
			reg.LastRunAgeSec.Set(time.Since(last.FinishedAt).Seconds())
			if last.Status == runlog.StatusSuccess {
				reg.LastRunSuccess.Set(1)
			} else {
				reg.LastRunSuccess.Set(0)
			}
		}
		<-ticker.C
	}
}

// ingestEntries feeds entries past the seen index into the registry and
// returns the new index. A log shorter than last poll means it was rotated or
// truncated; counting restarts from the top.
func ingestEntries(reg *metrics.Registry, entries []runlog.Entry, seen int) int {
	if seen > len(entries) {
		seen = 0
	}
	for _, e := range entries[seen:] {
		reg.RunsTotal.WithLabelValues(e.Status).Inc()
		reg.RunDurationSec.Observe(float64(e.DurationMS) / 1000)
		reg.NewProducts.Add(float64(e.NewProducts))
		reg.UpdatedProducts.Add(float64(e.UpdatedProducts))
		reg.NewOrders.Add(float64(e.NewOrders))
		reg.UpdatedOrders.Add(float64(e.UpdatedOrders))
		reg.RecordsSkipped.Add(float64(e.SkippedRecords))
	}
	return len(entries)
}
