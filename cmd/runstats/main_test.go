package main

import (
	"testing"

	"cpipe/internal/metrics"
	"cpipe/internal/runlog"
)

func TestIngestEntriesRestartsAfterTruncation(t *testing.T) {
	reg := metrics.NewRegistry()
	entries := []runlog.Entry{
		{Status: runlog.StatusSuccess},
		{Status: runlog.StatusSuccess},
		{Status: runlog.StatusPartial},
	}
	seen := ingestEntries(reg, entries, 0)
	if seen != 3 {
		t.Fatalf("seen = %d, want 3", seen)
	}
	if n := ingestEntries(reg, entries, seen); n != 3 {
		t.Fatalf("unchanged log must keep the index: %d", n)
	}

	// The log shrank between polls (rotation). Must not panic and must count
	// the surviving entries from the top.
	short := entries[:1]
	if n := ingestEntries(reg, short, seen); n != 1 {
		t.Fatalf("seen after truncation = %d, want 1", n)
	}
}
