// Package merge decides, for each incoming entity, whether it is new, a
// duplicate, or a newer version of a row already in the dataset.
package merge

import (
	"time"

	"cpipe/internal/model"
)

// Entity is any normalized row that can be keyed for dedup. Product and Order
// both satisfy it.
type Entity interface {
	EntityKey() model.Key
	IngestionTime() time.Time
}

// Metrics counts the net effect of one merge against the existing dataset.
// Dropped covers exact duplicates and stale re-fetches; it is observability
// only and not part of the run-log counters. Compacted counts version-history
// rows removed when a pair-mode run touches a key that earlier triple-mode
// runs left duplicated.
type Metrics struct {
	New       int
	Updated   int
	Dropped   int
	Compacted int
}

// Changed reports whether the merge modified the dataset. Callers skip the
// storage rewrite when it is false.
func (m Metrics) Changed() bool { return m.New > 0 || m.Updated > 0 || m.Compacted > 0 }

// Merge folds incoming entities into existing under the given key mode and
// returns the merged dataset with its metrics.
//
// Incoming order is semantically meaningful: within-batch collisions on the
// same key are resolved last-write-wins in arrival order, and a key is counted
// at most once per run (new if it was absent from the existing dataset,
// updated if a replacement of an existing row happened). The existing dataset
// is never mutated; rows keep their positions, replacements happen in place.
func Merge[T Entity](existing []T, incoming []T, mode model.KeyMode) ([]T, Metrics) {
	switch mode {
	case model.KeyModePair:
		return mergePair(existing, incoming)
	default:
		return mergeTriple(existing, incoming)
	}
}

// mergeTriple treats every distinct (source, source_id, raw_hash) as its own
// row. A key already present is an exact payload duplicate and is dropped;
// rows whose hash differs are appended as new versions, history is preserved.
func mergeTriple[T Entity](existing []T, incoming []T) ([]T, Metrics) {
	var m Metrics
	seen := make(map[model.Key]struct{}, len(existing)+len(incoming))
	for _, e := range existing {
		seen[e.EntityKey()] = struct{}{}
	}

	out := existing
	appended := false
	for _, in := range incoming {
		k := in.EntityKey()
		if _, dup := seen[k]; dup {
			m.Dropped++
			continue
		}
		if !appended {
			// Copy on first append so the caller's existing slice stays intact.
			out = append(make([]T, 0, len(existing)+len(incoming)), existing...)
			appended = true
		}
		out = append(out, in)
		seen[k] = struct{}{}
		m.New++
	}
	return out, m
}

// mergePair keeps one live row per (source, source_id). A newer ingestion
// replaces the stored row; on equal timestamps a raw_hash difference tie-breaks
// by arrival order (last write wins); anything older is a stale re-fetch and
// is dropped. A key can hold several existing rows when earlier runs used
// triple mode; a batch touch collapses it to its latest row so no two rows
// share a pair key after the merge.
func mergePair[T Entity](existing []T, incoming []T) ([]T, Metrics) {
	var m Metrics
	out := append(make([]T, 0, len(existing)+len(incoming)), existing...)

	pos := make(map[model.Key][]int, len(existing))
	preexisting := make(map[model.Key]bool, len(existing))
	for i, e := range out {
		pk := e.EntityKey().Pair()
		pos[pk] = append(pos[pk], i)
		preexisting[pk] = true
	}

	removed := make(map[int]bool)
	counted := make(map[model.Key]bool, len(incoming))
	for _, in := range incoming {
		pk := in.EntityKey().Pair()
		occ, ok := pos[pk]
		if !ok {
			pos[pk] = []int{len(out)}
			out = append(out, in)
			m.New++
			counted[pk] = true
			continue
		}
		last := occ[len(occ)-1]
		if len(occ) > 1 {
			for _, i := range occ[:len(occ)-1] {
				removed[i] = true
			}
			pos[pk] = []int{last}
			m.Compacted += len(occ) - 1
		}
		if !supersedes(in, out[last]) {
			m.Dropped++
			continue
		}
		out[last] = in
		if preexisting[pk] && !counted[pk] {
			// Only the net effect against the existing dataset is counted;
			// within-batch supersessions of a freshly inserted key are not.
			m.Updated++
			counted[pk] = true
		}
	}
	if len(removed) > 0 {
		kept := make([]T, 0, len(out)-len(removed))
		for i, e := range out {
			if !removed[i] {
				kept = append(kept, e)
			}
		}
		out = kept
	}
	return out, m
}

func supersedes(in, cur Entity) bool {
	it, ct := in.IngestionTime(), cur.IngestionTime()
	if it.After(ct) {
		return true
	}
	return it.Equal(ct) && in.EntityKey().RawHash != cur.EntityKey().RawHash
}
