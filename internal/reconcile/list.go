package reconcile

import "fmt"

// ListResult reports what SyncList did.
// Added and Updated hold masters; Removed holds the dropped masters.
type ListResult[T any] struct {
	Added   []T
	Removed []T
	Updated []T
}

// Changed reports whether the list changed membership.
func (r ListResult[T]) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0
}

// matchedPair links an incoming item to the index of its master.
type matchedPair[T any] struct {
	master   int
	incoming T
}

type listOptions[T any] struct {
	delta bool
	match func(master, incoming T) bool
}

// ListOption configures SyncList for a Merger of T.
type ListOption[T any] func(*listOptions[T])

// Delta treats the incoming list as changed records only: masters absent
// from it are kept.
func Delta[T any]() ListOption[T] {
	return func(o *listOptions[T]) {
		o.delta = true
	}
}

// WithMatcher overrides the match predicate for one SyncList call.
func WithMatcher[T any](match func(master, incoming T) bool) ListOption[T] {
	return func(o *listOptions[T]) {
		o.match = match
	}
}

// SyncList merges syncWith into masterList.
//
// In full-replace mode (the default) masters with no counterpart in
// syncWith are removed. In delta mode they are kept. Incoming items with no
// counterpart are added as new masters; matched pairs are merged in place.
// Added and removed sets are computed before the list is rebuilt. Absent
// (nil) entries in either list are skipped, and an unmatched incoming item is
// added once per alternate id.
func (m *Merger[T]) SyncList(v *Visited, masterList, syncWith []T, opts ...ListOption[T]) ([]T, ListResult[T], error) {
	var cfg listOptions[T]
	for _, opt := range opts {
		opt(&cfg)
	}

	match := m.Match
	if cfg.match != nil {
		match = cfg.match
	}
	if match == nil {
		match = SameAlternateID[T]
	}
	if v == nil {
		v = NewVisited()
	}

	var zero T
	var (
		pairs   []matchedPair[T]
		adds    []T
		matched = make([]bool, len(masterList))
	)
	for _, in := range syncWith {
		if in == zero {
			continue
		}
		idx := -1
		for j, mst := range masterList {
			if mst != zero && match(mst, in) {
				idx = j
				break
			}
		}
		if idx < 0 {
			adds = append(adds, in)
			continue
		}
		matched[idx] = true
		pairs = append(pairs, matchedPair[T]{master: idx, incoming: in})
	}

	var result ListResult[T]
	out := make([]T, 0, len(masterList)+len(adds))
	pos := make(map[int]int, len(masterList))
	for j, mst := range masterList {
		if mst == zero {
			continue
		}
		if !matched[j] && !cfg.delta {
			result.Removed = append(result.Removed, mst)
			continue
		}
		pos[j] = len(out)
		out = append(out, mst)
	}

	for _, p := range pairs {
		merged, err := m.Sync(v, masterList[p.master], p.incoming)
		if err != nil {
			return nil, ListResult[T]{}, fmt.Errorf("sync list %s: %w", m.Kind, err)
		}
		out[pos[p.master]] = merged
		result.Updated = append(result.Updated, merged)
	}

	// An incoming item whose alternate id was already merged or added in
	// this call would resolve to the same master through the visited set.
	resolved := make(map[string]bool, len(pairs)+len(adds))
	for _, p := range pairs {
		resolved[p.incoming.AlternateID()] = true
	}
	for _, in := range adds {
		alt := in.AlternateID()
		if alt != "" && resolved[alt] {
			continue
		}
		resolved[alt] = true
		created, err := m.Sync(v, zero, in)
		if err != nil {
			return nil, ListResult[T]{}, fmt.Errorf("sync list %s: %w", m.Kind, err)
		}
		out = append(out, created)
		result.Added = append(result.Added, created)
	}

	return out, result, nil
}
