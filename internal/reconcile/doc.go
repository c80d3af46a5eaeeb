// Package reconcile merges two versions of an object graph.
//
// Entities are matched by AlternateID, never by integer id, because an
// entity created offline has no server id yet. A Merger describes how one
// entity type is copied and how its children recurse; Sync merges a single
// entity and SyncList merges a list in full-replace or delta mode.
//
// # Cycles
//
// Every call threads an explicit Visited set keyed by (kind, incoming
// AlternateID). An incoming entity already in the set resolves to the master
// recorded for it without recursing again, which breaks reference cycles
// such as an order pointing back at its customer and stops shared
// sub-objects from being merged twice.
//
// # Junctions
//
// GetRemoveItems, GetAddItems and GetExistingItems compute how a set of
// many-to-many junction rows must change to mirror a desired child set.
// They are pure functions over a caller-supplied match predicate.
package reconcile
