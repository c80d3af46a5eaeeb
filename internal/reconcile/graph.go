package reconcile

import (
	"errors"
	"fmt"

	"github.com/roach88/bizsync/internal/entity"
)

// ErrMissingAlternateID is returned when an incoming entity has no
// AlternateID and therefore cannot be matched.
var ErrMissingAlternateID = errors.New("incoming entity has no alternate id")

// ErrNoConstructor is returned when a master must be created but the
// Merger has no New func.
var ErrNoConstructor = errors.New("merger has no constructor")

// Merger describes how to reconcile one entity type.
//
// T is normally a pointer to a struct embedding entity.Base. The zero value
// of T (nil) means "absent".
type Merger[T interface {
	comparable
	entity.Syncable
}] struct {
	// Kind namespaces AlternateIDs in the visited set.
	Kind string

	// New constructs an empty master.
	New func() T

	// CopyFields copies scalar fields from src to dst. Framework fields
	// are copied afterwards by Sync.
	CopyFields func(dst, src T)

	// MergeChildren recurses into child collections. Optional.
	MergeChildren func(v *Visited, dst, src T) error

	// Match overrides AlternateID equality in SyncList. Optional.
	Match func(master, incoming T) bool
}

// Sync merges incoming into master and returns the resulting master.
//
// An absent incoming leaves master unchanged. An absent master is created
// with New first. If incoming was already visited, the master recorded for
// it is returned without recursing.
func (m *Merger[T]) Sync(v *Visited, master, incoming T) (T, error) {
	var zero T
	if incoming == zero {
		return master, nil
	}

	alt := incoming.AlternateID()
	if alt == "" {
		return zero, fmt.Errorf("sync %s: %w", m.Kind, ErrMissingAlternateID)
	}
	if v == nil {
		v = NewVisited()
	}
	if prev, ok := v.lookup(m.Kind, alt); ok {
		resolved, ok := prev.(T)
		if !ok {
			return zero, fmt.Errorf("sync %s %s: visited entry has type %T", m.Kind, alt, prev)
		}
		return resolved, nil
	}

	if master == zero {
		if m.New == nil {
			return zero, fmt.Errorf("sync %s %s: %w", m.Kind, alt, ErrNoConstructor)
		}
		master = m.New()
	}
	v.record(m.Kind, alt, master)

	if m.CopyFields != nil {
		m.CopyFields(master, incoming)
	}
	master.Meta().CopySyncFields(incoming.Meta())

	if m.MergeChildren != nil {
		if err := m.MergeChildren(v, master, incoming); err != nil {
			return zero, fmt.Errorf("sync %s %s children: %w", m.Kind, alt, err)
		}
	}
	return master, nil
}

// SameAlternateID is the default match predicate.
func SameAlternateID[T entity.Syncable](master, incoming T) bool {
	return master.AlternateID() == incoming.AlternateID()
}
