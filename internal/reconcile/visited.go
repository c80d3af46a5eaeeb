package reconcile

import "sync"

// Visited records which incoming entities have been merged and the master
// each one resolved to.
type Visited struct {
	mu      sync.Mutex
	masters map[string]any
}

// NewVisited returns an empty visited set.
func NewVisited() *Visited {
	return &Visited{masters: make(map[string]any)}
}

func visitedKey(kind, alternateID string) string {
	return kind + ":" + alternateID
}

// lookup returns the master recorded for an incoming entity.
func (v *Visited) lookup(kind, alternateID string) (any, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	m, ok := v.masters[visitedKey(kind, alternateID)]
	return m, ok
}

// record maps an incoming entity to its master.
// It must be called before descending into children.
func (v *Visited) record(kind, alternateID string, master any) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.masters[visitedKey(kind, alternateID)] = master
}

// Contains reports whether the incoming entity has been visited.
func (v *Visited) Contains(kind, alternateID string) bool {
	_, ok := v.lookup(kind, alternateID)
	return ok
}

// Len returns the number of visited entities.
func (v *Visited) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return len(v.masters)
}
