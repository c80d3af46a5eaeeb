package entity

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator produces AlternateIDs.
// Implemented by UUIDv7Generator (production) and SequenceGenerator (tests).
type Generator interface {
	Generate() string
}

// DefaultGenerator is used by NewBase.
var DefaultGenerator Generator = UUIDv7Generator{}

// UUIDv7Generator generates time-sortable UUIDv7 alternate ids.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if the random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator returns "<prefix>-1", "<prefix>-2", ... for deterministic tests.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator with the given prefix.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id in the sequence.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// ValidAlternateID reports whether id can identify an entity.
func ValidAlternateID(id string) bool {
	return id != ""
}
