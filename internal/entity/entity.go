package entity

import (
	"time"
)

// LocalIDCeiling is the first id owned by the remote authority.
// Ids in [1, LocalIDCeiling) are allocated locally for unconfirmed records.
const LocalIDCeiling int64 = 10000

// IsLocalID reports whether id is a provisional, locally allocated id.
func IsLocalID(id int64) bool {
	return id > 0 && id < LocalIDCeiling
}

// Syncable is implemented by every business object that can be reconciled,
// stored and queued. Types satisfy it by embedding Base.
type Syncable interface {
	AlternateID() string
	Meta() *Base
}

// Base holds the framework fields common to all entities.
//
// New and Dirty are in-memory lifecycle flags and are not serialized:
// a record loaded from the store is neither new nor dirty.
type Base struct {
	AltID     string    `json:"alternate_id"`
	ID        int64     `json:"id"`
	New       bool      `json:"-"`
	Dirty     bool      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBase returns a Base for a freshly constructed entity using the
// default AlternateID generator.
func NewBase() Base {
	return NewBaseWith(DefaultGenerator)
}

// NewBaseWith returns a Base whose AlternateID comes from gen.
func NewBaseWith(gen Generator) Base {
	return Base{
		AltID: gen.Generate(),
		New:   true,
		Dirty: true,
	}
}

// AlternateID returns the client-assigned identity.
func (b *Base) AlternateID() string {
	return b.AltID
}

// Meta returns the framework fields. Embedding types inherit it.
func (b *Base) Meta() *Base {
	return b
}

// IsNew reports whether the entity has never been durably saved.
func (b *Base) IsNew() bool {
	return b.New
}

// IsDirty reports whether the entity has unsaved changes.
func (b *Base) IsDirty() bool {
	return b.Dirty
}

// IsLocal reports whether the entity holds a provisional local id.
func (b *Base) IsLocal() bool {
	return IsLocalID(b.ID)
}

// MarkDirty flags the entity as changed and stamps UpdatedAt.
func (b *Base) MarkDirty(now time.Time) {
	b.Dirty = true
	b.UpdatedAt = now
}

// MarkSaved clears the lifecycle flags after a durable write.
func (b *Base) MarkSaved() {
	b.New = false
	b.Dirty = false
}

// CopySyncFields copies the framework fields the reconciler carries over
// after a shallow copy: the AlternateID and the dirty flag.
func (b *Base) CopySyncFields(src *Base) {
	if src == nil {
		return
	}
	b.AltID = src.AltID
	b.Dirty = src.Dirty
}
