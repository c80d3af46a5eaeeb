// Package persist ties an entity type's local lifecycle together: local id
// allocation, durable storage, queueing the upload, and applying versions
// returned by the server.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/bizsync/internal/entity"
	"github.com/roach88/bizsync/internal/idalloc"
	"github.com/roach88/bizsync/internal/reconcile"
	"github.com/roach88/bizsync/internal/sendqueue"
	"github.com/roach88/bizsync/internal/store"
)

// RecordStore is the record persistence a Manager needs.
// store.Store implements it.
type RecordStore interface {
	idalloc.Source
	Insert(ctx context.Context, rec store.Record) (int64, error)
	Update(ctx context.Context, rec store.Record) (int64, error)
	Delete(ctx context.Context, kind, alternateID string) (int64, error)
	FindByAlternateID(ctx context.Context, kind, alternateID string) (store.Record, error)
	GetAll(ctx context.Context, kind string) ([]store.Record, error)
}

// Enqueuer accepts outbound operations. sendqueue.Service implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, req sendqueue.Request) (store.QueueEntry, error)
}

type settings struct {
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*settings)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// Manager persists one entity kind.
type Manager[T interface {
	comparable
	entity.Syncable
}] struct {
	merger     *reconcile.Merger[T]
	collection string
	store      RecordStore
	queue      Enqueuer
	settings
}

// NewManager creates a Manager for merger.Kind. Uploads go to collection
// (POST) and collection/<alternate id> (PUT).
func NewManager[T interface {
	comparable
	entity.Syncable
}](merger *reconcile.Merger[T], collection string, st RecordStore, q Enqueuer, opts ...Option) *Manager[T] {
	cfg := settings{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager[T]{
		merger:     merger,
		collection: "/" + strings.Trim(collection, "/"),
		store:      st,
		queue:      q,
		settings:   cfg,
	}
}

// Kind returns the record kind this manager stores.
func (m *Manager[T]) Kind() string {
	return m.merger.Kind
}

// Save stores e locally and queues its upload.
//
// An entity not yet in the store gets a local id (when it has none), is
// inserted and queued as a POST. An existing one is updated and queued as a
// PUT, unless it is still new and the server has not assigned its id: a
// previous save whose enqueue failed never queued the create, so it is
// queued as a POST again. Save fails if either the write or the enqueue fails.
func (m *Manager[T]) Save(ctx context.Context, e T) (store.QueueEntry, error) {
	b := e.Meta()
	if b.AltID == "" {
		return store.QueueEntry{}, fmt.Errorf("save %s: %w", m.Kind(), reconcile.ErrMissingAlternateID)
	}

	existing, err := m.store.FindByAlternateID(ctx, m.Kind(), b.AltID)
	found := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return store.QueueEntry{}, fmt.Errorf("save %s %s: %w", m.Kind(), b.AltID, err)
	}

	now := m.now().UTC()
	method, path := http.MethodPost, m.collection
	if found {
		if !b.New || !entity.IsLocalID(existing.ID) {
			method, path = http.MethodPut, m.collection+"/"+b.AltID
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = existing.CreatedAt
		}
		if b.ID == 0 || (b.IsLocal() && !entity.IsLocalID(existing.ID)) {
			b.ID = existing.ID
		}
	} else {
		if b.ID == 0 {
			id, err := idalloc.NextLocalID(ctx, m.store, m.Kind())
			if err != nil {
				return store.QueueEntry{}, fmt.Errorf("save %s %s: %w", m.Kind(), b.AltID, err)
			}
			b.ID = id
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
	}
	b.UpdatedAt = now

	rec, err := m.record(e)
	if err != nil {
		return store.QueueEntry{}, fmt.Errorf("save %s %s: %w", m.Kind(), b.AltID, err)
	}
	if found {
		_, err = m.store.Update(ctx, rec)
	} else {
		_, err = m.store.Insert(ctx, rec)
	}
	if err != nil {
		return store.QueueEntry{}, fmt.Errorf("save %s %s: %w", m.Kind(), b.AltID, err)
	}

	entry, err := m.queue.Enqueue(ctx, sendqueue.Request{
		Payload:     rec.Body,
		Method:      method,
		ContentType: "application/json",
		Path:        path,
	})
	if err != nil {
		return store.QueueEntry{}, fmt.Errorf("save %s %s: %w", m.Kind(), b.AltID, err)
	}

	b.MarkSaved()
	m.logger.Debug("entity saved",
		"kind", m.Kind(),
		"alternate_id", b.AltID,
		"id", b.ID,
		"entry_id", entry.ID,
		"method", method)
	return entry, nil
}

// Load returns the stored entity with the given alternate id.
func (m *Manager[T]) Load(ctx context.Context, alternateID string) (T, error) {
	var zero T
	rec, err := m.store.FindByAlternateID(ctx, m.Kind(), alternateID)
	if err != nil {
		return zero, fmt.Errorf("load %s: %w", m.Kind(), err)
	}
	return m.decode(rec)
}

// All returns every stored entity of this kind ordered by id.
func (m *Manager[T]) All(ctx context.Context) ([]T, error) {
	recs, err := m.store.GetAll(ctx, m.Kind())
	if err != nil {
		return nil, fmt.Errorf("load all %s: %w", m.Kind(), err)
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		e, err := m.decode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// ApplyRemote merges a version received from the server into the local
// copy. The server id replaces a local id and the result is stored as
// saved. Nothing is queued.
func (m *Manager[T]) ApplyRemote(ctx context.Context, incoming T) (T, error) {
	var zero T
	if incoming == zero {
		return zero, fmt.Errorf("apply remote %s: nil entity", m.Kind())
	}
	alt := incoming.AlternateID()

	local, err := m.Load(ctx, alt)
	found := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return zero, fmt.Errorf("apply remote %s %s: %w", m.Kind(), alt, err)
	}

	merged, err := m.merger.Sync(reconcile.NewVisited(), local, incoming)
	if err != nil {
		return zero, fmt.Errorf("apply remote %s %s: %w", m.Kind(), alt, err)
	}
	if err := m.persistRemote(ctx, merged, incoming.Meta(), found); err != nil {
		return zero, fmt.Errorf("apply remote %s %s: %w", m.Kind(), alt, err)
	}
	return merged, nil
}

// ApplySnapshot reconciles the stored list with a list from the server.
// Without reconcile.Delta stored entities absent from incoming are
// deleted; with it they are kept.
func (m *Manager[T]) ApplySnapshot(ctx context.Context, incoming []T, opts ...reconcile.ListOption[T]) (reconcile.ListResult[T], error) {
	local, err := m.All(ctx)
	if err != nil {
		return reconcile.ListResult[T]{}, fmt.Errorf("apply snapshot %s: %w", m.Kind(), err)
	}

	remote := make(map[string]*entity.Base, len(incoming))
	var zero T
	for _, in := range incoming {
		if in != zero {
			remote[in.AlternateID()] = in.Meta()
		}
	}

	_, result, err := m.merger.SyncList(reconcile.NewVisited(), local, incoming, opts...)
	if err != nil {
		return reconcile.ListResult[T]{}, fmt.Errorf("apply snapshot %s: %w", m.Kind(), err)
	}

	for _, e := range result.Updated {
		if err := m.persistRemote(ctx, e, remote[e.AlternateID()], true); err != nil {
			return result, fmt.Errorf("apply snapshot %s: %w", m.Kind(), err)
		}
	}
	for _, e := range result.Added {
		if err := m.persistRemote(ctx, e, remote[e.AlternateID()], false); err != nil {
			return result, fmt.Errorf("apply snapshot %s: %w", m.Kind(), err)
		}
	}
	for _, e := range result.Removed {
		if _, err := m.store.Delete(ctx, m.Kind(), e.AlternateID()); err != nil {
			return result, fmt.Errorf("apply snapshot %s: %w", m.Kind(), err)
		}
	}

	m.logger.Info("snapshot applied",
		"kind", m.Kind(),
		"added", len(result.Added),
		"updated", len(result.Updated),
		"removed", len(result.Removed))
	return result, nil
}

// persistRemote adopts the server's framework fields and stores e.
func (m *Manager[T]) persistRemote(ctx context.Context, e T, remote *entity.Base, exists bool) error {
	b := e.Meta()
	if remote != nil {
		if remote.ID != 0 {
			b.ID = remote.ID
		}
		if !remote.CreatedAt.IsZero() {
			b.CreatedAt = remote.CreatedAt
		}
		b.UpdatedAt = remote.UpdatedAt
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = m.now().UTC()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = b.UpdatedAt
	}
	b.MarkSaved()

	rec, err := m.record(e)
	if err != nil {
		return err
	}
	if exists {
		_, err = m.store.Update(ctx, rec)
	} else {
		_, err = m.store.Insert(ctx, rec)
	}
	return err
}

func (m *Manager[T]) record(e T) (store.Record, error) {
	body, err := entity.MarshalCanonical(e)
	if err != nil {
		return store.Record{}, fmt.Errorf("encode: %w", err)
	}
	b := e.Meta()
	return store.Record{
		Kind:        m.Kind(),
		ID:          b.ID,
		AlternateID: b.AltID,
		Body:        body,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}, nil
}

func (m *Manager[T]) decode(rec store.Record) (T, error) {
	var zero T
	if m.merger.New == nil {
		return zero, fmt.Errorf("decode %s: %w", m.Kind(), reconcile.ErrNoConstructor)
	}
	e := m.merger.New()
	if err := json.Unmarshal(rec.Body, e); err != nil {
		return zero, fmt.Errorf("decode %s %s: %w", m.Kind(), rec.AlternateID, err)
	}
	b := e.Meta()
	b.ID = rec.ID
	b.AltID = rec.AlternateID
	b.CreatedAt = rec.CreatedAt
	b.UpdatedAt = rec.UpdatedAt
	b.MarkSaved()
	return e, nil
}
