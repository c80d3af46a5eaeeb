package persist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bizsync/internal/entity"
	"github.com/roach88/bizsync/internal/reconcile"
	"github.com/roach88/bizsync/internal/sendqueue"
	"github.com/roach88/bizsync/internal/store"
	"github.com/roach88/bizsync/internal/testutil"
)

type product struct {
	entity.Base
	Name  string `json:"name"`
	Price int    `json:"price"`
}

func newProduct(alt, name string, price int) *product {
	return &product{
		Base:  entity.Base{AltID: alt, New: true, Dirty: true},
		Name:  name,
		Price: price,
	}
}

func productMerger() *reconcile.Merger[*product] {
	return &reconcile.Merger[*product]{
		Kind: "product",
		New:  func() *product { return &product{} },
		CopyFields: func(dst, src *product) {
			dst.Name = src.Name
			dst.Price = src.Price
		},
	}
}

type fixture struct {
	store *store.Store
	queue *sendqueue.Service
	mgr   *Manager[*product]
}

func setup(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "persist.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewDeterministicClock()
	q := sendqueue.New(st, testutil.NewScriptedTransport(), testutil.NewStaticOracle(false),
		sendqueue.WithLogger(logger), sendqueue.WithClock(clock.Now))

	return &fixture{
		store: st,
		queue: q,
		mgr: NewManager(productMerger(), "products", st, q,
			WithLogger(logger), WithClock(clock.Now)),
	}
}

func (f *fixture) entries(t *testing.T) []store.QueueEntry {
	t.Helper()
	entries, err := f.store.QueueEntries(context.Background())
	require.NoError(t, err)
	return entries
}

func TestSave_NewEntityGetsLocalIDAndQueuesPost(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p := newProduct("p-1", "Widget", 300)
	entry, err := f.mgr.Save(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, int64(1), p.ID)
	assert.False(t, p.IsNew())
	assert.False(t, p.IsDirty())
	assert.False(t, p.CreatedAt.IsZero())

	assert.Equal(t, "POST", entry.Method)
	assert.Equal(t, "/products", entry.Path)
	assert.Equal(t, "application/json", entry.ContentType)
	var body map[string]any
	require.NoError(t, json.Unmarshal(entry.Payload, &body))
	assert.Equal(t, "p-1", body["alternate_id"])
	assert.Equal(t, float64(1), body["id"])
	assert.Equal(t, "Widget", body["name"])
	assert.Equal(t, float64(300), body["price"])

	q := newProduct("p-2", "Gadget", 500)
	_, err = f.mgr.Save(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int64(2), q.ID)
}

func TestSave_ExistingEntityQueuesPut(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p := newProduct("p-1", "Widget", 300)
	_, err := f.mgr.Save(ctx, p)
	require.NoError(t, err)

	p.Price = 350
	p.MarkDirty(p.UpdatedAt)
	entry, err := f.mgr.Save(ctx, p)
	require.NoError(t, err)

	assert.Equal(t, "PUT", entry.Method)
	assert.Equal(t, "/products/p-1", entry.Path)
	assert.Equal(t, int64(1), p.ID)

	n, err := f.store.Count(ctx, "product")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	entries := f.entries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, "POST", entries[0].Method)
	assert.Equal(t, "PUT", entries[1].Method)

	loaded, err := f.mgr.Load(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 350, loaded.Price)
}

func TestSave_MissingAlternateID(t *testing.T) {
	f := setup(t)

	_, err := f.mgr.Save(context.Background(), &product{Name: "anonymous"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, reconcile.ErrMissingAlternateID))
	assert.Empty(t, f.entries(t))
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, sendqueue.Request) (store.QueueEntry, error) {
	return store.QueueEntry{}, errors.New("disk full")
}

func TestSave_EnqueueErrorPropagates(t *testing.T) {
	f := setup(t)
	mgr := NewManager(productMerger(), "products", f.store, failingQueue{})

	p := newProduct("p-1", "Widget", 300)
	_, err := mgr.Save(context.Background(), p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, p.IsDirty(), "failed save must leave the entity dirty")
}

func TestSave_RetryAfterEnqueueErrorQueuesPost(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	failing := NewManager(productMerger(), "products", f.store, failingQueue{})

	p := newProduct("p-1", "Widget", 300)
	_, err := failing.Save(ctx, p)
	require.Error(t, err)
	require.True(t, p.IsNew())

	entry, err := f.mgr.Save(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "POST", entry.Method)
	assert.Equal(t, "/products", entry.Path)
	assert.Equal(t, int64(1), p.ID)
	assert.False(t, p.IsNew())

	n, err := f.store.Count(ctx, "product")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p.Price = 350
	entry, err = f.mgr.Save(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "PUT", entry.Method)
}

func TestSave_NewEntityForConfirmedRecordQueuesPut(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.mgr.ApplyRemote(ctx, &product{Base: entity.Base{AltID: "p-1", ID: 10001}, Name: "Widget"})
	require.NoError(t, err)

	p := newProduct("p-1", "Widget v2", 300)
	entry, err := f.mgr.Save(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "PUT", entry.Method)
	assert.Equal(t, int64(10001), p.ID)
}

func TestLoad_RoundTrip(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.mgr.Save(ctx, newProduct("p-1", "Widget", 300))
	require.NoError(t, err)

	got, err := f.mgr.Load(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Widget", got.Name)
	assert.Equal(t, 300, got.Price)
	assert.Equal(t, int64(1), got.ID)
	assert.False(t, got.IsNew())
	assert.False(t, got.IsDirty())

	_, err = f.mgr.Load(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestAll_OrderedByID(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, alt := range []string{"a", "b", "c"} {
		_, err := f.mgr.Save(ctx, newProduct(alt, "n-"+alt, 1))
		require.NoError(t, err)
	}

	all, err := f.mgr.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, p := range all {
		assert.Equal(t, int64(i+1), p.ID)
	}
}

func TestApplyRemote_ReplacesLocalID(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.mgr.Save(ctx, newProduct("p-1", "Widget", 300))
	require.NoError(t, err)

	incoming := &product{Base: entity.Base{AltID: "p-1", ID: 10001}, Name: "Widget Pro", Price: 300}
	merged, err := f.mgr.ApplyRemote(ctx, incoming)
	require.NoError(t, err)
	assert.Equal(t, int64(10001), merged.ID)
	assert.Equal(t, "Widget Pro", merged.Name)
	assert.False(t, merged.IsDirty())

	loaded, err := f.mgr.Load(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10001), loaded.ID)
	assert.Equal(t, "Widget Pro", loaded.Name)

	assert.Len(t, f.entries(t), 1, "applying a remote version queues nothing")

	// The server id leaves the local range, so allocation restarts at 1.
	next := newProduct("p-2", "Gadget", 10)
	_, err = f.mgr.Save(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, int64(1), next.ID)
}

func TestApplyRemote_UnknownEntityIsInserted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.mgr.ApplyRemote(ctx, &product{Base: entity.Base{AltID: "p-9", ID: 10009}, Name: "Remote"})
	require.NoError(t, err)

	loaded, err := f.mgr.Load(ctx, "p-9")
	require.NoError(t, err)
	assert.Equal(t, int64(10009), loaded.ID)
	assert.Equal(t, "Remote", loaded.Name)
}

func TestSave_AfterRemoteKeepsServerID(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	p := newProduct("p-1", "Widget", 300)
	_, err := f.mgr.Save(ctx, p)
	require.NoError(t, err)
	_, err = f.mgr.ApplyRemote(ctx, &product{Base: entity.Base{AltID: "p-1", ID: 10001}, Name: "Widget"})
	require.NoError(t, err)

	// p still carries the stale local id.
	p.Price = 400
	entry, err := f.mgr.Save(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(10001), p.ID)
	assert.Equal(t, "PUT", entry.Method)
}

func TestApplySnapshot_FullReplaceRemovesMissing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, alt := range []string{"a", "b"} {
		_, err := f.mgr.Save(ctx, newProduct(alt, "old-"+alt, 1))
		require.NoError(t, err)
	}

	incoming := []*product{
		{Base: entity.Base{AltID: "b", ID: 10002}, Name: "new-b"},
		{Base: entity.Base{AltID: "c", ID: 10003}, Name: "new-c"},
	}
	result, err := f.mgr.ApplySnapshot(ctx, incoming)
	require.NoError(t, err)
	assert.Len(t, result.Removed, 1)
	assert.Len(t, result.Updated, 1)
	assert.Len(t, result.Added, 1)

	all, err := f.mgr.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "new-b", all[0].Name)
	assert.Equal(t, int64(10002), all[0].ID)
	assert.Equal(t, "new-c", all[1].Name)

	_, err = f.mgr.Load(ctx, "a")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestApplySnapshot_DeltaKeepsMissing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.mgr.Save(ctx, newProduct("a", "old-a", 1))
	require.NoError(t, err)

	result, err := f.mgr.ApplySnapshot(ctx,
		[]*product{{Base: entity.Base{AltID: "c", ID: 10003}, Name: "new-c"}},
		reconcile.Delta[*product]())
	require.NoError(t, err)
	assert.Empty(t, result.Removed)
	assert.Len(t, result.Added, 1)

	n, err := f.store.Count(ctx, "product")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
