package diag

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bizsync/internal/sendqueue"
	"github.com/roach88/bizsync/internal/store"
	"github.com/roach88/bizsync/internal/testutil"
)

type fixture struct {
	store     *store.Store
	transport *testutil.ScriptedTransport
	svc       *sendqueue.Service
	router    http.Handler
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "diag.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewDeterministicClock()
	tr := testutil.NewScriptedTransport()
	svc := sendqueue.New(st, tr, testutil.NewStaticOracle(true),
		sendqueue.WithLogger(logger), sendqueue.WithClock(clock.Now))

	return &fixture{
		store:     st,
		transport: tr,
		svc:       svc,
		router:    NewRouter(svc, append([]Option{WithLogger(logger)}, opts...)...),
	}
}

func (f *fixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) enqueue(t *testing.T, path string) store.QueueEntry {
	t.Helper()
	e, err := f.svc.Enqueue(context.Background(), sendqueue.Request{
		Payload: []byte(`{"n":1}`),
		Method:  http.MethodPost,
		Path:    path,
	})
	require.NoError(t, err)
	return e
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := setup(t)
	rec := f.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestHealth_PingFailure(t *testing.T) {
	f := setup(t, WithPing(func(context.Context) error { return errors.New("db gone") }))
	rec := f.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "db gone", decode[map[string]string](t, rec)["error"])
}

func TestQueueStats(t *testing.T) {
	f := setup(t)
	f.enqueue(t, "/a")
	f.enqueue(t, "/b")

	rec := f.do(t, http.MethodGet, "/queue")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[sendqueue.Stats](t, rec)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 0, stats.DeadLetters)
	assert.True(t, stats.CanSend)
}

func TestQueueNext(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodGet, "/queue/next")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	first := f.enqueue(t, "/a")
	f.enqueue(t, "/b")

	rec = f.do(t, http.MethodGet, "/queue/next")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[entryView](t, rec)
	assert.Equal(t, first.ID, view.ID)
	assert.Equal(t, "/a", view.Path)
	assert.Equal(t, `{"n":1}`, view.Payload)
}

func TestQueueDrain(t *testing.T) {
	f := setup(t)
	f.enqueue(t, "/a")
	f.enqueue(t, "/b")

	rec := f.do(t, http.MethodPost, "/queue/drain")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[sendqueue.DrainReport](t, rec)
	assert.Equal(t, 2, report.Delivered)
	assert.Equal(t, []string{"/a", "/b"}, f.transport.Paths())

	n, err := f.store.CountQueueEntries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDeadLettersAndRetry(t *testing.T) {
	f := setup(t)
	f.transport.SetFallback(testutil.ErrScripted)
	f.enqueue(t, "/doomed")

	for i := 0; i < sendqueue.DefaultMaxAttempts; i++ {
		_, err := f.svc.DrainOnce(context.Background())
		require.NoError(t, err)
	}

	rec := f.do(t, http.MethodGet, "/dead-letters")
	require.Equal(t, http.StatusOK, rec.Code)
	views := decode[[]deadLetterView](t, rec)
	require.Len(t, views, 1)
	assert.Equal(t, "/doomed", views[0].Path)
	assert.Equal(t, sendqueue.DefaultMaxAttempts, views[0].Attempts)
	assert.NotEmpty(t, views[0].LastError)

	rec = f.do(t, http.MethodPost, "/dead-letters/"+strconv.FormatInt(views[0].ID, 10)+"/retry")
	require.Equal(t, http.StatusOK, rec.Code)
	entry := decode[entryView](t, rec)
	assert.Equal(t, "/doomed", entry.Path)
	assert.Equal(t, 0, entry.Attempts)

	rec = f.do(t, http.MethodGet, "/dead-letters")
	assert.Empty(t, decode[[]deadLetterView](t, rec))
}

func TestRetry_BadRequests(t *testing.T) {
	f := setup(t)

	rec := f.do(t, http.MethodPost, "/dead-letters/abc/retry")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/dead-letters/99/retry")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type busyQueue struct{ Queue }

func (busyQueue) DrainOnce(context.Context) (sendqueue.DrainReport, error) {
	return sendqueue.DrainReport{}, sendqueue.ErrDrainInProgress
}

func TestQueueDrain_InProgress(t *testing.T) {
	f := setup(t)
	router := NewRouter(busyQueue{f.svc}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/queue/drain", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
