package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertQueueEntry_AssignsIncreasingIDs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e1, err := s.InsertQueueEntry(ctx, createTestEntry(`{"n":1}`, "/a"))
	require.NoError(t, err)
	e2, err := s.InsertQueueEntry(ctx, createTestEntry(`{"n":2}`, "/b"))
	require.NoError(t, err)

	assert.Greater(t, e2.ID, e1.ID)
	assert.Equal(t, 0, e1.Attempts)

	got, err := s.FindQueueEntry(ctx, e1.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"n":1}`), got.Payload)
	assert.Equal(t, "POST", got.Method)
	assert.Equal(t, "application/json", got.ContentType)
	assert.Equal(t, "/a", got.Path)
	assert.Equal(t, testTime, got.CreatedAt)
	assert.False(t, got.Succeeded)
}

func TestInsertQueueEntry_EmptyPayload(t *testing.T) {
	s := createTestStore(t)

	e := createTestEntry("", "/empty")
	e.Payload = nil
	got, err := s.InsertQueueEntry(context.Background(), e)
	require.NoError(t, err)
	assert.Empty(t, got.Payload)
}

func TestFirstQueueEntry_FIFO(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.FirstQueueEntry(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	e1, err := s.InsertQueueEntry(ctx, createTestEntry(`1`, "/1"))
	require.NoError(t, err)
	e2, err := s.InsertQueueEntry(ctx, createTestEntry(`2`, "/2"))
	require.NoError(t, err)

	first, err := s.FirstQueueEntry(ctx)
	require.NoError(t, err)
	assert.Equal(t, e1.ID, first.ID)

	_, err = s.DeleteQueueEntry(ctx, e1.ID)
	require.NoError(t, err)

	first, err = s.FirstQueueEntry(ctx)
	require.NoError(t, err)
	assert.Equal(t, e2.ID, first.ID)
}

func TestQueueEntries_IDsNeverReused(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e1, err := s.InsertQueueEntry(ctx, createTestEntry(`1`, "/1"))
	require.NoError(t, err)
	_, err = s.DeleteQueueEntry(ctx, e1.ID)
	require.NoError(t, err)

	e2, err := s.InsertQueueEntry(ctx, createTestEntry(`2`, "/2"))
	require.NoError(t, err)
	assert.Greater(t, e2.ID, e1.ID)

	all, err := s.QueueEntries(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, e2.ID, all[0].ID)
}

func TestUpdateQueueEntry_Attempts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e, err := s.InsertQueueEntry(ctx, createTestEntry(`{}`, "/x"))
	require.NoError(t, err)

	e.Attempts = 3
	e.Path = "/ignored"
	n, err := s.UpdateQueueEntry(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.FindQueueEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, "/x", got.Path)
}

func TestCountQueueEntries(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := s.InsertQueueEntry(ctx, createTestEntry(`{}`, "/x"))
		require.NoError(t, err)
	}

	n, err := s.CountQueueEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestDeadLetter_MovesEntry(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e, err := s.InsertQueueEntry(ctx, createTestEntry(`{"x":1}`, "/foo"))
	require.NoError(t, err)
	e.Attempts = 5

	failedAt := testTime.Add(time.Minute)
	dl, err := s.DeadLetter(ctx, e, "status 500", failedAt)
	require.NoError(t, err)
	assert.NotZero(t, dl.ID)
	assert.Equal(t, e.ID, dl.QueueID)

	_, err = s.FindQueueEntry(ctx, e.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	letters, err := s.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	got := letters[0]
	assert.Equal(t, dl.ID, got.ID)
	assert.Equal(t, []byte(`{"x":1}`), got.Payload)
	assert.Equal(t, "/foo", got.Path)
	assert.Equal(t, 5, got.Attempts)
	assert.Equal(t, "status 500", got.LastError)
	assert.Equal(t, testTime, got.CreatedAt)
	assert.Equal(t, failedAt, got.FailedAt)

	n, err := s.CountDeadLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRequeueDeadLetter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e, err := s.InsertQueueEntry(ctx, createTestEntry(`{"x":1}`, "/foo"))
	require.NoError(t, err)
	e.Attempts = 5
	dl, err := s.DeadLetter(ctx, e, "boom", testTime)
	require.NoError(t, err)

	later, err := s.InsertQueueEntry(ctx, createTestEntry(`{"y":2}`, "/bar"))
	require.NoError(t, err)

	requeued, err := s.RequeueDeadLetter(ctx, dl.ID, "new-digest", testTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, requeued.Attempts)
	assert.Greater(t, requeued.ID, later.ID, "requeued entry goes to the tail")

	_, err = s.FindDeadLetter(ctx, dl.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := s.FindQueueEntry(ctx, requeued.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-digest", got.Digest)
	assert.Equal(t, []byte(`{"x":1}`), got.Payload)
}

func TestRequeueDeadLetter_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.RequeueDeadLetter(context.Background(), 99, "", testTime)
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.CountQueueEntries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestNextQueueEntry_Cursor(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e1, err := s.InsertQueueEntry(ctx, createTestEntry(`1`, "/1"))
	require.NoError(t, err)
	e2, err := s.InsertQueueEntry(ctx, createTestEntry(`2`, "/2"))
	require.NoError(t, err)

	got, err := s.NextQueueEntry(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, e1.ID, got.ID)

	got, err = s.NextQueueEntry(ctx, e1.ID)
	require.NoError(t, err)
	assert.Equal(t, e2.ID, got.ID)

	_, err = s.NextQueueEntry(ctx, e2.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
