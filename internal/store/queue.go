package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const queueTable = "queue"

// QueueEntry is one not-yet-delivered outbound operation.
// ID is assigned by the store and is the FIFO ordering key.
type QueueEntry struct {
	ID          int64     `json:"id"`
	Payload     []byte    `json:"payload"`
	Method      string    `json:"method"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"path"`
	Attempts    int       `json:"attempts"`
	Digest      string    `json:"digest"`
	CreatedAt   time.Time `json:"created_at"`

	// Succeeded is set by the drain loop for the current attempt only.
	Succeeded bool `json:"-"`
}

// DeadLetter is a queue entry that exhausted its retry budget.
type DeadLetter struct {
	ID          int64     `json:"id"`
	QueueID     int64     `json:"queue_id"`
	Payload     []byte    `json:"payload"`
	Method      string    `json:"method"`
	ContentType string    `json:"content_type"`
	Path        string    `json:"path"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error"`
	CreatedAt   time.Time `json:"created_at"`
	FailedAt    time.Time `json:"failed_at"`
}

const queueColumns = `id, payload, method, content_type, path, attempts, digest, created_at`

const deadLetterColumns = `id, queue_id, payload, method, content_type, path, attempts, last_error, created_at, failed_at`

// InsertQueueEntry appends e to the tail of the queue and returns it with
// its assigned ID. Attempts is stored as given (normally 0).
func (s *Store) InsertQueueEntry(ctx context.Context, e QueueEntry) (QueueEntry, error) {
	if e.Payload == nil {
		e.Payload = []byte{}
	}

	unlock := s.locks.lock(queueTable)
	defer unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO send_queue (payload, method, content_type, path, attempts, digest, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		e.Payload,
		e.Method,
		e.ContentType,
		e.Path,
		e.Attempts,
		e.Digest,
		formatTime(e.CreatedAt),
	)
	if err != nil {
		return QueueEntry{}, fmt.Errorf("write queue entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return QueueEntry{}, fmt.Errorf("write queue entry: last insert id: %w", err)
	}
	e.ID = id
	return e, nil
}

// FirstQueueEntry returns the entry with the lowest ID.
// Returns ErrNotFound when the queue is empty.
func (s *Store) FirstQueueEntry(ctx context.Context) (QueueEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+queueColumns+` FROM send_queue ORDER BY id ASC LIMIT 1
	`)
	e, err := scanQueueEntry(row)
	if err != nil {
		return QueueEntry{}, fmt.Errorf("first queue entry: %w", err)
	}
	return e, nil
}

// NextQueueEntry returns the lowest-ID entry with an ID greater than
// afterID. Returns ErrNotFound when there is none.
func (s *Store) NextQueueEntry(ctx context.Context, afterID int64) (QueueEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+queueColumns+` FROM send_queue WHERE id > ? ORDER BY id ASC LIMIT 1
	`, afterID)
	e, err := scanQueueEntry(row)
	if err != nil {
		return QueueEntry{}, fmt.Errorf("next queue entry after %d: %w", afterID, err)
	}
	return e, nil
}

// FindQueueEntry returns the queue entry with the given ID.
func (s *Store) FindQueueEntry(ctx context.Context, id int64) (QueueEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+queueColumns+` FROM send_queue WHERE id = ?
	`, id)
	e, err := scanQueueEntry(row)
	if err != nil {
		return QueueEntry{}, fmt.Errorf("find queue entry %d: %w", id, err)
	}
	return e, nil
}

// QueueEntries returns every pending entry in FIFO order.
// Returns an empty slice (not nil) if the queue is empty.
func (s *Store) QueueEntries(ctx context.Context) ([]QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+queueColumns+` FROM send_queue ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	defer rows.Close()

	entries := []QueueEntry{}
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue: %w", err)
	}
	return entries, nil
}

// UpdateQueueEntry persists e's attempt counter.
// The payload and routing fields of a queued entry are immutable.
func (s *Store) UpdateQueueEntry(ctx context.Context, e QueueEntry) (int64, error) {
	unlock := s.locks.lock(queueTable)
	defer unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE send_queue SET attempts = ? WHERE id = ?
	`, e.Attempts, e.ID)
	if err != nil {
		return 0, fmt.Errorf("update queue entry %d: %w", e.ID, err)
	}
	return res.RowsAffected()
}

// DeleteQueueEntry removes the entry with the given ID.
func (s *Store) DeleteQueueEntry(ctx context.Context, id int64) (int64, error) {
	unlock := s.locks.lock(queueTable)
	defer unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM send_queue WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete queue entry %d: %w", id, err)
	}
	return res.RowsAffected()
}

// CountQueueEntries returns the number of pending entries.
func (s *Store) CountQueueEntries(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM send_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queue: %w", err)
	}
	return n, nil
}

// DeadLetter moves e out of the live queue into send_errors in one
// transaction. The returned DeadLetter carries its assigned ID.
func (s *Store) DeadLetter(ctx context.Context, e QueueEntry, lastError string, failedAt time.Time) (DeadLetter, error) {
	unlock := s.locks.lock(queueTable)
	defer unlock()

	dl := DeadLetter{
		QueueID:     e.ID,
		Payload:     e.Payload,
		Method:      e.Method,
		ContentType: e.ContentType,
		Path:        e.Path,
		Attempts:    e.Attempts,
		LastError:   lastError,
		CreatedAt:   e.CreatedAt,
		FailedAt:    failedAt,
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO send_errors (queue_id, payload, method, content_type, path, attempts, last_error, created_at, failed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			dl.QueueID,
			dl.Payload,
			dl.Method,
			dl.ContentType,
			dl.Path,
			dl.Attempts,
			dl.LastError,
			formatTime(dl.CreatedAt),
			formatTime(dl.FailedAt),
		)
		if err != nil {
			return fmt.Errorf("insert dead letter: %w", err)
		}
		if dl.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert dead letter: last insert id: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM send_queue WHERE id = ?`, e.ID); err != nil {
			return fmt.Errorf("delete queue entry %d: %w", e.ID, err)
		}
		return nil
	})
	if err != nil {
		return DeadLetter{}, fmt.Errorf("dead-letter entry %d: %w", e.ID, err)
	}
	return dl, nil
}

// DeadLetters returns every dead letter ordered by ID.
// Returns an empty slice (not nil) if none exist.
func (s *Store) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deadLetterColumns+` FROM send_errors ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}
	defer rows.Close()

	letters := []DeadLetter{}
	for rows.Next() {
		dl, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		letters = append(letters, dl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead letters: %w", err)
	}
	return letters, nil
}

// FindDeadLetter returns the dead letter with the given ID.
func (s *Store) FindDeadLetter(ctx context.Context, id int64) (DeadLetter, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deadLetterColumns+` FROM send_errors WHERE id = ?
	`, id)
	dl, err := scanDeadLetter(row)
	if err != nil {
		return DeadLetter{}, fmt.Errorf("find dead letter %d: %w", id, err)
	}
	return dl, nil
}

// CountDeadLetters returns the number of dead letters.
func (s *Store) CountDeadLetters(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM send_errors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return n, nil
}

// RequeueDeadLetter moves a dead letter back to the tail of the live queue
// with Attempts reset to 0, in one transaction.
func (s *Store) RequeueDeadLetter(ctx context.Context, id int64, digest string, now time.Time) (QueueEntry, error) {
	unlock := s.locks.lock(queueTable)
	defer unlock()

	var e QueueEntry
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		dl, err := scanDeadLetter(tx.QueryRowContext(ctx, `
			SELECT `+deadLetterColumns+` FROM send_errors WHERE id = ?
		`, id))
		if err != nil {
			return err
		}
		e = QueueEntry{
			Payload:     dl.Payload,
			Method:      dl.Method,
			ContentType: dl.ContentType,
			Path:        dl.Path,
			Digest:      digest,
			CreatedAt:   now,
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO send_queue (payload, method, content_type, path, attempts, digest, created_at)
			VALUES (?, ?, ?, ?, 0, ?, ?)
		`, e.Payload, e.Method, e.ContentType, e.Path, e.Digest, formatTime(e.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert queue entry: %w", err)
		}
		if e.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("insert queue entry: last insert id: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM send_errors WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete dead letter: %w", err)
		}
		return nil
	})
	if err != nil {
		return QueueEntry{}, fmt.Errorf("requeue dead letter %d: %w", id, err)
	}
	return e, nil
}

// inTx runs fn in a transaction, committing on nil and rolling back otherwise.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func scanQueueEntry(row rowScanner) (QueueEntry, error) {
	var (
		e         QueueEntry
		createdAt string
	)
	err := row.Scan(&e.ID, &e.Payload, &e.Method, &e.ContentType, &e.Path, &e.Attempts, &e.Digest, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return QueueEntry{}, ErrNotFound
	}
	if err != nil {
		return QueueEntry{}, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return QueueEntry{}, err
	}
	return e, nil
}

func scanDeadLetter(row rowScanner) (DeadLetter, error) {
	var (
		dl        DeadLetter
		createdAt string
		failedAt  string
	)
	err := row.Scan(&dl.ID, &dl.QueueID, &dl.Payload, &dl.Method, &dl.ContentType, &dl.Path,
		&dl.Attempts, &dl.LastError, &createdAt, &failedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DeadLetter{}, ErrNotFound
	}
	if err != nil {
		return DeadLetter{}, err
	}
	if dl.CreatedAt, err = parseTime(createdAt); err != nil {
		return DeadLetter{}, err
	}
	if dl.FailedAt, err = parseTime(failedAt); err != nil {
		return DeadLetter{}, err
	}
	return dl, nil
}
