package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Record is one stored entity.
// Body holds the entity's JSON encoding; the store treats it as opaque.
type Record struct {
	Kind        string
	ID          int64
	AlternateID string
	Body        []byte
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const recordColumns = `kind, id, alternate_id, body, created_at, updated_at`

func recordTable(kind string) string {
	return "records:" + kind
}

// Insert stores a new record and returns the number of rows inserted.
// A duplicate (kind, id) or (kind, alternate_id) is an error.
func (s *Store) Insert(ctx context.Context, rec Record) (int64, error) {
	if rec.Kind == "" || rec.AlternateID == "" {
		return 0, fmt.Errorf("insert record: kind and alternate id are required")
	}
	unlock := s.locks.lock(recordTable(rec.Kind))
	defer unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		rec.Kind,
		rec.ID,
		rec.AlternateID,
		string(rec.Body),
		formatTime(rec.CreatedAt),
		formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert record %s/%s: %w", rec.Kind, rec.AlternateID, err)
	}
	return res.RowsAffected()
}

// Update rewrites the record with the same (kind, alternate_id).
// The id may change, which is how a local id is replaced by the
// server-assigned one. Returns the number of rows updated (0 or 1).
func (s *Store) Update(ctx context.Context, rec Record) (int64, error) {
	unlock := s.locks.lock(recordTable(rec.Kind))
	defer unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE records
		SET id = ?, body = ?, updated_at = ?
		WHERE kind = ? AND alternate_id = ?
	`,
		rec.ID,
		string(rec.Body),
		formatTime(rec.UpdatedAt),
		rec.Kind,
		rec.AlternateID,
	)
	if err != nil {
		return 0, fmt.Errorf("update record %s/%s: %w", rec.Kind, rec.AlternateID, err)
	}
	return res.RowsAffected()
}

// Delete removes the record with the given alternate id.
// Returns the number of rows deleted.
func (s *Store) Delete(ctx context.Context, kind, alternateID string) (int64, error) {
	unlock := s.locks.lock(recordTable(kind))
	defer unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM records WHERE kind = ? AND alternate_id = ?
	`, kind, alternateID)
	if err != nil {
		return 0, fmt.Errorf("delete record %s/%s: %w", kind, alternateID, err)
	}
	return res.RowsAffected()
}

// DeleteAll removes every record of a kind.
func (s *Store) DeleteAll(ctx context.Context, kind string) (int64, error) {
	unlock := s.locks.lock(recordTable(kind))
	defer unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE kind = ?`, kind)
	if err != nil {
		return 0, fmt.Errorf("delete all %s: %w", kind, err)
	}
	return res.RowsAffected()
}

// FindByID returns the record with the given integer id.
func (s *Store) FindByID(ctx context.Context, kind string, id int64) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM records WHERE kind = ? AND id = ?
	`, kind, id)
	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("find %s id=%d: %w", kind, id, err)
	}
	return rec, nil
}

// FindByAlternateID returns the record with the given alternate id.
func (s *Store) FindByAlternateID(ctx context.Context, kind, alternateID string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM records WHERE kind = ? AND alternate_id = ?
	`, kind, alternateID)
	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("find %s alternate_id=%s: %w", kind, alternateID, err)
	}
	return rec, nil
}

// GetFirst returns the record with the lowest id.
func (s *Store) GetFirst(ctx context.Context, kind string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM records WHERE kind = ? ORDER BY id ASC LIMIT 1
	`, kind)
	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("first %s: %w", kind, err)
	}
	return rec, nil
}

// GetLast returns the record with the highest id.
func (s *Store) GetLast(ctx context.Context, kind string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM records WHERE kind = ? ORDER BY id DESC LIMIT 1
	`, kind)
	rec, err := scanRecord(row)
	if err != nil {
		return Record{}, fmt.Errorf("last %s: %w", kind, err)
	}
	return rec, nil
}

// GetAll returns every record of a kind ordered by id.
// Returns an empty slice (not nil) if none exist.
func (s *Store) GetAll(ctx context.Context, kind string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM records WHERE kind = ? ORDER BY id ASC
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", kind, err)
	}
	return records, nil
}

// Count returns the number of records of a kind.
func (s *Store) Count(ctx context.Context, kind string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE kind = ?`, kind).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// MaxIDBelow returns the highest id of a kind strictly below ceiling.
// ok is false when no such record exists.
func (s *Store) MaxIDBelow(ctx context.Context, kind string, ceiling int64) (max int64, ok bool, err error) {
	var v sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT MAX(id) FROM records WHERE kind = ? AND id < ?
	`, kind, ceiling).Scan(&v)
	if err != nil {
		return 0, false, fmt.Errorf("max id %s: %w", kind, err)
	}
	if !v.Valid {
		return 0, false, nil
	}
	return v.Int64, true, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec       Record
		body      string
		createdAt string
		updatedAt string
	)
	err := row.Scan(&rec.Kind, &rec.ID, &rec.AlternateID, &body, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	rec.Body = []byte(body)
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return Record{}, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Record{}, err
	}
	return rec, nil
}
