package diag

import (
	"time"

	"github.com/roach88/bizsync/internal/store"
)

// entryView renders a queue entry with its payload as text.
type entryView struct {
	ID          int64     `json:"id"`
	Method      string    `json:"method"`
	Path        string    `json:"path"`
	ContentType string    `json:"content_type"`
	Payload     string    `json:"payload"`
	Attempts    int       `json:"attempts"`
	CreatedAt   time.Time `json:"created_at"`
}

func newEntryView(e store.QueueEntry) entryView {
	return entryView{
		ID:          e.ID,
		Method:      e.Method,
		Path:        e.Path,
		ContentType: e.ContentType,
		Payload:     string(e.Payload),
		Attempts:    e.Attempts,
		CreatedAt:   e.CreatedAt,
	}
}

type deadLetterView struct {
	ID        int64     `json:"id"`
	QueueID   int64     `json:"queue_id"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Payload   string    `json:"payload"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	FailedAt  time.Time `json:"failed_at"`
}

func newDeadLetterView(dl store.DeadLetter) deadLetterView {
	return deadLetterView{
		ID:        dl.ID,
		QueueID:   dl.QueueID,
		Method:    dl.Method,
		Path:      dl.Path,
		Payload:   string(dl.Payload),
		Attempts:  dl.Attempts,
		LastError: dl.LastError,
		FailedAt:  dl.FailedAt,
	}
}
