package sendqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/bizsync/internal/store"
)

// DrainReport summarizes one drain cycle.
type DrainReport struct {
	// Skipped is true when the oracle said the queue cannot send.
	Skipped bool `json:"skipped"`

	// Pending is the entry count at the start of the drain.
	Pending int `json:"pending"`

	Attempted    int `json:"attempted"`
	Delivered    int `json:"delivered"`
	Dropped      int `json:"dropped"`
	Retried      int `json:"retried"`
	DeadLettered int `json:"dead_lettered"`
	StoreErrors  int `json:"store_errors"`

	// Disconnected is true when the drain stopped because connectivity
	// dropped mid-cycle.
	Disconnected bool `json:"disconnected"`
}

// DrainOnce runs a single drain cycle.
//
// It returns ErrDrainInProgress if another drain is running, and an error
// only when the initial count cannot be read. Failures of individual entries
// are logged and reflected in the report.
func (s *Service) DrainOnce(ctx context.Context) (DrainReport, error) {
	if !s.sending.CompareAndSwap(false, true) {
		return DrainReport{}, ErrDrainInProgress
	}
	defer s.sending.Store(false)

	report, err := s.drain(ctx)

	s.mu.Lock()
	s.lastDrain = s.now().UTC()
	s.lastReport = report
	s.mu.Unlock()

	if err != nil {
		return report, err
	}
	if report.Attempted > 0 {
		s.logger.Info("drain complete",
			"pending", report.Pending,
			"delivered", report.Delivered,
			"retried", report.Retried,
			"dead_lettered", report.DeadLettered,
			"dropped", report.Dropped)
	}
	return report, nil
}

func (s *Service) drain(ctx context.Context) (DrainReport, error) {
	var report DrainReport

	if !s.oracle.CanSend() {
		s.oracle.CheckConnection(ctx)
	}
	if !s.oracle.CanSend() {
		report.Skipped = true
		s.logger.Debug("drain skipped, cannot send")
		return report, nil
	}

	n, err := s.store.CountQueueEntries(ctx)
	if err != nil {
		return report, fmt.Errorf("drain: %w", err)
	}
	report.Pending = n

	var cursor int64
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		next, stop := s.step(ctx, cursor, &report)
		if stop {
			break
		}
		cursor = next
	}
	return report, nil
}

// step attempts the first entry after cursor. It returns the cursor for the
// next iteration and whether the drain must stop.
func (s *Service) step(ctx context.Context, cursor int64, report *DrainReport) (int64, bool) {
	e, err := s.store.NextQueueEntry(ctx, cursor)
	if errors.Is(err, store.ErrNotFound) {
		return cursor, true
	}
	if err != nil {
		report.StoreErrors++
		s.logger.Error("read queue entry", "error", err)
		return cursor, false
	}

	report.Attempted++
	derr := s.deliver(ctx, e)

	switch {
	case derr == nil:
		e.Succeeded = true
		report.Delivered++
		if _, err := s.store.DeleteQueueEntry(ctx, e.ID); err != nil {
			report.StoreErrors++
			s.logger.Error("delete delivered entry", "entry_id", e.ID, "error", err)
			return e.ID, false
		}
		s.logger.Debug("entry delivered", "entry_id", e.ID, "attempts", e.Attempts, "path", e.Path)
		return cursor, false

	case IsInvalidPayload(derr):
		report.Dropped++
		s.logger.Warn("dropping undeliverable entry",
			"entry_id", e.ID,
			"method", e.Method,
			"content_type", e.ContentType,
			"path", e.Path,
			"error", derr)
		if _, err := s.store.DeleteQueueEntry(ctx, e.ID); err != nil {
			report.StoreErrors++
			s.logger.Error("delete invalid entry", "entry_id", e.ID, "error", err)
			return e.ID, false
		}
		return cursor, false
	}

	// A cancelled drain is not the entry's fault.
	if ctx.Err() != nil {
		return cursor, true
	}

	s.oracle.CheckConnection(ctx)
	if !s.oracle.CanSend() {
		report.Disconnected = true
		s.logger.Info("connection lost during drain, entry left pending",
			"entry_id", e.ID,
			"attempts", e.Attempts,
			"error", derr)
		return cursor, true
	}

	e.Attempts++
	if e.Attempts >= s.maxAttempts {
		if _, err := s.store.DeadLetter(ctx, e, derr.Error(), s.now().UTC()); err != nil {
			report.StoreErrors++
			s.logger.Error("dead-letter entry", "entry_id", e.ID, "error", err)
			return e.ID, false
		}
		report.DeadLettered++
		s.logger.Warn("entry dead-lettered",
			"entry_id", e.ID,
			"attempts", e.Attempts,
			"path", e.Path,
			"error", derr)
		return cursor, false
	}

	if _, err := s.store.UpdateQueueEntry(ctx, e); err != nil {
		report.StoreErrors++
		s.logger.Error("persist attempt count", "entry_id", e.ID, "error", err)
		return e.ID, false
	}
	report.Retried++
	s.logger.Info("delivery failed, will retry",
		"entry_id", e.ID,
		"attempts", e.Attempts,
		"path", e.Path,
		"error", derr)
	return e.ID, false
}

// deliver makes one attempt with the per-attempt timeout. Panics in the
// transport are returned as errors.
func (s *Service) deliver(ctx context.Context, e store.QueueEntry) (err error) {
	if verr := validateEntry(e); verr != nil {
		return &DeliveryError{Code: CodeInvalidPayload, EntryID: e.ID, Err: verr}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = &DeliveryError{Code: CodePanic, EntryID: e.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	terr := s.transport.Deliver(attemptCtx, Request{
		Method:      e.Method,
		ContentType: e.ContentType,
		Path:        e.Path,
		Payload:     e.Payload,
	})
	if terr == nil {
		return nil
	}

	code := CodeRemote
	switch {
	case errors.Is(terr, ErrInvalidPayload):
		code = CodeInvalidPayload
	case errors.Is(terr, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		code = CodeTimeout
	}
	return &DeliveryError{Code: code, EntryID: e.ID, Err: terr}
}
