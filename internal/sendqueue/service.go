package sendqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/bizsync/internal/connectivity"
	"github.com/roach88/bizsync/internal/store"
	"github.com/roach88/bizsync/internal/transport"
)

const (
	// DefaultMaxAttempts is the failure threshold for dead-lettering.
	DefaultMaxAttempts = 5

	// DefaultTimeout bounds a single delivery attempt.
	DefaultTimeout = 10 * time.Second

	// DefaultInterval is the drain interval used when Start gets <= 0.
	DefaultInterval = 10 * time.Second
)

// Request is one operation to enqueue.
type Request = transport.Request

// QueueStore is the durable storage the service drains.
// store.Store implements it.
type QueueStore interface {
	InsertQueueEntry(ctx context.Context, e store.QueueEntry) (store.QueueEntry, error)
	FirstQueueEntry(ctx context.Context) (store.QueueEntry, error)
	NextQueueEntry(ctx context.Context, afterID int64) (store.QueueEntry, error)
	UpdateQueueEntry(ctx context.Context, e store.QueueEntry) (int64, error)
	DeleteQueueEntry(ctx context.Context, id int64) (int64, error)
	CountQueueEntries(ctx context.Context) (int, error)
	DeadLetter(ctx context.Context, e store.QueueEntry, lastError string, failedAt time.Time) (store.DeadLetter, error)
	DeadLetters(ctx context.Context) ([]store.DeadLetter, error)
	FindDeadLetter(ctx context.Context, id int64) (store.DeadLetter, error)
	CountDeadLetters(ctx context.Context) (int, error)
	RequeueDeadLetter(ctx context.Context, id int64, digest string, now time.Time) (store.QueueEntry, error)
}

// Service is the send queue.
type Service struct {
	store       QueueStore
	transport   transport.Transport
	oracle      connectivity.Oracle
	logger      *slog.Logger
	now         func() time.Time
	maxAttempts int
	timeout     time.Duration

	sending atomic.Bool

	mu         sync.Mutex
	started    bool
	stopCh     chan struct{}
	done       chan struct{}
	lastDrain  time.Time
	lastReport DrainReport
}

// Option configures a Service.
type Option func(*Service)

// WithMaxAttempts sets the dead-letter threshold. Values < 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n >= 1 {
			s.maxAttempts = n
		}
	}
}

// WithTimeout sets the per-attempt delivery timeout. Values <= 0 are ignored.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source for CreatedAt and FailedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a Service. The store, transport and oracle are required.
func New(st QueueStore, tr transport.Transport, oracle connectivity.Oracle, opts ...Option) *Service {
	s := &Service{
		store:       st,
		transport:   tr,
		oracle:      oracle,
		logger:      slog.Default(),
		now:         time.Now,
		maxAttempts: DefaultMaxAttempts,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue durably appends req to the queue with Attempts = 0.
// A store error is returned; the originating save is not complete until
// Enqueue succeeds.
func (s *Service) Enqueue(ctx context.Context, req Request) (store.QueueEntry, error) {
	req, err := normalize(req)
	if err != nil {
		return store.QueueEntry{}, fmt.Errorf("enqueue: %w", err)
	}

	e, err := s.store.InsertQueueEntry(ctx, store.QueueEntry{
		Payload:     req.Payload,
		Method:      req.Method,
		ContentType: req.ContentType,
		Path:        req.Path,
		Digest:      payloadDigest(req.Payload),
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return store.QueueEntry{}, fmt.Errorf("enqueue %s %s: %w", req.Method, req.Path, err)
	}

	s.logger.Debug("entry enqueued",
		"entry_id", e.ID,
		"method", e.Method,
		"path", e.Path)
	return e, nil
}

// Start begins draining every interval until Stop is called or ctx ends.
// Calling Start while started is a no-op.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	s.started = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, interval, s.stopCh, s.done)

	s.logger.Info("send queue started", "interval", interval.String())
}

// Stop cancels the drain timer and waits for the loop to exit. A drain in
// progress is allowed to finish. Calling Stop while stopped is a no-op.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("send queue stopped")
}

func (s *Service) loop(ctx context.Context, interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := s.DrainOnce(ctx); err != nil {
				if errors.Is(err, ErrDrainInProgress) {
					s.logger.Debug("drain skipped, already in progress")
					continue
				}
				s.logger.Error("drain failed", "error", err)
			}
		}
	}
}

// IsStarted reports whether the drain loop is running.
func (s *Service) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// IsSending reports whether a drain is in progress.
func (s *Service) IsSending() bool {
	return s.sending.Load()
}

// GetNext returns the entry the next drain will attempt first.
// Returns store.ErrNotFound when the queue is empty.
func (s *Service) GetNext(ctx context.Context) (store.QueueEntry, error) {
	return s.store.FirstQueueEntry(ctx)
}

// Stats is a snapshot of the queue for diagnostics.
type Stats struct {
	Pending     int         `json:"pending"`
	DeadLetters int         `json:"dead_letters"`
	Started     bool        `json:"started"`
	Sending     bool        `json:"sending"`
	CanSend     bool        `json:"can_send"`
	LastDrain   time.Time   `json:"last_drain"`
	LastReport  DrainReport `json:"last_report"`
}

// Stats returns a snapshot of the queue.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	pending, err := s.store.CountQueueEntries(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	dead, err := s.store.CountDeadLetters(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Pending:     pending,
		DeadLetters: dead,
		Started:     s.started,
		Sending:     s.sending.Load(),
		CanSend:     s.oracle.CanSend(),
		LastDrain:   s.lastDrain,
		LastReport:  s.lastReport,
	}, nil
}

// DeadLetters returns every dead letter ordered by ID.
func (s *Service) DeadLetters(ctx context.Context) ([]store.DeadLetter, error) {
	return s.store.DeadLetters(ctx)
}

// Retry moves a dead letter back to the tail of the live queue with
// Attempts reset to 0.
func (s *Service) Retry(ctx context.Context, deadLetterID int64) (store.QueueEntry, error) {
	dl, err := s.store.FindDeadLetter(ctx, deadLetterID)
	if err != nil {
		return store.QueueEntry{}, fmt.Errorf("retry: %w", err)
	}
	e, err := s.store.RequeueDeadLetter(ctx, dl.ID, payloadDigest(dl.Payload), s.now().UTC())
	if err != nil {
		return store.QueueEntry{}, fmt.Errorf("retry: %w", err)
	}

	s.logger.Info("dead letter requeued",
		"dead_letter_id", dl.ID,
		"entry_id", e.ID,
		"path", e.Path)
	return e, nil
}
