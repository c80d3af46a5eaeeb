// Package transport delivers queued operations to the remote authority
// over HTTP.
package transport

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"
)

// ErrInvalidPayload marks a delivery that can never succeed because the
// entry itself is structurally wrong.
var ErrInvalidPayload = errors.New("invalid payload")

// Request is one outbound operation.
type Request struct {
	Method      string
	ContentType string
	Path        string
	Payload     []byte
}

// Transport delivers a request. A nil error means the remote accepted it.
type Transport interface {
	Deliver(ctx context.Context, req Request) error
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, req Request) error

// Deliver calls f.
func (f Func) Deliver(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// StatusError is a non-2xx response that may succeed on retry.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

// IsStatusError reports whether err carries an HTTP status.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// HTTP is a Transport against a base URL.
type HTTP struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	token   string

	idMu    sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// Option configures an HTTP transport.
type Option func(*HTTP)

// WithClient sets the underlying http.Client.
func WithClient(c *http.Client) Option {
	return func(h *HTTP) {
		h.client = c
	}
}

// WithRateLimit paces outbound requests to rps with the given burst.
// rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(h *HTTP) {
		if rps <= 0 {
			h.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithToken sends a bearer token on every request.
func WithToken(token string) Option {
	return func(h *HTTP) {
		h.token = token
	}
}

// NewHTTP creates a transport for baseURL. Paths from requests are joined
// onto it.
func NewHTTP(baseURL string, opts ...Option) *HTTP {
	h := &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Deliver sends req. The per-attempt timeout is taken from ctx.
//
// 2xx returns nil. Any other status returns *StatusError, which the queue
// retries. Network errors are returned as-is. ErrInvalidPayload is returned
// only when the request itself cannot be built.
func (h *HTTP) Deliver(ctx context.Context, req Request) error {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, h.baseURL+"/"+strings.TrimLeft(req.Path, "/"), bytes.NewReader(req.Payload))
	if err != nil {
		return fmt.Errorf("build request: %w: %v", ErrInvalidPayload, err)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	httpReq.Header.Set("X-Request-ID", h.requestID())
	if h.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return err
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	if readErr != nil {
		return fmt.Errorf("read response: %w", readErr)
	}

	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &errPayload)
	return &StatusError{
		StatusCode: resp.StatusCode,
		Code:       errPayload.Code,
		Message:    errPayload.Message,
	}
}

// requestID returns a monotonic ULID.
func (h *HTTP) requestID() string {
	h.idMu.Lock()
	defer h.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(h.now()), h.entropy).String()
}
