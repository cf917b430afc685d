package instrument

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"devlens/internal/logging"
	"devlens/internal/services"
)

// Trace statuses.
const (
	StatusSuccess   = "success"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Record describes one traced call.
type Record struct {
	Operation string        `json:"operation"`
	SessionID string        `json:"session_id,omitempty"`
	Started   time.Time     `json:"started"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
}

// Sink receives trace records.
type Sink interface {
	Record(Record)
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithSink adds a record sink.
func WithSink(sink Sink) Option {
	return func(t *Tracer) {
		if sink != nil {
			t.sinks = append(t.sinks, sink)
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracer) {
		if now != nil {
			t.now = now
		}
	}
}

// Tracer times calls and emits trace records.
type Tracer struct {
	logger *slog.Logger
	sinks  []Sink
	now    func() time.Time
}

// New constructs a tracer. A nil logger discards log output.
func New(logger *slog.Logger, opts ...Option) *Tracer {
	if logger == nil {
		logger = logging.NewNop()
	}
	t := &Tracer{
		logger: logging.NewComponentLogger(logger, "trace"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Trace runs fn and records its outcome under operation. The error from fn
// is returned unchanged. A nil Tracer runs fn untraced.
func (t *Tracer) Trace(ctx context.Context, operation string, fn func(context.Context) error) error {
	if t == nil {
		return fn(ctx)
	}
	started := t.now()
	err := fn(ctx)
	rec := Record{
		Operation: operation,
		Started:   started.UTC(),
		Duration:  t.now().Sub(started),
		Status:    statusFor(err),
	}
	if id, ok := services.SessionIDFromContext(ctx); ok {
		rec.SessionID = id
	}
	if err != nil {
		rec.Error = err.Error()
	}
	t.emit(ctx, rec)
	return err
}

func (t *Tracer) emit(ctx context.Context, rec Record) {
	logger := logging.WithContext(ctx, t.logger)
	attrs := []logging.Attr{
		logging.String("operation", rec.Operation),
		logging.Duration("duration", rec.Duration),
		logging.String("status", rec.Status),
		logging.String(logging.FieldEventType, "trace"),
	}
	if rec.Error != "" {
		attrs = append(attrs, logging.String("error_message", rec.Error))
		logger.Warn("traced call failed", logging.Args(attrs...)...)
	} else {
		logger.Debug("traced call", logging.Args(attrs...)...)
	}
	for _, sink := range t.sinks {
		sink.Record(rec)
	}
}

func statusFor(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, context.Canceled):
		return StatusCancelled
	default:
		return StatusError
	}
}

// Memory is a bounded in-memory sink holding the most recent records.
type Memory struct {
	mu      sync.Mutex
	limit   int
	records []Record
}

// NewMemory returns a sink that keeps at most limit records (default 256).
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 256
	}
	return &Memory{limit: limit}
}

// Record implements Sink.
func (m *Memory) Record(rec Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	if over := len(m.records) - m.limit; over > 0 {
		m.records = append(m.records[:0], m.records[over:]...)
	}
}

// Records returns a copy of the retained records, oldest first.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
