// Package journal keeps an append-only audit trail of applied commands.
//
// The journal is write-only from the server's point of view: it is never read
// back into the authoritative state, so a restarted server still starts from
// the default state. Entries are handed to a Recorder which buffers them and
// writes from its own goroutine, keeping database latency off the authority
// loop.
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultBufferSize = 256
	writeTimeout      = 2 * time.Second
	flushTimeout      = 5 * time.Second
)

type Entry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	OriginID  uint32    `gorm:"not null;index"`
	Actuator  string    `gorm:"not null"`
	Field     string    `gorm:"not null"`
	Mode      int
	Speed     float32
	AppliedAt time.Time `gorm:"not null;index"`
}

func (Entry) TableName() string { return "actuator_commands" }

func (e *Entry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Journal accepts entries without blocking the caller.
type Journal interface {
	Record(e Entry)
}

type Nop struct{}

func (Nop) Record(Entry) {}

type Store interface {
	Insert(ctx context.Context, e *Entry) error
}

type Recorder struct {
	store   Store
	logger  *zap.Logger
	entries chan Entry
	dropped prometheus.Counter
}

type Option func(*Recorder)

func WithBufferSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.entries = make(chan Entry, n)
		}
	}
}

// WithDroppedCounter counts entries discarded because the buffer was full.
func WithDroppedCounter(c prometheus.Counter) Option {
	return func(r *Recorder) { r.dropped = c }
}

func NewRecorder(store Store, logger *zap.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		store:   store,
		logger:  logger,
		entries: make(chan Entry, defaultBufferSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record enqueues e, dropping it when the buffer is full.
func (r *Recorder) Record(e Entry) {
	select {
	case r.entries <- e:
	default:
		if r.dropped != nil {
			r.dropped.Inc()
		}
		r.logger.Warn("journal buffer full, dropping entry",
			zap.Uint32("connection_id", e.OriginID),
			zap.String("actuator", e.Actuator),
			zap.String("field", e.Field))
	}
}

// Run writes entries until ctx is cancelled, then flushes what is buffered.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return nil
		case e := <-r.entries:
			r.write(e)
		}
	}
}

func (r *Recorder) flush() {
	deadline := time.Now().Add(flushTimeout)
	for time.Now().Before(deadline) {
		select {
		case e := <-r.entries:
			r.write(e)
		default:
			return
		}
	}
}

// write is detached from Run's context so shutdown does not abort the
// entries still being flushed.
func (r *Recorder) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.Insert(ctx, &e); err != nil {
		r.logger.Warn("journal write failed", zap.Error(err), zap.Uint32("connection_id", e.OriginID))
	}
}
