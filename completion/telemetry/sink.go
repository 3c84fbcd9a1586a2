package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/teranos/ghostwrite/logger"
)

const (
	DefaultBufferSize = 256
	flushBatch        = 64
	flushInterval     = time.Second
	writeTimeout      = 5 * time.Second
)

// SinkConfig configures a Sink. Store and Metrics are both optional.
type SinkConfig struct {
	Store      *Store
	Metrics    *Metrics
	BufferSize int
	Logger     *zap.SugaredLogger
}

// Sink is an asynchronous Recorder. Record never blocks: when the buffer is
// full the event is dropped and counted.
type Sink struct {
	store   *Store
	metrics *Metrics
	log     *zap.SugaredLogger

	mu     sync.RWMutex
	closed bool
	events chan Event
	done   chan struct{}

	dropped  atomic.Uint64
	recorded atomic.Uint64
}

// NewSink starts the background writer.
func NewSink(cfg SinkConfig) *Sink {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	log := cfg.Logger
	if log == nil {
		log = logger.ComponentLogger("telemetry")
	}

	s := &Sink{
		store:   cfg.Store,
		metrics: cfg.Metrics,
		log:     log,
		events:  make(chan Event, size),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Record queues an event, assigning an ID and timestamp when missing.
func (s *Sink) Record(e Event) {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}

	select {
	case s.events <- e:
		s.recorded.Add(1)
	default:
		if s.dropped.Add(1)%100 == 1 {
			s.log.Warnw("Telemetry buffer full, dropping events",
				logger.FieldEvent, e.Kind,
				logger.FieldCount, s.dropped.Load())
		}
	}
}

// Dropped reports how many events were discarded.
func (s *Sink) Dropped() uint64 { return s.dropped.Load() }

// Recorded reports how many events were queued.
func (s *Sink) Recorded() uint64 { return s.recorded.Load() }

// Close stops accepting events and waits until queued events are written.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()
	<-s.done
}

func (s *Sink) run() {
	defer close(s.done)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, flushBatch)
	for {
		select {
		case e, ok := <-s.events:
			if !ok {
				s.flush(batch)
				return
			}
			s.metrics.Observe(e)
			if s.store == nil {
				continue
			}
			batch = append(batch, e)
			if len(batch) >= flushBatch {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Sink) flush(batch []Event) {
	if s.store == nil || len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	start := time.Now()
	if err := s.store.InsertBatch(ctx, batch); err != nil {
		s.log.Warnw("Failed to persist completion events",
			logger.FieldCount, len(batch),
			logger.FieldError, err)
		return
	}
	s.log.Debugw("Persisted completion events",
		logger.FieldCount, len(batch),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
}
