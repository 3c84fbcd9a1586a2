package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/ghostwrite/completion/accept"
	"github.com/teranos/ghostwrite/completion/telemetry"
	"github.com/teranos/ghostwrite/errors"
	"github.com/teranos/ghostwrite/logger"
)

// Config wires a Machine to its collaborators.
type Config struct {
	URI       string
	SessionID string

	// Fetcher runs when Requesting is entered. When nil, responses must be
	// delivered through CompletionArrived.
	Fetcher   Fetcher
	Renderer  Renderer
	Document  Document
	Telemetry telemetry.Recorder

	// AutoRedisplay shows the remainder of a partial accept immediately.
	// When false, OnRemainder receives it and the caller decides.
	AutoRedisplay bool
	OnRemainder   func(item *Item, c Context)

	// OnTransition observes every state change on the dispatcher goroutine.
	OnTransition func(from, to State, e Event)

	Logger *zap.SugaredLogger
}

// Machine is the per-document completion lifecycle. All exported methods
// are safe for concurrent use and return without waiting for the
// transition they cause.
type Machine struct {
	cfg    Config
	logger *zap.SugaredLogger
	nextID atomic.Uint64

	mu     sync.Mutex
	queue  []Event
	closed bool
	wake   chan struct{}
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once

	current atomic.Pointer[stateBox]

	base       context.Context
	cancelBase context.CancelFunc

	// Owned by the dispatcher goroutine.
	state       State
	highest     RequestID
	cancelFetch context.CancelFunc
	requestedAt time.Time
	remainder   *Item
	acceptedLen int
}

type stateBox struct{ s State }

// barrier lets tests wait until the queue is empty. It requeues itself
// while events posted by earlier handlers are still pending.
type barrier struct{ done chan struct{} }

func (barrier) Name() string { return "barrier" }
func (barrier) event()       {}

// New starts a Machine in Idle.
func New(cfg Config) *Machine {
	if cfg.Renderer == nil {
		cfg.Renderer = nopRenderer{}
	}
	if cfg.Document == nil {
		cfg.Document = nopDocument{}
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.Nop{}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.ComponentLogger("lifecycle")
	}

	base, cancel := context.WithCancel(context.Background())
	m := &Machine{
		cfg:        cfg,
		logger:     log.With(logger.FieldURI, cfg.URI),
		wake:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		base:       base,
		cancelBase: cancel,
		state:      Idle{},
	}
	m.current.Store(&stateBox{s: Idle{}})
	go m.run()
	return m
}

// RequestCompletion mints a new request ID and queues the request.
func (m *Machine) RequestCompletion(c Context) RequestID {
	id := RequestID(m.nextID.Add(1))
	m.post(RequestCompletion{ID: id, Ctx: c})
	return id
}

// CompletionArrived delivers a provider response. A nil item ends the
// request with nothing shown.
func (m *Machine) CompletionArrived(item *Item, id RequestID) {
	m.post(CompletionReceived{Item: item, ID: id})
}

// AcceptRequested commits the displayed item using t.
func (m *Machine) AcceptRequested(t accept.Type) {
	m.post(AcceptRequested{Type: t})
}

// DismissRequested abandons the pending or displayed completion.
func (m *Machine) DismissRequested() {
	m.post(Dismiss{})
}

// Redisplay shows item without fetching, under a new request ID. It only
// takes effect from Idle.
func (m *Machine) Redisplay(item *Item, c Context) RequestID {
	id := RequestID(m.nextID.Add(1))
	m.post(Redisplay{Item: item, Ctx: c, ID: id})
	return id
}

// State returns the most recently entered state.
func (m *Machine) State() State {
	return m.current.Load().s
}

// Close cancels any in-flight fetch, hides the decoration and stops the
// dispatcher. Events posted afterwards are dropped.
func (m *Machine) Close() {
	m.once.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.quit)
	})
	<-m.done
}

func (m *Machine) post(e Event) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, e)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

func (m *Machine) drain() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := m.queue
	m.queue = nil
	return events
}

func (m *Machine) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Machine) run() {
	defer close(m.done)
	for {
		select {
		case <-m.quit:
			m.shutdown()
			return
		case <-m.wake:
			for _, e := range m.drain() {
				select {
				case <-m.quit:
					m.release(e)
					continue
				default:
				}
				m.handle(e)
			}
		}
	}
}

func (m *Machine) shutdown() {
	for _, e := range m.drain() {
		m.release(e)
	}
	if m.cancelFetch != nil {
		m.cancelFetch()
		m.cancelFetch = nil
	}
	m.cancelBase()
	if _, idle := m.state.(Idle); !idle {
		m.cfg.Renderer.Hide()
	}
	m.state = Idle{}
	m.remainder = nil
	m.current.Store(&stateBox{s: m.state})
	m.logger.Debugw("lifecycle closed")
}

func (m *Machine) release(e Event) {
	if b, ok := e.(barrier); ok {
		close(b.done)
	}
}

func (m *Machine) handle(e Event) {
	switch ev := e.(type) {
	case barrier:
		if m.pending() > 0 {
			m.post(ev)
		} else {
			close(ev.done)
		}
		return
	case RequestCompletion:
		if ev.ID <= m.highest {
			m.logger.Debugw("out-of-order request ignored", logger.FieldRequestID, ev.ID)
			return
		}
		m.highest = ev.ID
	case Redisplay:
		if ev.ID <= m.highest {
			return
		}
	case CompletionReceived:
		if CurrentID(m.state) != ev.ID || !isRequesting(m.state) {
			m.logger.Debugw("stale completion dropped",
				logger.FieldRequestID, ev.ID,
				logger.FieldState, m.state.Name(),
				logger.FieldError, errors.ErrStale)
			m.record(telemetry.KindStale, ev.ID, m.ctxOf(m.state), nil)
			return
		}
	}

	from := m.state
	next, changed := Transition(from, e)
	if !changed {
		m.logger.Debugw("event ignored", logger.FieldEvent, e.Name(), logger.FieldState, from.Name())
		return
	}

	var rem *Item
	var remCtx Context
	if acc, ok := from.(Accepting); ok {
		if _, done := e.(AcceptCompleted); done {
			rem = m.remainder
			if rem != nil {
				remCtx = advance(acc.Ctx, acc.Item, rem.Range.Start)
			}
		}
	}

	m.apply(from, next, e)

	if rem == nil {
		return
	}
	if !m.cfg.AutoRedisplay {
		if m.cfg.OnRemainder != nil {
			m.cfg.OnRemainder(rem, remCtx)
		}
		return
	}
	id := RequestID(m.nextID.Add(1))
	m.highest = id
	ev := Redisplay{Item: rem, Ctx: remCtx, ID: id}
	if after, ok := Transition(m.state, ev); ok {
		m.apply(m.state, after, ev)
	}
}

func (m *Machine) apply(from, to State, e Event) {
	m.exit(from, to)
	m.state = to
	m.current.Store(&stateBox{s: to})
	if r, ok := e.(Redisplay); ok {
		m.highest = r.ID
	}

	m.logger.Debugw("transition",
		logger.FieldFrom, from.Name(),
		logger.FieldTo, to.Name(),
		logger.FieldEvent, e.Name(),
		logger.FieldRequestID, CurrentID(to))

	m.enter(to, from, e)

	if m.cfg.OnTransition != nil {
		m.cfg.OnTransition(from, to, e)
	}
}

func (m *Machine) exit(from, to State) {
	switch from.(type) {
	case Requesting:
		if m.cancelFetch != nil {
			m.cancelFetch()
			m.cancelFetch = nil
		}
	case Ready, Displaying:
		// Idle and Accepting hide on entry.
		if _, next := to.(Requesting); next {
			m.cfg.Renderer.Hide()
		}
	case Accepting:
		m.remainder = nil
	}
}

func (m *Machine) enter(to, from State, e Event) {
	if shown(from) {
		switch e.(type) {
		case Dismiss, RequestCompletion:
			m.record(telemetry.KindRejected, CurrentID(from), m.ctxOf(from), nil)
		}
	}

	switch s := to.(type) {
	case Idle:
		m.cfg.Renderer.Hide()
		switch ev := e.(type) {
		case Error:
			err := ev.Err
			if err == nil {
				err = errors.New("unknown failure")
			}
			if errors.Is(err, context.Canceled) {
				m.logger.Debugw("completion cancelled", logger.FieldRequestID, ev.ID)
			} else {
				m.logger.Warnw("completion failed",
					logger.FieldRequestID, ev.ID,
					logger.FieldState, from.Name(),
					logger.FieldError, err)
			}
			m.record(telemetry.KindError, ev.ID, m.ctxOf(from), func(te *telemetry.Event) {
				te.Error = err.Error()
			})
		case AcceptCompleted:
			chars := m.acceptedLen
			if acc, ok := from.(Accepting); ok {
				m.record(telemetry.KindAccepted, ev.ID, acc.Ctx, func(te *telemetry.Event) {
					te.AcceptType = acc.Type.String()
					te.Chars = chars
				})
			}
		}

	case Requesting:
		m.record(telemetry.KindRequested, s.ID, s.Ctx, nil)
		m.startFetch(s)

	case Ready:
		if _, fetched := from.(Requesting); fetched {
			latency := time.Since(m.requestedAt)
			m.record(telemetry.KindReceived, s.ID, s.Ctx, func(te *telemetry.Event) {
				te.Latency = latency
				te.Chars = len(s.Item.Text)
			})
		}
		m.cfg.Renderer.Hide()
		id := s.ID
		m.cfg.Renderer.Show(s.Item, s.Ctx, func(err error) {
			if err != nil {
				m.post(Error{ID: id, Err: errors.Wrap(err, "render completion")})
				return
			}
			m.post(DisplayCompleted{ID: id})
		})

	case Displaying:
		m.record(telemetry.KindDisplayed, s.ID, s.Ctx, nil)

	case Accepting:
		m.record(telemetry.KindAcceptRequested, s.ID, s.Ctx, func(te *telemetry.Event) {
			te.AcceptType = s.Type.String()
		})
		m.cfg.Renderer.Hide()

		accepted, _ := accept.Split(s.Item.Text, s.Type)
		m.remainder = s.Item.Remainder(accepted)
		m.acceptedLen = len(accepted)

		id := s.ID
		var once sync.Once
		m.cfg.Document.InsertText(s.Item.Range, accepted, func(ok bool) {
			once.Do(func() {
				if ok {
					m.post(AcceptCompleted{ID: id})
					return
				}
				m.post(Error{ID: id, Err: errors.Wrap(errors.ErrConflict, "document rejected edit")})
			})
		})
	}
}

func (m *Machine) startFetch(s Requesting) {
	m.requestedAt = time.Now()
	if m.cfg.Fetcher == nil {
		return
	}

	ctx, cancel := context.WithCancel(m.base)
	ctx = logger.WithRequestID(ctx, uint64(s.ID))
	ctx = logger.WithSessionID(ctx, m.cfg.SessionID)
	m.cancelFetch = cancel

	fetcher := m.cfg.Fetcher
	go func() {
		item, err := fetcher.Fetch(ctx, s.Ctx)
		if err != nil {
			m.post(Error{ID: s.ID, Err: errors.Wrapf(err, "fetch request %d", s.ID)})
			return
		}
		m.post(CompletionReceived{Item: item, ID: s.ID})
	}()
}

func (m *Machine) record(kind telemetry.Kind, id RequestID, c Context, fill func(*telemetry.Event)) {
	ev := telemetry.Event{
		Kind:      kind,
		SessionID: m.cfg.SessionID,
		RequestID: uint64(id),
		URI:       c.URI,
		Strategy:  c.Strategy.String(),
		Language:  c.Language,
		Time:      time.Now(),
	}
	if ev.URI == "" {
		ev.URI = m.cfg.URI
	}
	if fill != nil {
		fill(&ev)
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warnw("telemetry recorder failed",
				logger.FieldEvent, string(kind),
				logger.FieldRequestID, id,
				logger.FieldError, r)
		}
	}()
	m.cfg.Telemetry.Record(ev)
}

func (m *Machine) ctxOf(s State) Context {
	switch s := s.(type) {
	case Requesting:
		return s.Ctx
	case Ready:
		return s.Ctx
	case Displaying:
		return s.Ctx
	case Accepting:
		return s.Ctx
	default:
		return Context{URI: m.cfg.URI}
	}
}

func isRequesting(s State) bool {
	_, ok := s.(Requesting)
	return ok
}

func shown(s State) bool {
	switch s.(type) {
	case Ready, Displaying:
		return true
	default:
		return false
	}
}

type nopRenderer struct{}

func (nopRenderer) Show(_ *Item, _ Context, onDisplayed func(error)) { onDisplayed(nil) }
func (nopRenderer) Hide()                                           {}

type nopDocument struct{}

func (nopDocument) InsertText(_ Range, _ string, onComplete func(bool)) { onComplete(true) }
