package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/zap"

	"github.com/teranos/ghostwrite/am"
	"github.com/teranos/ghostwrite/completion/accept"
	"github.com/teranos/ghostwrite/completion/lifecycle"
	"github.com/teranos/ghostwrite/completion/snapshot"
	"github.com/teranos/ghostwrite/completion/strategy"
	"github.com/teranos/ghostwrite/completion/telemetry"
	"github.com/teranos/ghostwrite/errors"
	"github.com/teranos/ghostwrite/logger"
)

// DefaultDebounce delays automatic requests while the user is typing.
const DefaultDebounce = 50 * time.Millisecond

// Config configures a Manager.
type Config struct {
	Fetcher   lifecycle.Fetcher
	Telemetry telemetry.Recorder
	Metrics   *telemetry.Metrics

	Strategy         strategy.Strategy
	Debounce         time.Duration
	AutoTrigger      bool
	MinOffset        int
	AutoRedisplay    bool
	PreferWordByWord bool
	MaxDocuments     int

	Logger *zap.SugaredLogger
}

// ConfigFrom maps the completion section of am.toml onto a Config.
func ConfigFrom(c am.CompletionConfig, maxDocuments int) Config {
	return Config{
		Strategy:         strategy.Strategy(c.Strategy),
		Debounce:         time.Duration(c.DebounceMs) * time.Millisecond,
		AutoTrigger:      c.AutoTrigger,
		MinOffset:        c.MinOffset,
		AutoRedisplay:    c.AutoRedisplay,
		PreferWordByWord: c.PreferWordByWord,
		MaxDocuments:     maxDocuments,
	}
}

// Client is the editor side of one connection.
type Client interface {
	Ghost(uri string) Ghost
	Edits
}

type settings struct {
	strategy         strategy.Strategy
	debounce         time.Duration
	autoTrigger      bool
	minOffset        int
	preferWordByWord bool
}

// Manager tracks the open documents of one editor connection.
type Manager struct {
	cfg    Config
	client Client
	log    *zap.SugaredLogger

	current atomic.Pointer[settings]

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a manager for client.
func NewManager(cfg Config, client Client) *Manager {
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.Nop{}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.ComponentLogger("session")
	}

	m := &Manager{
		cfg:      cfg,
		client:   client,
		log:      log,
		sessions: make(map[string]*Session),
	}
	m.Reconfigure(cfg)
	return m
}

// Reconfigure applies new trigger and strategy settings. Pending and
// in-flight requests keep the settings they started with.
func (m *Manager) Reconfigure(cfg Config) {
	st := &settings{
		strategy:         strategy.Fast,
		debounce:         cfg.Debounce,
		autoTrigger:      cfg.AutoTrigger,
		minOffset:        cfg.MinOffset,
		preferWordByWord: cfg.PreferWordByWord,
	}
	if cfg.Strategy.Valid() {
		st.strategy = cfg.Strategy
	}
	if st.debounce <= 0 {
		st.debounce = DefaultDebounce
	}
	m.current.Store(st)
}

func (m *Manager) settings() settings { return *m.current.Load() }

// Strategy returns the strategy used for new requests.
func (m *Manager) Strategy() strategy.Strategy { return m.current.Load().strategy }

// SetStrategy switches the strategy for requests issued from now on.
func (m *Manager) SetStrategy(s strategy.Strategy) error {
	if !s.Valid() {
		return errors.NewInvalidRequestError("unknown strategy %q", s)
	}
	for {
		old := m.current.Load()
		next := *old
		next.strategy = s
		if m.current.CompareAndSwap(old, &next) {
			break
		}
	}
	m.log.Infow("strategy changed", logger.FieldStrategy, s)
	return nil
}

// Open starts a session for uri, replacing any earlier one.
func (m *Manager) Open(uri, languageID string, version int32, text string) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errors.New("session manager closed")
	}
	old := m.sessions[uri]
	if old == nil && m.cfg.MaxDocuments > 0 && len(m.sessions) >= m.cfg.MaxDocuments {
		m.mu.Unlock()
		return nil, errors.WithHint(
			errors.Wrapf(errors.ErrBusy, "open %s: %d documents already open", uri, len(m.sessions)),
			"close unused documents or raise server.max_documents")
	}
	s := m.newSession(uri, languageID, version, text)
	m.sessions[uri] = s
	m.mu.Unlock()

	if old != nil {
		old.close()
	} else {
		m.cfg.Metrics.SessionOpened()
	}
	m.log.Debugw("document opened",
		logger.FieldURI, uri,
		logger.FieldSessionID, s.ID,
		logger.FieldSize, len(text))
	return s, nil
}

func (m *Manager) newSession(uri, languageID string, version int32, text string) *Session {
	s := &Session{
		ID:    uuid.New().String(),
		URI:   uri,
		Doc:   snapshot.NewDocument(uri, languageID, version, text),
		mgr:   m,
		ghost: m.client.Ghost(uri),
		edits: m.client,
	}
	s.log = m.log.With(logger.FieldSessionID, s.ID)
	s.machine = lifecycle.New(lifecycle.Config{
		URI:           uri,
		SessionID:     s.ID,
		Fetcher:       m.cfg.Fetcher,
		Renderer:      renderer{s},
		Document:      document{s},
		Telemetry:     m.cfg.Telemetry,
		AutoRedisplay: m.cfg.AutoRedisplay,
		OnRemainder: func(item *lifecycle.Item, c lifecycle.Context) {
			s.log.Debugw("partial accept left a remainder", logger.FieldTextChars, len(item.Text))
		},
		OnTransition: s.onTransition,
		Logger:       logger.ComponentLogger("lifecycle").With(logger.FieldSessionID, s.ID),
	})
	return s
}

// Get returns the session for uri.
func (m *Manager) Get(uri string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[uri]
	if !ok {
		return nil, errors.NewNotFoundError("no open document %s", uri)
	}
	return s, nil
}

// Change applies editor changes to uri. With automatic triggering on, an
// incremental edit schedules a debounced request at the new caret.
func (m *Manager) Change(uri string, version int32, changes []any) error {
	s, err := m.Get(uri)
	if err != nil {
		return err
	}
	caret, hasCaret, err := s.change(version, changes)
	if err != nil {
		return err
	}

	st := m.settings()
	if st.autoTrigger && hasCaret && snapshot.HasMinimumContext(s.Doc.Text(), caret, st.minOffset) {
		s.schedule(caret, st.debounce)
	}
	return nil
}

// Close ends the session for uri.
func (m *Manager) Close(uri string) error {
	m.mu.Lock()
	s, ok := m.sessions[uri]
	delete(m.sessions, uri)
	m.mu.Unlock()
	if !ok {
		return errors.NewNotFoundError("no open document %s", uri)
	}
	s.close()
	m.cfg.Metrics.SessionClosed()
	m.log.Debugw("document closed", logger.FieldURI, uri, logger.FieldSessionID, s.ID)
	return nil
}

// Request issues a completion request for uri at pos.
func (m *Manager) Request(uri string, pos protocol.Position, trigger lifecycle.Trigger) (lifecycle.RequestID, error) {
	s, err := m.Get(uri)
	if err != nil {
		return 0, err
	}
	return s.Request(pos, trigger)
}

// Accept commits the ghost shown in uri. A nil type accepts progressively.
func (m *Manager) Accept(uri string, t *accept.Type) (accept.Type, bool, error) {
	s, err := m.Get(uri)
	if err != nil {
		return accept.Full, false, err
	}
	if t == nil {
		got, ok := s.AcceptNext()
		return got, ok, nil
	}
	return *t, s.Accept(*t), nil
}

// AcceptSmart commits the ghost shown in uri using the smart accept type.
func (m *Manager) AcceptSmart(uri string) (accept.Type, bool, error) {
	s, err := m.Get(uri)
	if err != nil {
		return accept.Full, false, err
	}
	t, ok := s.AcceptSmart()
	return t, ok, nil
}

// Dismiss hides the ghost shown in uri.
func (m *Manager) Dismiss(uri string) error {
	s, err := m.Get(uri)
	if err != nil {
		return err
	}
	s.Dismiss()
	return nil
}

// Len returns the number of open documents.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every session. The manager refuses new documents
// afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
		m.cfg.Metrics.SessionClosed()
	}
	if len(sessions) > 0 {
		m.log.Infow("sessions closed", logger.FieldCount, len(sessions))
	}
}
