// Package session owns one completion lifecycle per open document.
package session

import (
	"sync"
	"time"

	"github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/zap"

	"github.com/teranos/ghostwrite/completion/accept"
	"github.com/teranos/ghostwrite/completion/lifecycle"
	"github.com/teranos/ghostwrite/completion/snapshot"
	"github.com/teranos/ghostwrite/errors"
	"github.com/teranos/ghostwrite/logger"
)

// Ghost shows and hides the decoration for one document. at locates
// item.Range in the editor's current text. Show must call onDisplayed
// exactly once.
type Ghost interface {
	Show(id lifecycle.RequestID, item *lifecycle.Item, c lifecycle.Context, at protocol.Range, onDisplayed func(error))
	Hide()
}

// Edits applies text edits in the editor. onComplete reports whether the
// editor applied the edit.
type Edits interface {
	ApplyEdit(uri string, version int32, r protocol.Range, text string, onComplete func(ok bool))
}

// Session is one open document and its lifecycle machine.
type Session struct {
	ID  string
	URI string
	Doc *snapshot.Document

	mgr     *Manager
	machine *lifecycle.Machine
	ghost   Ghost
	edits   Edits
	log     *zap.SugaredLogger

	mu          sync.Mutex
	timer       *time.Timer
	progressive accept.Progressive
	expected    *string // document text our pending edit will produce
}

// Machine exposes the lifecycle machine.
func (s *Session) Machine() *lifecycle.Machine { return s.machine }

// State returns the lifecycle state.
func (s *Session) State() lifecycle.State { return s.machine.State() }

// Request issues a completion request at pos. Manual requests run at once;
// automatic ones are debounced and report 0 as their ID.
func (s *Session) Request(pos protocol.Position, trigger lifecycle.Trigger) (lifecycle.RequestID, error) {
	text := s.Doc.Text()
	offset := snapshot.OffsetAt(text, pos)

	if trigger == lifecycle.TriggerManual {
		s.cancelTimer()
		return s.requestAt(offset, trigger), nil
	}

	st := s.mgr.settings()
	if !snapshot.HasMinimumContext(text, offset, st.minOffset) {
		s.log.Debugw("automatic request skipped, not enough context", logger.FieldOffset, offset)
		return 0, nil
	}
	s.schedule(offset, st.debounce)
	return 0, nil
}

// schedule restarts the debounce timer for an automatic request at offset.
func (s *Session) schedule(offset int, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	if delay <= 0 {
		s.timer = nil
		go s.requestAt(offset, lifecycle.TriggerAutomatic)
		return
	}
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.timer = nil
		s.mu.Unlock()
		s.requestAt(offset, lifecycle.TriggerAutomatic)
	})
}

func (s *Session) cancelTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Pending reports whether a debounced request is waiting.
func (s *Session) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

func (s *Session) requestAt(offset int, trigger lifecycle.Trigger) lifecycle.RequestID {
	c := s.context(offset, trigger)
	id := s.machine.RequestCompletion(c)
	s.log.Debugw("completion requested",
		logger.FieldRequestID, id,
		logger.FieldTrigger, trigger.String(),
		logger.FieldOffset, c.Offset,
		logger.FieldStrategy, c.Strategy)
	return id
}

func (s *Session) context(offset int, trigger lifecycle.Trigger) lifecycle.Context {
	text := s.Doc.Text()
	offset = min(max(offset, 0), len(text))
	pos := snapshot.PositionAt(text, offset)

	return lifecycle.Context{
		URI:      s.URI,
		Version:  s.Doc.Version(),
		Offset:   offset,
		Line:     int(pos.Line),
		Column:   int(pos.Character),
		Trigger:  trigger,
		Strategy: s.mgr.Strategy(),
		Language: s.Doc.LanguageID,
		Text:     text,
		Prefix:   text[max(0, offset-contextEdge):offset],
		Suffix:   text[offset:min(len(text), offset+contextEdge)],
	}
}

const contextEdge = 100

// Accept commits the displayed item with t. It reports whether an item
// was displayed.
func (s *Session) Accept(t accept.Type) bool {
	if _, ok := s.machine.State().(lifecycle.Displaying); !ok {
		return false
	}
	s.machine.AcceptRequested(t)
	return true
}

// AcceptNext accepts progressively: a word, then a line, then the rest.
func (s *Session) AcceptNext() (accept.Type, bool) {
	if _, ok := s.machine.State().(lifecycle.Displaying); !ok {
		return accept.Full, false
	}
	s.mu.Lock()
	t := s.progressive.Next()
	s.mu.Unlock()
	s.machine.AcceptRequested(t)
	return t, true
}

// AcceptSmart picks the accept type from the displayed text.
func (s *Session) AcceptSmart() (accept.Type, bool) {
	d, ok := s.machine.State().(lifecycle.Displaying)
	if !ok {
		return accept.Full, false
	}
	t := accept.Smart(d.Item.Text, s.mgr.settings().preferWordByWord)
	s.machine.AcceptRequested(t)
	return t, true
}

// Dismiss hides the ghost and abandons any pending request.
func (s *Session) Dismiss() {
	s.cancelTimer()
	s.machine.DismissRequested()
}

// change applies editor changes. Our own accepted edit is recognised by the
// text it produces; any other edit dismisses the ghost unless an accept is
// in flight. It returns the caret offset implied by an incremental change.
func (s *Session) change(version int32, changes []any) (int, bool, error) {
	before := s.Doc.Text()
	caret, hasCaret := caretAfter(before, changes)

	if err := s.Doc.Apply(version, changes); err != nil {
		return 0, false, errors.Wrapf(err, "apply changes to %s", s.URI)
	}

	s.mu.Lock()
	expected := s.expected
	s.expected = nil
	s.mu.Unlock()

	if expected != nil && *expected == s.Doc.Text() {
		s.log.Debugw("accepted edit observed", logger.FieldURI, s.URI)
		return caret, false, nil
	}

	s.cancelTimer()
	if _, accepting := s.machine.State().(lifecycle.Accepting); !accepting {
		s.machine.DismissRequested()
	}
	return caret, hasCaret, nil
}

// caretAfter returns the caret offset following the last incremental change.
func caretAfter(text string, changes []any) (int, bool) {
	if len(changes) == 0 {
		return 0, false
	}
	var r *protocol.Range
	var inserted string
	switch c := changes[len(changes)-1].(type) {
	case protocol.TextDocumentContentChangeEvent:
		r, inserted = c.Range, c.Text
	case *protocol.TextDocumentContentChangeEvent:
		r, inserted = c.Range, c.Text
	}
	if r == nil || len(changes) > 1 {
		return 0, false
	}
	return snapshot.OffsetAt(text, r.Start) + len(inserted), true
}

// viewText is the text the editor shows or is about to show: the result of
// our pending edit when one is in flight.
func (s *Session) viewText() string {
	s.mu.Lock()
	expected := s.expected
	s.mu.Unlock()
	if expected != nil {
		return *expected
	}
	return s.Doc.Text()
}

func (s *Session) close() {
	s.cancelTimer()
	s.machine.Close()
}

// onTransition resets progressive accept when a fetched item is shown.
// Remainders of a partial accept keep counting.
func (s *Session) onTransition(from, to lifecycle.State, e lifecycle.Event) {
	if _, ok := to.(lifecycle.Ready); !ok {
		return
	}
	if _, fetched := e.(lifecycle.CompletionReceived); fetched {
		s.mu.Lock()
		s.progressive.Reset()
		s.mu.Unlock()
	}
}

// renderer adapts Ghost to lifecycle.Renderer, tagging shows with the
// request ID of the state being entered.
type renderer struct{ s *Session }

func (r renderer) Show(item *lifecycle.Item, c lifecycle.Context, onDisplayed func(error)) {
	at := snapshot.RangeAt(r.s.viewText(), item.Range.Start, item.Range.End)
	r.s.ghost.Show(lifecycle.CurrentID(r.s.machine.State()), item, c, at, onDisplayed)
}

func (r renderer) Hide() { r.s.ghost.Hide() }

// document adapts Edits to lifecycle.Document over the session snapshot.
type document struct{ s *Session }

func (d document) InsertText(r lifecycle.Range, text string, onComplete func(ok bool)) {
	s := d.s
	snap := s.Doc.Text()
	if r.Start < 0 || r.End < r.Start || r.End > len(snap) {
		s.log.Warnw("accept range outside document",
			logger.FieldURI, s.URI,
			"start", r.Start, "end", r.End, logger.FieldSize, len(snap))
		onComplete(false)
		return
	}

	expected := snap[:r.Start] + text + snap[r.End:]
	s.mu.Lock()
	s.expected = &expected
	s.mu.Unlock()

	s.edits.ApplyEdit(s.URI, s.Doc.Version(), snapshot.RangeAt(snap, r.Start, r.End), text, func(ok bool) {
		if !ok {
			s.mu.Lock()
			s.expected = nil
			s.mu.Unlock()
		}
		onComplete(ok)
	})
}
