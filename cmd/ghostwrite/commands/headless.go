package commands

import (
	"context"
	"sync"
	"time"

	"github.com/tliron/glsp/protocol_3_16"

	"github.com/teranos/ghostwrite/completion/lifecycle"
	"github.com/teranos/ghostwrite/completion/session"
	"github.com/teranos/ghostwrite/completion/telemetry"
	"github.com/teranos/ghostwrite/errors"
)

// shownGhost is what a headless editor would have rendered.
type shownGhost struct {
	ID   lifecycle.RequestID
	Item *lifecycle.Item
	At   protocol.Range
}

// headless is a session.Client without an editor: ghosts are captured and
// edits are applied straight back to the session's document.
type headless struct {
	mgr *session.Manager

	mu    sync.Mutex
	shown []shownGhost
}

func (h *headless) Ghost(string) session.Ghost { return headlessGhost{h} }

func (h *headless) ApplyEdit(uri string, version int32, r protocol.Range, text string, onComplete func(ok bool)) {
	go func() {
		change := protocol.TextDocumentContentChangeEvent{Range: &r, Text: text}
		if err := h.mgr.Change(uri, version+1, []any{change}); err != nil {
			onComplete(false)
			return
		}
		onComplete(true)
	}()
}

func (h *headless) last(id lifecycle.RequestID) (shownGhost, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.shown) - 1; i >= 0; i-- {
		if h.shown[i].ID == id {
			return h.shown[i], true
		}
	}
	return shownGhost{}, false
}

type headlessGhost struct{ h *headless }

func (g headlessGhost) Show(id lifecycle.RequestID, item *lifecycle.Item, _ lifecycle.Context, at protocol.Range, onDisplayed func(error)) {
	g.h.mu.Lock()
	g.h.shown = append(g.h.shown, shownGhost{ID: id, Item: item, At: at})
	g.h.mu.Unlock()
	onDisplayed(nil)
}

func (headlessGhost) Hide() {}

// watcher forwards telemetry and lets the caller wait on lifecycle events.
type watcher struct {
	next   telemetry.Recorder
	events chan telemetry.Event
}

func newWatcher(next telemetry.Recorder) *watcher {
	if next == nil {
		next = telemetry.Nop{}
	}
	return &watcher{next: next, events: make(chan telemetry.Event, 64)}
}

func (w *watcher) Record(e telemetry.Event) {
	w.next.Record(e)
	select {
	case w.events <- e:
	default:
	}
}

// await blocks until request id reaches one of kinds. A request that
// returns to Idle without reaching them yields ErrNotFound.
func (w *watcher) await(ctx context.Context, m *lifecycle.Machine, id lifecycle.RequestID, kinds ...telemetry.Kind) (telemetry.Event, error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	started := false
	for {
		select {
		case e := <-w.events:
			if e.RequestID != uint64(id) {
				continue
			}
			if e.Kind == telemetry.KindRequested {
				started = true
			}
			if e.Kind == telemetry.KindError {
				return e, errors.Newf("completion failed: %s", e.Error)
			}
			for _, k := range kinds {
				if e.Kind == k {
					return e, nil
				}
			}
		case <-ticker.C:
			if _, idle := m.State().(lifecycle.Idle); idle && started {
				return telemetry.Event{}, errors.NewNotFoundError("no completion returned for request %d", id)
			}
		case <-ctx.Done():
			return telemetry.Event{}, errors.Wrap(ctx.Err(), "waiting for completion")
		}
	}
}
