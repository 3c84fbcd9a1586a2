package server

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/zap"

	"github.com/teranos/ghostwrite/completion/lifecycle"
	"github.com/teranos/ghostwrite/completion/session"
	"github.com/teranos/ghostwrite/completion/strategy"
	"github.com/teranos/ghostwrite/errors"
	"github.com/teranos/ghostwrite/logger"
)

const editLabel = "Accept completion"

// client is the editor end of one connection. It renders ghosts with
// notifications and commits accepted text with workspace/applyEdit.
type client struct {
	log *zap.SugaredLogger

	notify     atomic.Pointer[glsp.NotifyFunc]
	call       atomic.Pointer[glsp.CallFunc]
	displayAck atomic.Bool

	mu      sync.Mutex
	pending map[string]pendingShow // by uri
}

type pendingShow struct {
	id          lifecycle.RequestID
	onDisplayed func(error)
}

func newClient(log *zap.SugaredLogger) *client {
	return &client{log: log, pending: make(map[string]pendingShow)}
}

// bind captures the connection's notify and call functions. Both stay
// valid for the lifetime of the connection.
func (c *client) bind(ctx *glsp.Context) {
	if ctx.Notify != nil && c.notify.Load() == nil {
		n := ctx.Notify
		c.notify.Store(&n)
	}
	if ctx.Call != nil && c.call.Load() == nil {
		call := ctx.Call
		c.call.Store(&call)
	}
}

func (c *client) send(method string, params any) bool {
	n := c.notify.Load()
	if n == nil {
		return false
	}
	(*n)(method, params)
	return true
}

func (c *client) Ghost(uri string) session.Ghost { return ghost{c: c, uri: uri} }

// displayed resolves the show waiting for id in uri. It reports false
// when nothing was waiting.
func (c *client) displayed(uri string, id lifecycle.RequestID, err error) bool {
	c.mu.Lock()
	p, ok := c.pending[uri]
	if ok && p.id == id {
		delete(c.pending, uri)
	}
	c.mu.Unlock()

	if !ok || p.id != id {
		return false
	}
	p.onDisplayed(err)
	return true
}

// drop resolves any show still waiting in uri as superseded.
func (c *client) drop(uri string) {
	c.mu.Lock()
	p, ok := c.pending[uri]
	delete(c.pending, uri)
	c.mu.Unlock()
	if ok {
		p.onDisplayed(errors.Wrapf(errors.ErrStale, "ghost %d hidden before display", p.id))
	}
}

// dropAll resolves every waiting show. Used when the connection ends.
func (c *client) dropAll() {
	c.mu.Lock()
	uris := make([]string, 0, len(c.pending))
	for uri := range c.pending {
		uris = append(uris, uri)
	}
	c.mu.Unlock()
	for _, uri := range uris {
		c.drop(uri)
	}
}

// ApplyEdit sends workspace/applyEdit off the caller's goroutine. The glsp
// connection handles one message at a time, so a synchronous call from a
// handler would never see its response.
func (c *client) ApplyEdit(uri string, version int32, r protocol.Range, text string, onComplete func(ok bool)) {
	call := c.call.Load()
	if call == nil {
		c.log.Warnw("no connection to apply edit", logger.FieldURI, uri)
		onComplete(false)
		return
	}

	label := editLabel
	v := protocol.Integer(version)
	params := protocol.ApplyWorkspaceEditParams{
		Label: &label,
		Edit: protocol.WorkspaceEdit{
			DocumentChanges: []any{
				protocol.TextDocumentEdit{
					TextDocument: protocol.OptionalVersionedTextDocumentIdentifier{
						TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: uri},
						Version:                &v,
					},
					Edits: []any{protocol.TextEdit{Range: r, NewText: text}},
				},
			},
		},
	}

	go func() {
		var resp protocol.ApplyWorkspaceEditResponse
		(*call)(protocol.ServerWorkspaceApplyEdit, params, &resp)
		if !resp.Applied {
			reason := ""
			if resp.FailureReason != nil {
				reason = *resp.FailureReason
			}
			c.log.Infow("editor rejected completion edit",
				logger.FieldURI, uri,
				"reason", reason)
		}
		onComplete(resp.Applied)
	}()
}

// ghost renders one document's decoration.
type ghost struct {
	c   *client
	uri string
}

func (g ghost) Show(id lifecycle.RequestID, item *lifecycle.Item, ctx lifecycle.Context, at protocol.Range, onDisplayed func(error)) {
	mode := strategy.Default(ctx.Strategy).Display
	params := ShowGhostParams{
		URI:         g.uri,
		RequestID:   uint64(id),
		Range:       at,
		Text:        item.Text,
		DisplayText: displayText(item.Text, mode),
		Mode:        string(mode),
		Rationale:   item.Metadata.Rationale,
		Cached:      item.Metadata.Cached,
	}

	if g.c.displayAck.Load() {
		g.c.drop(g.uri)
		g.c.mu.Lock()
		g.c.pending[g.uri] = pendingShow{id: id, onDisplayed: onDisplayed}
		g.c.mu.Unlock()
	}

	if !g.c.send(MethodShowGhost, params) {
		err := errors.Wrap(errors.ErrServiceUnavailable, "no client connection")
		if g.c.displayAck.Load() {
			g.c.displayed(g.uri, id, err)
			return
		}
		onDisplayed(err)
		return
	}

	if !g.c.displayAck.Load() {
		onDisplayed(nil)
	}
}

func (g ghost) Hide() {
	g.c.drop(g.uri)
	g.c.send(MethodHideGhost, HideGhostParams{URI: g.uri})
}

// displayText is what a client should draw inline for mode.
func displayText(text string, mode strategy.DisplayMode) string {
	if mode != strategy.DisplaySingleLine {
		return text
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}
