package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/teranos/ghostwrite/completion/lifecycle"
	"github.com/teranos/ghostwrite/completion/session"
	"github.com/teranos/ghostwrite/completion/strategy"
	"github.com/teranos/ghostwrite/completion/telemetry"
)

const docURI = "file:///work/main.go"

type note struct {
	method string
	params any
}

// peer records what the server sends to the editor.
type peer struct {
	mu     sync.Mutex
	notes  []note
	calls  []protocol.ApplyWorkspaceEditParams
	reject bool
}

func (p *peer) notify(method string, params any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notes = append(p.notes, note{method, params})
}

func (p *peer) call(method string, params any, result any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if method != protocol.ServerWorkspaceApplyEdit {
		return
	}
	p.calls = append(p.calls, params.(protocol.ApplyWorkspaceEditParams))
	result.(*protocol.ApplyWorkspaceEditResponse).Applied = !p.reject
}

func (p *peer) shows() []ShowGhostParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []ShowGhostParams
	for _, n := range p.notes {
		if n.method == MethodShowGhost {
			out = append(out, n.params.(ShowGhostParams))
		}
	}
	return out
}

func (p *peer) edits() []protocol.ApplyWorkspaceEditParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.ApplyWorkspaceEditParams(nil), p.calls...)
}

type conn struct {
	t    *testing.T
	h    *Handler
	peer *peer
}

func (c *conn) send(method string, params any) (any, bool, bool, error) {
	c.t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(c.t, err)
	return c.h.Handle(&glsp.Context{
		Method: method,
		Params: raw,
		Notify: c.peer.notify,
		Call:   c.peer.call,
	})
}

func (c *conn) must(method string, params any) any {
	c.t.Helper()
	r, validMethod, validParams, err := c.send(method, params)
	require.True(c.t, validMethod, method)
	require.True(c.t, validParams, method)
	require.NoError(c.t, err, method)
	return r
}

func (c *conn) state() string {
	s, err := c.h.Sessions().Get(docURI)
	require.NoError(c.t, err)
	return s.State().Name()
}

func (c *conn) waitState(name string) {
	c.t.Helper()
	require.Eventually(c.t, func() bool { return c.state() == name }, time.Second, 2*time.Millisecond)
}

func reply(text string) lifecycle.Fetcher {
	return lifecycle.FetcherFunc(func(_ context.Context, c lifecycle.Context) (*lifecycle.Item, error) {
		return &lifecycle.Item{Text: text, Range: lifecycle.Range{Start: c.Offset, End: c.Offset}, Confidence: 1}, nil
	})
}

func newServer(t *testing.T, fetcher lifecycle.Fetcher) *Server {
	t.Helper()
	srv := New(Options{
		Session: session.Config{
			Fetcher:       fetcher,
			Strategy:      strategy.Fast,
			AutoRedisplay: true,
		},
		Gatherer: prometheus.NewRegistry(),
	})
	t.Cleanup(srv.Close)
	return srv
}

func connect(t *testing.T, srv *Server, initOpts map[string]any) *conn {
	t.Helper()
	c := &conn{t: t, h: srv.NewHandler(), peer: &peer{}}
	c.must(protocol.MethodInitialize, map[string]any{
		"processId":             nil,
		"rootUri":               nil,
		"capabilities":          map[string]any{},
		"initializationOptions": initOpts,
	})
	c.must(protocol.MethodInitialized, map[string]any{})
	return c
}

func open(c *conn, text string) {
	c.must(protocol.MethodTextDocumentDidOpen, map[string]any{
		"textDocument": map[string]any{"uri": docURI, "languageId": "go", "version": 1, "text": text},
	})
}

func TestCustomMethodBeforeInitialize(t *testing.T) {
	srv := newServer(t, nil)
	c := &conn{t: t, h: srv.NewHandler(), peer: &peer{}}

	_, validMethod, _, err := c.send(MethodDismiss, DismissParams{URI: docURI})
	assert.True(t, validMethod)
	assert.Error(t, err)
}

func TestInitializeResult(t *testing.T) {
	srv := newServer(t, nil)
	c := &conn{t: t, h: srv.NewHandler(), peer: &peer{}}

	r := c.must(protocol.MethodInitialize, map[string]any{"capabilities": map[string]any{}})
	res, ok := r.(protocol.InitializeResult)
	require.True(t, ok)
	assert.Equal(t, "ghostwrite", res.ServerInfo.Name)
	require.NotNil(t, res.Capabilities.ExecuteCommandProvider)
	assert.ElementsMatch(t, Commands, res.Capabilities.ExecuteCommandProvider.Commands)

	opts := res.Capabilities.TextDocumentSync.(*protocol.TextDocumentSyncOptions)
	assert.Equal(t, protocol.TextDocumentSyncKindIncremental, *opts.Change)
}

func TestUnknownCustomMethod(t *testing.T) {
	srv := newServer(t, nil)
	c := connect(t, srv, nil)

	_, validMethod, _, _ := c.send("ghostwrite/teleport", map[string]any{})
	assert.False(t, validMethod)
}

func TestMalformedParams(t *testing.T) {
	srv := newServer(t, nil)
	c := connect(t, srv, nil)

	_, validMethod, validParams, err := c.send(MethodAccept, []int{1, 2})
	assert.True(t, validMethod)
	assert.False(t, validParams)
	assert.Error(t, err)
}

func TestRequestShowAcceptFlow(t *testing.T) {
	srv := newServer(t, reply("ntln(x)"))
	c := connect(t, srv, nil)
	open(c, "package main\n\nfunc main() {\n\tfmt.Pri\n}\n")

	r := c.must(MethodRequestCompletion, RequestCompletionParams{
		URI:      docURI,
		Position: protocol.Position{Line: 3, Character: 8},
	})
	res := r.(RequestCompletionResult)
	assert.Equal(t, uint64(1), res.RequestID)
	assert.False(t, res.Debounced)

	c.waitState("displaying")
	shows := c.peer.shows()
	require.Len(t, shows, 1)
	assert.Equal(t, "ntln(x)", shows[0].Text)
	assert.Equal(t, "ntln(x)", shows[0].DisplayText)
	assert.Equal(t, string(strategy.DisplaySingleLine), shows[0].Mode)
	assert.Equal(t, protocol.Position{Line: 3, Character: 8}, shows[0].Range.Start)

	acc := c.must(MethodAccept, AcceptParams{URI: docURI, Type: "full"}).(AcceptResult)
	assert.True(t, acc.Accepted)
	assert.Equal(t, "full", acc.Type)

	c.waitState("idle")
	edits := c.peer.edits()
	require.Len(t, edits, 1)
	docEdit := edits[0].Edit.DocumentChanges[0].(protocol.TextDocumentEdit)
	assert.Equal(t, docURI, docEdit.TextDocument.URI)
	assert.Equal(t, protocol.Integer(1), *docEdit.TextDocument.Version)
	textEdit := docEdit.Edits[0].(protocol.TextEdit)
	assert.Equal(t, "ntln(x)", textEdit.NewText)
}

func TestRejectedApplyEdit(t *testing.T) {
	srv := newServer(t, reply("abc"))
	c := connect(t, srv, nil)
	c.peer.reject = true
	open(c, "x := ")

	c.must(MethodRequestCompletion, RequestCompletionParams{URI: docURI, Position: protocol.Position{Character: 5}})
	c.waitState("displaying")
	c.must(MethodAccept, AcceptParams{URI: docURI})
	c.waitState("idle")
	assert.Len(t, c.peer.edits(), 1)
}

func TestDisplayAck(t *testing.T) {
	srv := newServer(t, reply("abc"))
	c := connect(t, srv, map[string]any{"displayAck": true})
	open(c, "x := ")

	res := c.must(MethodRequestCompletion, RequestCompletionParams{URI: docURI, Position: protocol.Position{Character: 5}}).(RequestCompletionResult)
	require.Eventually(t, func() bool { return len(c.peer.shows()) == 1 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, "ready", c.state())

	c.must(MethodDisplayed, DisplayedParams{URI: docURI, RequestID: res.RequestID + 10, OK: true})
	assert.Equal(t, "ready", c.state())

	c.must(MethodDisplayed, DisplayedParams{URI: docURI, RequestID: res.RequestID, OK: true})
	c.waitState("displaying")
}

func TestDisplayFailure(t *testing.T) {
	srv := newServer(t, reply("abc"))
	c := connect(t, srv, map[string]any{"displayAck": true})
	open(c, "x := ")

	res := c.must(MethodRequestCompletion, RequestCompletionParams{URI: docURI, Position: protocol.Position{Character: 5}}).(RequestCompletionResult)
	require.Eventually(t, func() bool { return len(c.peer.shows()) == 1 }, time.Second, 2*time.Millisecond)

	c.must(MethodDisplayed, DisplayedParams{URI: docURI, RequestID: res.RequestID, OK: false, Error: "no inline decorations"})
	c.waitState("idle")
}

func TestDismissAndUnknownDocument(t *testing.T) {
	srv := newServer(t, reply("abc"))
	c := connect(t, srv, nil)
	open(c, "x := ")

	c.must(MethodRequestCompletion, RequestCompletionParams{URI: docURI, Position: protocol.Position{Character: 5}})
	c.waitState("displaying")
	c.must(MethodDismiss, DismissParams{URI: docURI})
	c.waitState("idle")

	_, _, _, err := c.send(MethodDismiss, DismissParams{URI: "file:///nope.go"})
	assert.Error(t, err)
}

func TestSetStrategy(t *testing.T) {
	srv := newServer(t, nil)
	c := connect(t, srv, nil)

	r := c.must(MethodSetStrategy, SetStrategyParams{Strategy: "block-rewrite"}).(SetStrategyResult)
	assert.Equal(t, "block_rewrite", r.Strategy)
	assert.Equal(t, strategy.BlockRewrite, c.h.Sessions().Strategy())

	_, _, _, err := c.send(MethodSetStrategy, SetStrategyParams{Strategy: "psychic"})
	assert.Error(t, err)
}

func TestInitialStrategyOption(t *testing.T) {
	srv := newServer(t, nil)
	c := connect(t, srv, map[string]any{"strategy": "reasoned"})
	assert.Equal(t, strategy.Reasoned, c.h.Sessions().Strategy())
}

func TestUnknownTrigger(t *testing.T) {
	srv := newServer(t, nil)
	c := connect(t, srv, nil)
	open(c, "x")

	_, _, _, err := c.send(MethodRequestCompletion, RequestCompletionParams{URI: docURI, Trigger: "telepathic"})
	assert.Error(t, err)
}

func TestExecuteCommand(t *testing.T) {
	srv := newServer(t, reply("abc"))
	c := connect(t, srv, nil)
	open(c, "x := ")

	r := c.must(protocol.MethodWorkspaceExecuteCommand, map[string]any{
		"command":   CommandRequest,
		"arguments": []any{map[string]any{"uri": docURI, "position": map[string]any{"line": 0, "character": 5}}},
	})
	assert.Equal(t, uint64(1), r.(RequestCompletionResult).RequestID)
	c.waitState("displaying")

	c.must(protocol.MethodWorkspaceExecuteCommand, map[string]any{
		"command":   CommandDismiss,
		"arguments": []any{docURI},
	})
	c.waitState("idle")

	_, _, _, err := c.send(protocol.MethodWorkspaceExecuteCommand, map[string]any{"command": "ghostwrite.fly"})
	assert.Error(t, err)

	_, _, _, err = c.send(protocol.MethodWorkspaceExecuteCommand, map[string]any{"command": CommandAccept})
	assert.Error(t, err)
}

func TestDidChangeDismisses(t *testing.T) {
	srv := newServer(t, reply("ntln()"))
	c := connect(t, srv, nil)
	open(c, "fmt.Pri")

	c.must(MethodRequestCompletion, RequestCompletionParams{URI: docURI, Position: protocol.Position{Character: 7}})
	c.waitState("displaying")

	c.must(protocol.MethodTextDocumentDidChange, map[string]any{
		"textDocument": map[string]any{"uri": docURI, "version": 2},
		"contentChanges": []any{map[string]any{
			"range": map[string]any{
				"start": map[string]any{"line": 0, "character": 7},
				"end":   map[string]any{"line": 0, "character": 7},
			},
			"text": "n",
		}},
	})
	c.waitState("idle")

	s, err := c.h.Sessions().Get(docURI)
	require.NoError(t, err)
	assert.Equal(t, "fmt.Prin", s.Doc.Text())
}

func TestDidCloseAndShutdown(t *testing.T) {
	srv := newServer(t, nil)
	c := connect(t, srv, nil)
	open(c, "x")
	assert.Equal(t, 1, srv.Documents())

	c.must(protocol.MethodTextDocumentDidClose, map[string]any{"textDocument": map[string]any{"uri": docURI}})
	assert.Equal(t, 0, srv.Documents())

	open(c, "y")
	c.must(protocol.MethodShutdown, nil)
	assert.Equal(t, 0, srv.Documents())
}

func TestConnectionLifecycle(t *testing.T) {
	srv := newServer(t, nil)
	h := srv.NewHandler()
	assert.Equal(t, 1, srv.Connections())
	h.Close()
	h.Close()
	assert.Equal(t, 0, srv.Connections())
}

func TestReconfigureKeepsFetcher(t *testing.T) {
	srv := newServer(t, reply("z"))
	c := connect(t, srv, nil)

	srv.Reconfigure(session.Config{Strategy: strategy.Reasoned, Debounce: 10 * time.Millisecond})
	assert.Equal(t, strategy.Reasoned, c.h.Sessions().Strategy())

	open(c, "abc")
	c.must(MethodRequestCompletion, RequestCompletionParams{URI: docURI, Position: protocol.Position{Character: 3}})
	c.waitState("displaying")
}

func TestHealthz(t *testing.T) {
	srv := newServer(t, nil)
	c := connect(t, srv, nil)
	open(c, "x")

	rec := httptest.NewRecorder()
	srv.MetricsMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var h Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 1, h.Connections)
	assert.Equal(t, 1, h.Documents)

	rec = httptest.NewRecorder()
	srv.MetricsMux().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(reg)
	metrics.Observe(telemetry.Event{Kind: telemetry.KindAccepted, Chars: 3})

	srv := New(Options{Gatherer: reg})
	rec := httptest.NewRecorder()
	srv.MetricsMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ghostwrite_completions_total{event="accepted"} 1`)
	assert.Contains(t, rec.Body.String(), "ghostwrite_accepted_chars_total 3")
}

func TestCheckOrigin(t *testing.T) {
	srv := New(Options{AllowedOrigins: []string{"https://editor.example"}})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://editor.example", true},
		{"https://editor.example:8443", true},
		{"http://localhost:3000", false},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/lsp", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, srv.checkOrigin(r))
		})
	}

	local := New(Options{})
	r := httptest.NewRequest(http.MethodGet, "/lsp", nil)
	r.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, local.checkOrigin(r))
}

func TestDisplayText(t *testing.T) {
	assert.Equal(t, "first", displayText("first\nsecond", strategy.DisplaySingleLine))
	assert.Equal(t, "first\nsecond", displayText("first\nsecond", strategy.DisplayMultiLine))
}
