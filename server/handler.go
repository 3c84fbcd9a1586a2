package server

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/zap"

	"github.com/teranos/ghostwrite/completion/accept"
	"github.com/teranos/ghostwrite/completion/lifecycle"
	"github.com/teranos/ghostwrite/completion/session"
	"github.com/teranos/ghostwrite/completion/strategy"
	"github.com/teranos/ghostwrite/errors"
	"github.com/teranos/ghostwrite/internal/util"
	"github.com/teranos/ghostwrite/logger"
	"github.com/teranos/ghostwrite/version"
)

const customPrefix = "ghostwrite/"

// Handler serves one LSP connection. Standard methods go through a glsp
// protocol.Handler; ghostwrite/* methods are routed here.
type Handler struct {
	srv      *Server
	proto    protocol.Handler
	client   *client
	sessions *session.Manager
	log      *zap.SugaredLogger

	closeOnce sync.Once
}

func newHandler(srv *Server, cfg session.Config, log *zap.SugaredLogger) *Handler {
	h := &Handler{
		srv:    srv,
		client: newClient(log),
		log:    log,
	}
	cfg.Logger = logger.ChildLogger(log, logger.FieldComponent, "session")
	h.sessions = session.NewManager(cfg, h.client)
	h.proto = protocol.Handler{
		Initialize:              h.initialize,
		Initialized:             h.initialized,
		Shutdown:                h.shutdown,
		SetTrace:                h.setTrace,
		TextDocumentDidOpen:     h.didOpen,
		TextDocumentDidChange:   h.didChange,
		TextDocumentDidClose:    h.didClose,
		WorkspaceExecuteCommand: h.executeCommand,
	}
	return h
}

// Sessions exposes the connection's document sessions.
func (h *Handler) Sessions() *session.Manager { return h.sessions }

// Handle implements glsp.Handler.
func (h *Handler) Handle(ctx *glsp.Context) (r any, validMethod bool, validParams bool, err error) {
	h.client.bind(ctx)
	if strings.HasPrefix(ctx.Method, customPrefix) {
		return h.handleCustom(ctx)
	}
	return h.proto.Handle(ctx)
}

// Close ends every session of the connection.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		h.sessions.Shutdown()
		h.client.dropAll()
		h.srv.release(h)
	})
}

func (h *Handler) handleCustom(ctx *glsp.Context) (any, bool, bool, error) {
	if !h.proto.IsInitialized() {
		return nil, true, true, errors.New("server not initialized")
	}

	h.log.Debugw("custom method", logger.FieldMethod, ctx.Method)

	switch ctx.Method {
	case MethodRequestCompletion:
		var p RequestCompletionParams
		if err := json.Unmarshal(ctx.Params, &p); err != nil {
			return nil, true, false, err
		}
		r, err := h.requestCompletion(p)
		return r, true, true, err

	case MethodAccept:
		var p AcceptParams
		if err := json.Unmarshal(ctx.Params, &p); err != nil {
			return nil, true, false, err
		}
		r, err := h.accept(p)
		return r, true, true, err

	case MethodDismiss:
		var p DismissParams
		if err := json.Unmarshal(ctx.Params, &p); err != nil {
			return nil, true, false, err
		}
		return nil, true, true, h.sessions.Dismiss(p.URI)

	case MethodDisplayed:
		var p DisplayedParams
		if err := json.Unmarshal(ctx.Params, &p); err != nil {
			return nil, true, false, err
		}
		h.displayed(p)
		return nil, true, true, nil

	case MethodSetStrategy:
		var p SetStrategyParams
		if err := json.Unmarshal(ctx.Params, &p); err != nil {
			return nil, true, false, err
		}
		r, err := h.setStrategy(p)
		return r, true, true, err
	}

	return nil, false, false, nil
}

func (h *Handler) requestCompletion(p RequestCompletionParams) (RequestCompletionResult, error) {
	trigger := lifecycle.TriggerManual
	switch strings.ToLower(p.Trigger) {
	case "", "manual", "invoked":
	case "automatic", "auto":
		trigger = lifecycle.TriggerAutomatic
	default:
		return RequestCompletionResult{}, errors.NewInvalidRequestError("unknown trigger %q", p.Trigger)
	}

	id, err := h.sessions.Request(p.URI, p.Position, trigger)
	if err != nil {
		return RequestCompletionResult{}, err
	}
	return RequestCompletionResult{RequestID: uint64(id), Debounced: id == 0}, nil
}

func (h *Handler) accept(p AcceptParams) (AcceptResult, error) {
	var (
		t   accept.Type
		ok  bool
		err error
	)
	switch strings.ToLower(p.Type) {
	case "":
		t, ok, err = h.sessions.Accept(p.URI, nil)
	case "smart":
		t, ok, err = h.sessions.AcceptSmart(p.URI)
	default:
		parsed, perr := accept.ParseType(p.Type)
		if perr != nil {
			return AcceptResult{}, perr
		}
		t, ok, err = h.sessions.Accept(p.URI, &parsed)
	}
	if err != nil {
		return AcceptResult{}, err
	}
	return AcceptResult{Accepted: ok, Type: t.String()}, nil
}

func (h *Handler) displayed(p DisplayedParams) {
	var err error
	if !p.OK {
		msg := p.Error
		if msg == "" {
			msg = "client could not render ghost"
		}
		err = errors.New(msg)
	}
	if !h.client.displayed(p.URI, lifecycle.RequestID(p.RequestID), err) {
		h.log.Debugw("display ack for unknown ghost",
			logger.FieldURI, p.URI,
			logger.FieldRequestID, p.RequestID)
	}
}

func (h *Handler) setStrategy(p SetStrategyParams) (SetStrategyResult, error) {
	s, err := strategy.Parse(p.Strategy)
	if err != nil {
		return SetStrategyResult{}, err
	}
	if err := h.sessions.SetStrategy(s); err != nil {
		return SetStrategyResult{}, err
	}
	return SetStrategyResult{Strategy: s.String()}, nil
}

func (h *Handler) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	var opts InitializationOptions
	if params.InitializationOptions != nil {
		raw, err := json.Marshal(params.InitializationOptions)
		if err == nil {
			err = json.Unmarshal(raw, &opts)
		}
		if err != nil {
			h.log.Warnw("ignoring malformed initializationOptions", logger.FieldError, err)
		}
	}
	h.client.displayAck.Store(opts.DisplayAck)
	if opts.Strategy != "" {
		if s, err := strategy.Parse(opts.Strategy); err == nil {
			_ = h.sessions.SetStrategy(s)
		} else {
			h.log.Warnw("ignoring unknown initial strategy", logger.FieldStrategy, opts.Strategy)
		}
	}

	clientName := "unknown"
	if params.ClientInfo != nil {
		clientName = params.ClientInfo.Name
	}
	h.log.Infow("LSP client initializing",
		"client", clientName,
		"display_ack", opts.DisplayAck,
		logger.FieldStrategy, h.sessions.Strategy())

	syncKind := protocol.TextDocumentSyncKindIncremental
	name, ver := version.ServerInfo()
	return protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: util.Ptr(true),
				Change:    &syncKind,
			},
			ExecuteCommandProvider: &protocol.ExecuteCommandOptions{
				Commands: Commands,
			},
		},
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    name,
			Version: util.Ptr(ver),
		},
	}, nil
}

func (h *Handler) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	h.log.Infow("LSP client initialized")
	return nil
}

func (h *Handler) shutdown(ctx *glsp.Context) error {
	h.log.Infow("LSP client shutting down", logger.FieldCount, h.sessions.Len())
	h.sessions.Shutdown()
	return nil
}

func (h *Handler) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

func (h *Handler) didOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	doc := params.TextDocument
	if _, err := h.sessions.Open(doc.URI, doc.LanguageID, doc.Version, doc.Text); err != nil {
		h.log.Warnw("document rejected", logger.FieldURI, doc.URI, logger.FieldError, err)
		return err
	}
	return nil
}

func (h *Handler) didChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI
	if err := h.sessions.Change(uri, params.TextDocument.Version, params.ContentChanges); err != nil {
		h.log.Warnw("document change failed", logger.FieldURI, uri, logger.FieldError, err)
		return err
	}
	return nil
}

func (h *Handler) didClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	if err := h.sessions.Close(params.TextDocument.URI); err != nil && !errors.IsNotFoundError(err) {
		return err
	}
	return nil
}

// executeCommand mirrors the custom methods for clients that can only send
// workspace/executeCommand. The first argument carries the method params or
// just the document URI.
func (h *Handler) executeCommand(ctx *glsp.Context, params *protocol.ExecuteCommandParams) (any, error) {
	h.log.Debugw("execute command", "command", params.Command)

	switch params.Command {
	case CommandAccept:
		var p AcceptParams
		if err := commandArg(params.Arguments, &p.URI, &p); err != nil {
			return nil, err
		}
		return h.accept(p)
	case CommandDismiss:
		var p DismissParams
		if err := commandArg(params.Arguments, &p.URI, &p); err != nil {
			return nil, err
		}
		return nil, h.sessions.Dismiss(p.URI)
	case CommandRequest:
		var p RequestCompletionParams
		if err := commandArg(params.Arguments, &p.URI, &p); err != nil {
			return nil, err
		}
		return h.requestCompletion(p)
	}
	return nil, errors.NewInvalidRequestError("unknown command %q", params.Command)
}

// commandArg decodes the first command argument into v, or into uri when
// the argument is a plain string.
func commandArg(args []any, uri *string, v any) error {
	if len(args) == 0 {
		return errors.NewInvalidRequestError("command needs a document argument")
	}
	if s, ok := args[0].(string); ok {
		*uri = s
		return nil
	}
	raw, err := json.Marshal(args[0])
	if err != nil {
		return errors.WrapInvalidRequest(err, "encode command argument")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.WrapInvalidRequest(err, "decode command argument")
	}
	return nil
}
