// Package provider implements lifecycle.Fetcher on top of an AI chat client.
package provider

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	ai "github.com/teranos/ghostwrite/ai/provider"
	"github.com/teranos/ghostwrite/ai/openrouter"
	"github.com/teranos/ghostwrite/ai/tracker"
	"github.com/teranos/ghostwrite/completion/cache"
	"github.com/teranos/ghostwrite/completion/lifecycle"
	"github.com/teranos/ghostwrite/completion/prompt"
	"github.com/teranos/ghostwrite/completion/snapshot"
	"github.com/teranos/ghostwrite/completion/strategy"
	"github.com/teranos/ghostwrite/errors"
	"github.com/teranos/ghostwrite/internal/tracing"
	"github.com/teranos/ghostwrite/logger"
)

// Config wires a Fetcher.
type Config struct {
	Client     ai.AIClient
	Strategies *strategy.Table
	Cache      *cache.Cache // nil disables caching

	// RateLimit caps provider calls per second. Zero means unlimited.
	RateLimit rate.Limit
	Burst     int

	Verbosity int
	Logger    *zap.SugaredLogger
}

// Fetcher gathers context, asks the provider and turns the answer into a
// lifecycle.Item. It is shared by every session.
type Fetcher struct {
	client     ai.AIClient
	strategies atomic.Pointer[strategy.Table]
	cache      *cache.Cache
	limiter    *rate.Limiter
	group      singleflight.Group
	verbosity  int
	logger     *zap.SugaredLogger
}

var _ lifecycle.Fetcher = (*Fetcher)(nil)

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	f := &Fetcher{
		client:    cfg.Client,
		cache:     cfg.Cache,
		verbosity: cfg.Verbosity,
		logger:    cfg.Logger,
	}
	if f.logger == nil {
		f.logger = logger.ComponentLogger("provider")
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}
	table := cfg.Strategies
	if table == nil {
		table = strategy.NewTable()
	}
	f.strategies.Store(table)
	return f
}

// SetStrategies swaps the strategy budgets. Requests already in flight keep
// the budgets they started with.
func (f *Fetcher) SetStrategies(t *strategy.Table) {
	if t != nil {
		f.strategies.Store(t)
	}
}

// Cache returns the completion cache, or nil.
func (f *Fetcher) Cache() *cache.Cache { return f.cache }

// request is everything derived from a lifecycle.Context before calling out.
type request struct {
	policy   strategy.Policy
	prompt   prompt.Prompt
	key      cache.Key
	replace  lifecycle.Range
	typed    string
	language string
}

// Fetch implements lifecycle.Fetcher. It returns (nil, nil) when the
// provider produced nothing usable.
func (f *Fetcher) Fetch(ctx context.Context, c lifecycle.Context) (*lifecycle.Item, error) {
	if f.client == nil {
		return nil, errors.WithHint(errors.Wrap(errors.ErrServiceUnavailable, "no completion provider configured"),
			"enable local_inference or set GHOSTWRITE_OPENROUTER_API_KEY / GHOSTWRITE_ANTHROPIC_API_KEY")
	}

	req := f.prepare(c)
	ctx, cancel := context.WithTimeout(ctx, req.policy.Timeout)
	defer cancel()

	log := f.logger.With(logger.FieldsFromContext(ctx)...)

	if f.cache != nil {
		if e, ok := f.cache.Get(req.key); ok {
			log.Debugw("cache hit", logger.FieldStrategy, req.policy.Strategy)
			return f.item(req, e, 0, true), nil
		}
	}

	start := time.Now()
	ch := f.group.DoChan(req.key.String(), func() (any, error) {
		return f.call(ctx, req)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, f.ctxErr(ctx)
	}
	if res.Err != nil {
		return nil, res.Err
	}

	e := res.Val.(cache.Entry)
	if e.Text == "" {
		log.Debugw("provider returned no usable completion", logger.FieldDurationMS, time.Since(start).Milliseconds())
		return nil, nil
	}
	if f.cache != nil {
		f.cache.Put(req.key, e)
	}
	return f.item(req, e, time.Since(start), false), nil
}

func (f *Fetcher) prepare(c lifecycle.Context) request {
	policy := f.strategies.Load().Policy(c.Strategy)
	text := c.Text
	offset := min(max(c.Offset, 0), len(text))

	lang := c.Language
	if lang == "" {
		lang = snapshot.DetectLanguage(c.URI)
	}

	g := snapshot.Gather(text, offset, snapshot.Policy{
		LinesBefore: policy.LinesBefore,
		LinesAfter:  policy.LinesAfter,
		MaxChars:    policy.MaxContextChars,
	})
	replace := lifecycle.Range{Start: offset, End: offset}
	if policy.Scope == strategy.ScopeBlock {
		start, end := snapshot.EnclosingBlock(text, offset)
		g.Window = snapshot.TrimAround(text[start:offset]+snapshot.CursorMarker+text[offset:end], snapshot.CursorMarker, policy.MaxContextChars)
		if end > start && text[end-1] == '\n' {
			end--
		}
		replace = lifecycle.Range{Start: start, End: end}
	}

	var fileCtx string
	if policy.FileContextChars > 0 {
		fileCtx = snapshot.FileContext(text, g.Window, policy.FileContextChars)
	}

	return request{
		policy: policy,
		prompt: prompt.Build(prompt.Input{
			Policy:      policy,
			Gathered:    g,
			FileContext: fileCtx,
			Language:    lang,
		}),
		key: cache.Key{
			Language: lang,
			Before:   g.Prefix,
			After:    g.Suffix,
			Line:     g.Line,
			Column:   g.Column,
			Strategy: policy.Strategy.String(),
		},
		replace:  replace,
		typed:    g.LinePrefix,
		language: lang,
	}
}

// call runs once per distinct key among concurrent requests.
func (f *Fetcher) call(ctx context.Context, req request) (cache.Entry, error) {
	log := f.logger.With(logger.FieldsFromContext(ctx)...)

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return cache.Entry{}, errors.Mark(errors.Wrap(err, "wait for rate limit"), errors.ErrTimeout)
		}
	}

	requestID, _ := logger.RequestIDFromContext(ctx)
	ctx, span := tracing.StartSpan(ctx, "completion.fetch",
		tracing.AttrRequestID.Int64(int64(requestID)),
		tracing.AttrSessionID.String(logger.SessionIDFromContext(ctx)),
		tracing.AttrStrategy.String(req.policy.Strategy.String()),
		tracing.AttrLanguage.String(req.language),
	)
	defer span.End()

	inputLen := len(req.prompt.User)
	chat := openrouter.ChatRequest{
		SystemPrompt: req.prompt.System,
		UserPrompt:   req.prompt.User,
		Temperature:  &req.policy.Temperature,
		MaxTokens:    &req.policy.MaxTokens,
		Stop:         req.prompt.Stop,
		EntityType:   "completion",
		EntityID:     req.policy.Strategy.String(),
		Metadata: &tracker.UsageMetadata{
			SessionID:   logger.SessionIDFromContext(ctx),
			RequestID:   requestID,
			Language:    req.language,
			InputLength: &inputLen,
		},
	}
	if req.policy.Model != "" {
		model := req.policy.Model
		chat.Model = &model
	}

	if logger.ShouldLogPrompts(f.verbosity) {
		log.Debugw("completion prompt", "system", chat.SystemPrompt, "user", chat.UserPrompt)
	}

	resp, err := f.client.Chat(ctx, chat)
	if err != nil {
		if ctx.Err() != nil {
			err = errors.Wrap(f.ctxErr(ctx), err.Error())
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider call failed")
		return cache.Entry{}, errors.Wrapf(err, "%s completion", req.policy.Strategy)
	}

	if logger.ShouldLogPrompts(f.verbosity) {
		log.Debugw("completion response", "raw", resp.Content)
	}

	text, rationale := resp.Content, ""
	if req.policy.Rationale {
		text, rationale = prompt.SplitRationale(text)
	}
	text = prompt.Clean(text)
	if req.policy.Strategy == strategy.BlockRewrite {
		text = strings.ReplaceAll(text, snapshot.CursorMarker, "")
	}
	if !prompt.Valid(text) {
		span.SetAttributes(tracing.AttrChars.Int(0))
		return cache.Entry{}, nil
	}
	if req.policy.Strategy != strategy.BlockRewrite {
		text = prompt.RemovePrefix(text, req.typed)
	}
	if strings.TrimSpace(text) == "" {
		return cache.Entry{}, nil
	}

	span.SetAttributes(
		tracing.AttrModel.String(resp.Model),
		tracing.AttrTokens.Int(resp.Usage.TotalTokens),
		tracing.AttrChars.Int(len(text)),
	)
	return cache.Entry{
		Text:      text,
		Rationale: rationale,
		Model:     resp.Model,
		Tokens:    resp.Usage.TotalTokens,
	}, nil
}

func (f *Fetcher) item(req request, e cache.Entry, latency time.Duration, cached bool) *lifecycle.Item {
	return &lifecycle.Item{
		Text:       e.Text,
		Range:      req.replace,
		Confidence: 1.0,
		Metadata: lifecycle.Metadata{
			Model:     e.Model,
			Tokens:    e.Tokens,
			Latency:   latency,
			Rationale: e.Rationale,
			Cached:    cached,
		},
	}
}

func (f *Fetcher) ctxErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrap(errors.ErrTimeout, "completion deadline exceeded")
	}
	return ctx.Err()
}
