// Package strategy describes how a completion request is formed and how its
// result is displayed. Strategies are pure configuration.
package strategy

import (
	"strings"
	"time"

	"github.com/teranos/ghostwrite/am"
	"github.com/teranos/ghostwrite/errors"
)

// Strategy selects a request/display policy.
type Strategy string

const (
	Fast         Strategy = "fast"
	Reasoned     Strategy = "reasoned"
	BlockRewrite Strategy = "block_rewrite"
)

// All lists every known strategy in display order.
var All = []Strategy{Fast, Reasoned, BlockRewrite}

// DisplayMode tells the renderer which surface a result belongs on.
type DisplayMode string

const (
	DisplaySingleLine DisplayMode = "single_line"
	DisplayMultiLine  DisplayMode = "multi_line"
	DisplayPreview    DisplayMode = "preview"
)

// ContextScope controls how much surrounding text a request carries.
type ContextScope int

const (
	// ScopeWindow uses a fixed number of lines around the cursor.
	ScopeWindow ContextScope = iota
	// ScopeBlock uses the brace-balanced block enclosing the cursor.
	ScopeBlock
)

// Policy is the full description of one strategy.
type Policy struct {
	Strategy         Strategy
	Scope            ContextScope
	LinesBefore      int
	LinesAfter       int
	MaxContextChars  int
	FileContextChars int // 0 disables file context
	Timeout          time.Duration
	MaxTokens        int
	Temperature      float64
	Model            string // empty uses the provider default
	Display          DisplayMode
	Rationale        bool
}

var builtin = map[Strategy]Policy{
	Fast: {
		Strategy:        Fast,
		Scope:           ScopeWindow,
		LinesBefore:     10,
		LinesAfter:      5,
		MaxContextChars: 1500,
		Timeout:         2 * time.Second,
		MaxTokens:       64,
		Temperature:     0.1,
		Display:         DisplaySingleLine,
	},
	Reasoned: {
		Strategy:         Reasoned,
		Scope:            ScopeWindow,
		LinesBefore:      10,
		LinesAfter:       5,
		MaxContextChars:  1500,
		FileContextChars: 4500,
		Timeout:          8 * time.Second,
		MaxTokens:        256,
		Temperature:      0.2,
		Display:          DisplayMultiLine,
		Rationale:        true,
	},
	BlockRewrite: {
		Strategy:         BlockRewrite,
		Scope:            ScopeBlock,
		MaxContextChars:  6000,
		FileContextChars: 4500,
		Timeout:          15 * time.Second,
		MaxTokens:        1024,
		Temperature:      0.2,
		Display:          DisplayPreview,
	},
}

// Parse converts a config or protocol string into a Strategy.
func Parse(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fast":
		return Fast, nil
	case "reasoned":
		return Reasoned, nil
	case "block_rewrite", "block-rewrite", "blockrewrite", "block":
		return BlockRewrite, nil
	default:
		return "", errors.NewInvalidRequestError("unknown strategy %q (valid: fast, reasoned, block_rewrite)", s)
	}
}

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	_, ok := builtin[s]
	return ok
}

func (s Strategy) String() string { return string(s) }

// Default returns the built-in policy for s. Unknown strategies get Fast.
func Default(s Strategy) Policy {
	if p, ok := builtin[s]; ok {
		return p
	}
	return builtin[Fast]
}

// Table maps strategies to policies after config overrides.
type Table struct {
	policies map[Strategy]Policy
}

// NewTable returns a table holding the built-in policies.
func NewTable() *Table {
	t := &Table{policies: make(map[Strategy]Policy, len(builtin))}
	for k, v := range builtin {
		t.policies[k] = v
	}
	return t
}

// FromConfig builds a table with completion.strategies.* overrides applied.
// Zero values in config keep the built-in default.
func FromConfig(cfg am.CompletionConfig) *Table {
	t := NewTable()
	t.policies[Fast] = override(t.policies[Fast], cfg.Strategies.Fast)
	t.policies[Reasoned] = override(t.policies[Reasoned], cfg.Strategies.Reasoned)
	t.policies[BlockRewrite] = override(t.policies[BlockRewrite], cfg.Strategies.BlockRewrite)
	return t
}

// Policy returns the policy for s, falling back to Fast.
func (t *Table) Policy(s Strategy) Policy {
	if t == nil {
		return Default(s)
	}
	if p, ok := t.policies[s]; ok {
		return p
	}
	return t.policies[Fast]
}

func override(p Policy, sc am.StrategyConfig) Policy {
	if sc.LinesBefore > 0 {
		p.LinesBefore = sc.LinesBefore
	}
	if sc.LinesAfter > 0 {
		p.LinesAfter = sc.LinesAfter
	}
	if sc.MaxContextChars > 0 {
		p.MaxContextChars = sc.MaxContextChars
	}
	if sc.FileContextChars > 0 {
		p.FileContextChars = sc.FileContextChars
	}
	if sc.TimeoutMs > 0 {
		p.Timeout = time.Duration(sc.TimeoutMs) * time.Millisecond
	}
	if sc.MaxTokens > 0 {
		p.MaxTokens = sc.MaxTokens
	}
	if sc.Temperature != nil {
		p.Temperature = *sc.Temperature
	}
	if sc.Model != "" {
		p.Model = sc.Model
	}
	return p
}
