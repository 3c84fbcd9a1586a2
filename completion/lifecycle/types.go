// Package lifecycle arbitrates asynchronous completion responses against
// user input for one document. A Machine owns the current State and moves
// between states only on its dispatcher goroutine.
package lifecycle

import (
	"context"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/teranos/ghostwrite/completion/strategy"
)

// RequestID identifies one completion request. IDs grow monotonically per
// Machine and a newer ID invalidates every older one.
type RequestID uint64

// Trigger says why a request was issued.
type Trigger int

const (
	TriggerAutomatic Trigger = iota
	TriggerManual
)

func (t Trigger) String() string {
	if t == TriggerManual {
		return "manual"
	}
	return "automatic"
}

// Range is a half-open span of byte offsets into a document snapshot.
type Range struct {
	Start int
	End   int
}

// Len returns the number of bytes covered.
func (r Range) Len() int { return r.End - r.Start }

// Context is the immutable snapshot captured when a request is issued.
type Context struct {
	URI      string
	Version  int32
	Offset   int // byte offset of the caret in Text
	Line     int // zero-based caret position, used for cache keys
	Column   int
	Trigger  Trigger
	Strategy strategy.Strategy
	Language string
	Text     string // full document text at request time
	Prefix   string
	Suffix   string
}

// Metadata describes where a completion came from.
type Metadata struct {
	Model     string
	Tokens    int
	Latency   time.Duration
	Rationale string
	Cached    bool
}

// Item is a completion result. Items are never mutated after creation.
type Item struct {
	Text       string
	Range      Range
	Confidence float64 // 0..1
	Metadata   Metadata
}

// Empty reports whether the item has nothing worth showing.
func (it *Item) Empty() bool {
	return it == nil || strings.TrimSpace(it.Text) == ""
}

// Remainder returns the part of the item left after accepted was committed.
// The remainder's range is collapsed at the end of the inserted text and it
// keeps the confidence and metadata. It returns nil when nothing but
// whitespace remains.
func (it *Item) Remainder(accepted string) *Item {
	if it == nil || !strings.HasPrefix(it.Text, accepted) {
		return nil
	}
	rest := it.Text[len(accepted):]
	if strings.TrimSpace(rest) == "" {
		return nil
	}
	at := it.Range.Start + len(accepted)
	return &Item{
		Text:       rest,
		Range:      Range{Start: at, End: at},
		Confidence: it.Confidence,
		Metadata:   it.Metadata,
	}
}

// advance returns c as it stands after the first caret-start bytes of it
// were inserted over it.Range, with the caret at the end of the insertion.
func advance(c Context, it *Item, caret int) Context {
	n := caret - it.Range.Start
	if n < 0 || n > len(it.Text) {
		return c
	}
	accepted := it.Text[:n]
	start, end := it.Range.Start, it.Range.End

	next := c
	next.Offset = caret
	if start >= 0 && start <= end && end <= len(c.Text) {
		next.Text = c.Text[:start] + accepted + c.Text[end:]
	}
	if start == c.Offset {
		next.Prefix = c.Prefix + accepted
		if replaced := end - start; replaced <= len(c.Suffix) {
			next.Suffix = c.Suffix[replaced:]
		}
	}
	if i := strings.LastIndexByte(accepted, '\n'); i >= 0 {
		next.Line += strings.Count(accepted, "\n")
		next.Column = utf16Len(accepted[i+1:])
	} else {
		next.Column += utf16Len(accepted)
	}
	return next
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// Fetcher produces completions. Fetch runs off the dispatcher goroutine and
// must return promptly once ctx is cancelled.
type Fetcher interface {
	Fetch(ctx context.Context, c Context) (*Item, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, c Context) (*Item, error)

func (f FetcherFunc) Fetch(ctx context.Context, c Context) (*Item, error) { return f(ctx, c) }

// Renderer shows an item as a non-editable decoration. Show must call
// onDisplayed exactly once, with a non-nil error if rendering failed.
// Hide is idempotent.
type Renderer interface {
	Show(item *Item, c Context, onDisplayed func(error))
	Hide()
}

// Document commits accepted text. InsertText replaces r with text as one
// all-or-nothing edit and calls onComplete exactly once.
type Document interface {
	InsertText(r Range, text string, onComplete func(ok bool))
}
