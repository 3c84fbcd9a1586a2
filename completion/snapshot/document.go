// Package snapshot keeps open document text and extracts the context a
// completion request is built from.
package snapshot

import (
	"strings"
	"sync"
	"unicode/utf16"
	"unicode/utf8"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/teranos/ghostwrite/errors"
)

// Document is the server-side copy of one open text document.
type Document struct {
	URI        string
	LanguageID string

	mu      sync.RWMutex
	version int32
	text    string
}

// NewDocument creates a document at the given version.
func NewDocument(uri, languageID string, version int32, text string) *Document {
	if languageID == "" {
		languageID = DetectLanguage(uri)
	}
	return &Document{URI: uri, LanguageID: languageID, version: version, text: text}
}

// Text returns the current content.
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// Version returns the last version reported by the client.
func (d *Document) Version() int32 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// Apply applies didChange content changes in order. Both incremental
// (TextDocumentContentChangeEvent) and full (TextDocumentContentChangeEventWhole)
// changes are accepted.
func (d *Document) Apply(version int32, changes []any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	text := d.text
	for i, change := range changes {
		switch c := change.(type) {
		case protocol.TextDocumentContentChangeEventWhole:
			text = c.Text
		case *protocol.TextDocumentContentChangeEventWhole:
			text = c.Text
		case protocol.TextDocumentContentChangeEvent:
			next, err := applyRange(text, c.Range, c.Text)
			if err != nil {
				return errors.Wrapf(err, "change %d of %s", i, d.URI)
			}
			text = next
		case *protocol.TextDocumentContentChangeEvent:
			next, err := applyRange(text, c.Range, c.Text)
			if err != nil {
				return errors.Wrapf(err, "change %d of %s", i, d.URI)
			}
			text = next
		default:
			return errors.NewInvalidRequestError("unsupported content change %T", change)
		}
	}

	d.text = text
	d.version = version
	return nil
}

// Replace swaps the bytes in [start, end) for text. It is used when edits are
// applied locally rather than reported by a client.
func (d *Document) Replace(start, end int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if start < 0 || end < start || end > len(d.text) {
		return errors.NewInvalidRequestError("range %d-%d outside document of %d bytes", start, end, len(d.text))
	}
	d.text = d.text[:start] + text + d.text[end:]
	d.version++
	return nil
}

// Offset converts an LSP position into a byte offset in the current text.
func (d *Document) Offset(pos protocol.Position) int {
	return OffsetAt(d.Text(), pos)
}

func applyRange(text string, r *protocol.Range, replacement string) (string, error) {
	if r == nil {
		return replacement, nil
	}
	start := OffsetAt(text, r.Start)
	end := OffsetAt(text, r.End)
	if end < start {
		return "", errors.NewInvalidRequestError("inverted range %v", *r)
	}
	return text[:start] + replacement + text[end:], nil
}

// OffsetAt converts a UTF-16 based LSP position into a byte offset, clamped
// to the text.
func OffsetAt(text string, pos protocol.Position) int {
	lines := strings.Count(text, "\n")
	if int(pos.Line) > lines {
		return len(text)
	}
	idx := pos.IndexIn(text)
	if idx > len(text) {
		return len(text)
	}
	return idx
}

// PositionAt converts a byte offset into a UTF-16 based LSP position.
func PositionAt(text string, offset int) protocol.Position {
	if offset > len(text) {
		offset = len(text)
	}
	if offset < 0 {
		offset = 0
	}
	before := text[:offset]
	line := strings.Count(before, "\n")
	lineStart := strings.LastIndexByte(before, '\n') + 1

	var character int
	for _, r := range before[lineStart:] {
		if r == utf8.RuneError {
			character++
			continue
		}
		character += utf16.RuneLen(r)
	}
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(character)}
}

// RangeAt converts a byte range into an LSP range.
func RangeAt(text string, start, end int) protocol.Range {
	return protocol.Range{Start: PositionAt(text, start), End: PositionAt(text, end)}
}
