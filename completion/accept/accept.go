// Package accept decides how much of a completion is committed per accept.
package accept

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/teranos/ghostwrite/errors"
)

// Type is the granularity of one accept.
type Type int

const (
	Full Type = iota
	NextLine
	NextWord
)

func (t Type) String() string {
	switch t {
	case Full:
		return "full"
	case NextLine:
		return "next_line"
	case NextWord:
		return "next_word"
	default:
		return "unknown"
	}
}

// ParseType converts a protocol string into a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "full_completion", "all":
		return Full, nil
	case "next_line", "line":
		return NextLine, nil
	case "next_word", "word":
		return NextWord, nil
	default:
		return Full, errors.NewInvalidRequestError("unknown accept type %q (valid: full, next_line, next_word)", s)
	}
}

// Split returns the part of text committed by an accept of type t and the
// tail left over. accepted+rest always equals text.
func Split(text string, t Type) (accepted, rest string) {
	var n int
	switch t {
	case NextLine:
		n = nextLine(text)
	case NextWord:
		n = nextWord(text)
	default:
		n = len(text)
	}
	return text[:n], text[n:]
}

// nextLine returns the length up to and including the first newline.
func nextLine(text string) int {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return i + 1
	}
	return len(text)
}

// nextWord returns the length of leading whitespace, one run of non-space,
// and all whitespace that follows it, newlines included.
func nextWord(text string) int {
	i := skip(text, 0, unicode.IsSpace)
	if i == len(text) {
		return len(text)
	}
	i = skip(text, i, func(r rune) bool { return !unicode.IsSpace(r) })
	return skip(text, i, unicode.IsSpace)
}

func skip(text string, i int, match func(rune) bool) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !match(r) {
			break
		}
		i += size
	}
	return i
}

// Smart picks a type from the shape of text. A single word is taken whole,
// a single line word by word only when preferred, and multi-line text one
// line at a time.
func Smart(text string, preferWordByWord bool) Type {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Full
	}
	if !strings.Contains(text, "\n") {
		if strings.IndexFunc(trimmed, unicode.IsSpace) < 0 {
			return Full
		}
		if preferWordByWord {
			return NextWord
		}
		return Full
	}
	return NextLine
}

// Progressive maps repeated accept presses on the same displayed item to
// increasingly larger accepts: word, then line, then everything.
type Progressive struct {
	presses int
}

// Next records a press and returns the type it maps to.
func (p *Progressive) Next() Type {
	p.presses++
	switch p.presses {
	case 1:
		return NextWord
	case 2:
		return NextLine
	default:
		return Full
	}
}

// Presses returns the number of presses since the last Reset.
func (p *Progressive) Presses() int { return p.presses }

// Reset starts counting again. Call it when a new item is displayed.
func (p *Progressive) Reset() { p.presses = 0 }
