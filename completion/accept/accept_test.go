package accept

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		typ      Type
		accepted string
		rest     string
	}{
		{"full takes everything", "foo(bar)\nbaz", Full, "foo(bar)\nbaz", ""},
		{"line includes newline", "line1\nline2", NextLine, "line1\n", "line2"},
		{"line without newline is full", "return x", NextLine, "return x", ""},
		{"line on leading newline", "\n\tx := 1", NextLine, "\n", "\tx := 1"},
		{"word with trailing space", "return err", NextWord, "return ", "err"},
		{"word keeps leading whitespace", "  foo bar", NextWord, "  foo ", "bar"},
		{"word takes trailing newline", "foo\nbar", NextWord, "foo\n", "bar"},
		{"word takes whole whitespace run", "{\n\t\treturn", NextWord, "{\n\t\t", "return"},
		{"word crosses leading newline", "\n    bar()", NextWord, "\n    bar()", ""},
		{"word on single token", "Println", NextWord, "Println", ""},
		{"word on whitespace only", "   ", NextWord, "   ", ""},
		{"word with tabs", "a\t\tb", NextWord, "a\t\t", "b"},
		{"word multibyte", "héllo wörld", NextWord, "héllo ", "wörld"},
		{"empty", "", NextWord, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accepted, rest := Split(tt.text, tt.typ)
			assert.Equal(t, tt.accepted, accepted)
			assert.Equal(t, tt.rest, rest)
			assert.Equal(t, tt.text, accepted+rest)
		})
	}
}

func TestSmart(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		prefer bool
		want   Type
	}{
		{"single word", "Println", true, Full},
		{"single word with trailing space", "Println ", true, Full},
		{"single line default", "fmt.Println(x) // done", false, Full},
		{"single line word preference", "fmt.Println(x) // done", true, NextWord},
		{"multi-line", "if err != nil {\n\treturn err\n}", false, NextLine},
		{"blank", "   ", true, Full},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Smart(tt.text, tt.prefer))
		})
	}
}

func TestProgressive(t *testing.T) {
	var p Progressive
	assert.Equal(t, NextWord, p.Next())
	assert.Equal(t, NextLine, p.Next())
	assert.Equal(t, Full, p.Next())
	assert.Equal(t, Full, p.Next())
	assert.Equal(t, 4, p.Presses())

	p.Reset()
	assert.Equal(t, NextWord, p.Next())
}

func TestParseType(t *testing.T) {
	for in, want := range map[string]Type{
		"full":      Full,
		"next_line": NextLine,
		"WORD":      NextWord,
		"next_word": NextWord,
	} {
		got, err := ParseType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
		if in == "full" || in == "next_line" || in == "next_word" {
			assert.Equal(t, in, got.String())
		}
	}

	_, err := ParseType("paragraph")
	assert.Error(t, err)
}
