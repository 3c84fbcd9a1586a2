package snapshot

import (
	"strings"
)

// CursorMarker marks the caret inside a gathered window.
const CursorMarker = "<CURSOR>"

// AbbreviationMarker separates the kept file header from the cursor window
// in a reduced file context.
const AbbreviationMarker = "// ... (file content abbreviated for context) ..."

const (
	edgeChars        = 100 // prefix and suffix length used for keys and prefix removal
	reducedScanLines = 50
)

// Policy bounds the cursor window.
type Policy struct {
	LinesBefore int
	LinesAfter  int
	MaxChars    int // 0 = unbounded
}

// Gathered is the context extracted around a caret.
type Gathered struct {
	Window      string // lines around the caret with CursorMarker inserted
	Prefix      string // up to 100 bytes before the caret
	Suffix      string // up to 100 bytes after the caret
	CurrentLine string
	LinePrefix  string // current line up to the caret
	Indent      string
	AtLineStart bool
	Line        int
	Column      int // byte column
}

// Gather extracts the window around offset.
func Gather(text string, offset int, p Policy) Gathered {
	offset = clamp(offset, 0, len(text))

	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	lineEnd := len(text)
	if i := strings.IndexByte(text[offset:], '\n'); i >= 0 {
		lineEnd = offset + i
	}
	current := text[lineStart:lineEnd]
	linePrefix := text[lineStart:offset]

	g := Gathered{
		Prefix:      text[max(0, offset-edgeChars):offset],
		Suffix:      text[offset:min(len(text), offset+edgeChars)],
		CurrentLine: current,
		LinePrefix:  linePrefix,
		Indent:      leadingWhitespace(current),
		AtLineStart: strings.TrimSpace(linePrefix) == "",
		Line:        strings.Count(text[:offset], "\n"),
		Column:      offset - lineStart,
	}

	windowStart := lineStart
	for i := 0; i < p.LinesBefore && windowStart > 0; i++ {
		windowStart = strings.LastIndexByte(text[:windowStart-1], '\n') + 1
	}
	windowEnd := lineEnd
	for i := 0; i < p.LinesAfter && windowEnd < len(text); i++ {
		next := strings.IndexByte(text[windowEnd+1:], '\n')
		if next < 0 {
			windowEnd = len(text)
			break
		}
		windowEnd += next + 1
	}

	window := text[windowStart:offset] + CursorMarker + text[offset:windowEnd]
	if !strings.HasSuffix(window, "\n") {
		window += "\n"
	}
	g.Window = TrimAround(window, CursorMarker, p.MaxChars)
	return g
}

// TrimAround cuts text to maxChars, centred on the first occurrence of
// marker when present.
func TrimAround(text, marker string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	at := strings.Index(text, marker)
	if at < 0 {
		return text[:maxChars]
	}
	start := max(0, at-maxChars/2)
	end := min(len(text), start+maxChars)
	if end-start < maxChars {
		start = max(0, end-maxChars)
	}
	return text[start:end]
}

// FileContext returns the whole file when it fits in maxChars. Otherwise it
// keeps the file header (package, imports and comments up to the first
// declaration) followed by AbbreviationMarker and the window.
func FileContext(text string, window string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}

	var b strings.Builder
	lines := strings.Split(text, "\n")
	for i := 0; i < len(lines) && i < reducedScanLines; i++ {
		trimmed := strings.TrimSpace(lines[i])
		if isHeaderLine(trimmed) {
			b.WriteString(lines[i])
			b.WriteByte('\n')
			continue
		}
		if isDeclarationLine(trimmed) {
			b.WriteString(lines[i])
			b.WriteByte('\n')
			break
		}
	}
	b.WriteByte('\n')
	b.WriteString(AbbreviationMarker)
	b.WriteByte('\n')

	remaining := maxChars - b.Len()
	if remaining > 0 && window != "" {
		b.WriteString(TrimAround(window, CursorMarker, remaining))
	}
	return b.String()
}

func isHeaderLine(line string) bool {
	if line == "" {
		return true
	}
	for _, p := range []string{"package ", "import ", "import(", "#include", "using ", "from ", "//", "#!", "/*", "*", ")", "\""} {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

func isDeclarationLine(line string) bool {
	for _, p := range []string{"type ", "func ", "class ", "public class", "interface ", "public interface", "def ", "struct ", "fn ", "pub fn ", "export "} {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// EnclosingBlock returns the byte range of the innermost brace-balanced block
// around offset, extended to whole lines. When the caret is not inside a
// block it returns the surrounding paragraph.
func EnclosingBlock(text string, offset int) (start, end int) {
	offset = clamp(offset, 0, len(text))

	open := -1
	depth := 0
	for i := offset - 1; i >= 0; i-- {
		switch text[i] {
		case '}':
			depth++
		case '{':
			if depth == 0 {
				open = i
			} else {
				depth--
			}
		}
		if open >= 0 {
			break
		}
	}

	if open >= 0 {
		depth = 0
		for i := open + 1; i < len(text); i++ {
			switch text[i] {
			case '{':
				depth++
			case '}':
				if depth == 0 {
					return lineStartOf(text, open), lineEndOf(text, i)
				}
				depth--
			}
		}
	}
	return paragraph(text, offset)
}

func paragraph(text string, offset int) (int, int) {
	start := lineStartOf(text, offset)
	for start > 0 {
		prev := lineStartOf(text, start-1)
		if strings.TrimSpace(text[prev:start]) == "" {
			break
		}
		start = prev
	}
	end := lineEndOf(text, offset)
	for end < len(text) {
		next := lineEndOf(text, end)
		if strings.TrimSpace(text[end:next]) == "" {
			break
		}
		end = next
	}
	return start, end
}

func lineStartOf(text string, offset int) int {
	return strings.LastIndexByte(text[:offset], '\n') + 1
}

// lineEndOf returns the offset just past the newline ending the line that
// holds offset, or len(text).
func lineEndOf(text string, offset int) int {
	if i := strings.IndexByte(text[offset:], '\n'); i >= 0 {
		return offset + i + 1
	}
	return len(text)
}

// HasMinimumContext reports whether an automatic trigger at offset has
// enough to work with: at least minOffset bytes before the caret and a
// current line that is not blank.
func HasMinimumContext(text string, offset, minOffset int) bool {
	if offset < minOffset || offset > len(text) {
		return false
	}
	g := Gather(text, offset, Policy{})
	return strings.TrimSpace(g.CurrentLine) != ""
}

func leadingWhitespace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
