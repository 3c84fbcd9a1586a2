package prompt

import (
	"regexp"
	"strings"
)

// MaxCompletionChars caps a cleaned completion.
const MaxCompletionChars = 1000

var (
	fenceOpen    = regexp.MustCompile("```[a-zA-Z0-9_+-]*[ \t]*\n?")
	leadChatter  = regexp.MustCompile(`^(?:Here's|Here is|This |The |You can|To complete|Completion:)[^\n]*\n`)
	leadCommand  = regexp.MustCompile(`^(?:Complete|Add|Insert|Replace)[^:\n]*:[ \t]*\n?`)
	codeKeywords = regexp.MustCompile(`\b(?:public|private|protected|static|final|class|interface|if|else|for|while|return|new|import|package|func|def|var|let|const|type|struct|fn)\b`)
	assignOrCall = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*\s*[=(]`)
	closerOnly   = regexp.MustCompile(`^\s*[})\];]+\s*$`)
	assistantism = []string{"I can help", "Here's how", "Let me ", "You should"}
)

// Clean strips markdown fences, leading chatter and explanatory lines from a
// raw provider response and caps its length.
func Clean(raw string) string {
	cleaned := fenceOpen.ReplaceAllString(raw, "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = leadChatter.ReplaceAllString(cleaned, "")
	cleaned = leadCommand.ReplaceAllString(cleaned, "")

	var kept []string
	foundCode := false
	for _, line := range strings.Split(cleaned, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" && !foundCode {
			continue
		}
		if trimmed != "" && isExplanatory(trimmed) {
			continue
		}
		if looksLikeCode(trimmed) {
			foundCode = true
		}
		kept = append(kept, line)
	}

	cleaned = strings.TrimRight(strings.Join(kept, "\n"), " \t\n")
	for strings.HasSuffix(cleaned, "..") {
		cleaned = strings.TrimRight(strings.TrimSuffix(strings.TrimSuffix(cleaned, "..."), ".."), " \t\n")
	}
	return SmartTruncate(cleaned, MaxCompletionChars)
}

// SmartTruncate cuts text to at most maxLen bytes, preferring a statement or
// line boundary in the last 200 bytes, then the last newline past the
// midpoint.
func SmartTruncate(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	for i := maxLen - 1; i > maxLen-200 && i > 0; i-- {
		switch text[i] {
		case '\n', ';', '}', ')':
			return text[:i+1]
		}
	}
	if nl := strings.LastIndexByte(text[:maxLen], '\n'); nl > maxLen/2 {
		return text[:nl]
	}
	return strings.ToValidUTF8(text[:maxLen], "")
}

// Valid reports whether a cleaned completion is worth showing.
func Valid(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if isExplanatory(trimmed) && !looksLikeCode(trimmed) {
		return false
	}
	if len(trimmed) < 2 && !strings.ContainsAny(trimmed, ";})") {
		return false
	}
	for _, phrase := range assistantism {
		if strings.Contains(trimmed, phrase) {
			return false
		}
	}
	return true
}

// SplitRationale separates the code from a trailing RATIONALE: line.
func SplitRationale(text string) (code, rationale string) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < len(RationaleMarker) || !strings.EqualFold(trimmed[:len(RationaleMarker)], RationaleMarker) {
			continue
		}
		rest := append([]string{trimmed[len(RationaleMarker):]}, lines[i+1:]...)
		rationale = strings.Join(strings.Fields(strings.Join(rest, " ")), " ")
		return strings.TrimRight(strings.Join(lines[:i], "\n"), " \t\n"), rationale
	}
	return text, ""
}

func isExplanatory(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range []string{"this ", "the ", "here ", "note:", "explanation:"} {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	if strings.Contains(lower, "will complete") || strings.Contains(lower, "adds the") {
		return true
	}
	return len(line) > 60 && !looksLikeCode(line)
}

func looksLikeCode(line string) bool {
	t := strings.TrimSpace(line)
	switch {
	case strings.Contains(t, "(") && strings.Contains(t, ")"):
		return true
	case strings.ContainsAny(t, "{};"):
		return true
	case strings.HasPrefix(t, "//"), strings.HasPrefix(t, "/*"), strings.HasPrefix(t, "#"):
		return true
	case closerOnly.MatchString(t):
		return true
	}
	return codeKeywords.MatchString(t) || assignOrCall.MatchString(t)
}
