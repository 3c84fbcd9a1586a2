package prompt

import (
	"strings"
	"unicode"
)

var (
	codeConstructs = []string{"+=", "-=", "*=", "/=", "{", "}", "(", ")", "[", "]", ";", ",", "."}
	codeKeywordSet = []string{"if", "for", "while", "switch", "return", "break", "continue"}
)

// RemovePrefix drops the part of completion that repeats what is already
// typed before the caret on the current line.
func RemovePrefix(completion, typed string) string {
	if completion == "" || typed == "" {
		return completion
	}

	if isLineComment(typed) && isLineComment(completion) {
		if rest, ok := strings.CutPrefix(completion, typed); ok {
			return rest
		}
		if rest, ok := strings.CutPrefix(completion, strings.TrimLeft(typed, " \t")); ok {
			return rest
		}
		return completion
	}

	if rest, ok := strings.CutPrefix(completion, typed); ok && rest != "" {
		return rest
	}

	if n := longestOverlap(typed, completion); n > 0 {
		if rest := completion[n:]; validOverlap(completion[:n], rest) {
			return rest
		}
	}

	if tok := constructOverlap(typed, completion); tok != "" {
		if rest := completion[len(tok):]; strings.TrimSpace(rest) != "" {
			return rest
		}
	}

	if n := commonRun(typed, completion); n > 0 && validRemoval(completion[:n], completion) {
		return completion[n:]
	}
	return completion
}

func isLineComment(s string) bool {
	t := strings.TrimSpace(s)
	return strings.HasPrefix(t, "//") || strings.HasPrefix(t, "#")
}

// longestOverlap returns the length of the longest suffix of typed that is
// also a prefix of completion.
func longestOverlap(typed, completion string) int {
	for n := min(len(typed), len(completion)); n > 0; n-- {
		if typed[len(typed)-n:] == completion[:n] {
			return n
		}
	}
	return 0
}

func validOverlap(overlap, rest string) bool {
	if strings.TrimSpace(rest) == "" {
		return false
	}
	if len(overlap) >= 2 {
		return true
	}
	r := rune(overlap[0])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func constructOverlap(typed, completion string) string {
	for _, c := range codeConstructs {
		if strings.HasSuffix(typed, c) && strings.HasPrefix(completion, c) {
			return c
		}
	}
	for _, kw := range codeKeywordSet {
		if endsWithWord(typed, kw) && startsWithWord(completion, kw) {
			return kw
		}
	}
	return ""
}

func endsWithWord(s, word string) bool {
	if !strings.HasSuffix(s, word) {
		return false
	}
	i := len(s) - len(word) - 1
	return i < 0 || !isWordByte(s[i])
}

func startsWithWord(s, word string) bool {
	if !strings.HasPrefix(s, word) {
		return false
	}
	return len(s) == len(word) || !isWordByte(s[len(word)])
}

// commonRun grows a suffix/prefix match one byte at a time and stops at the
// first mismatch.
func commonRun(typed, completion string) int {
	n := 0
	for i := 1; i <= min(len(typed), len(completion)); i++ {
		if typed[len(typed)-i:] != completion[:i] {
			break
		}
		n = i
	}
	return n
}

func validRemoval(matched, completion string) bool {
	rest := completion[len(matched):]
	if strings.TrimSpace(rest) == "" || strings.TrimSpace(matched) == "" {
		return false
	}
	if isWordByte(rest[0]) && isWordByte(matched[len(matched)-1]) {
		return atCodeBoundary(matched)
	}
	return true
}

func atCodeBoundary(s string) bool {
	if strings.ContainsAny(s[len(s)-1:], "({[;,. \t") {
		return true
	}
	for _, kw := range []string{"if", "for", "while", "switch", "try", "catch", "finally", "class", "interface", "public", "private", "protected"} {
		if endsWithWord(s, kw) {
			return true
		}
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= 0x80
}
