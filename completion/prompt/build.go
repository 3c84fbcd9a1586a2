// Package prompt turns gathered context into provider prompts and turns raw
// provider output back into insertable text.
package prompt

import (
	"strings"

	"github.com/teranos/ghostwrite/completion/snapshot"
	"github.com/teranos/ghostwrite/completion/strategy"
)

// RationaleMarker starts the rationale line in Reasoned responses.
const RationaleMarker = "RATIONALE:"

const (
	fileContextLimit = 800
	truncatedMarker  = "// ... (truncated for brevity) ..."
)

const systemCode = "You are a code completion engine inside an editor. " +
	"You receive code with a <CURSOR> marker and reply with exactly the text to insert at the marker. " +
	"Never repeat code that is already before the cursor. Never use markdown. Never explain."

const systemComment = "You are completing a code comment inside an editor. " +
	"Reply with the rest of the comment only, in the same style, without repeating what is already written."

const systemBlock = "You are a code rewriting engine inside an editor. " +
	"You receive one block of code with a <CURSOR> marker and reply with an improved version of the whole block. " +
	"Keep the behaviour and the indentation. Never use markdown. Never explain."

// Prompt is a provider-ready request.
type Prompt struct {
	System string
	User   string
	Stop   []string
}

// Input is everything Build needs.
type Input struct {
	Policy      strategy.Policy
	Gathered    snapshot.Gathered
	FileContext string
	Language    string
}

// Build renders the prompt for one request.
func Build(in Input) Prompt {
	lang := in.Language
	if lang == "" {
		lang = "text"
	}
	comment := commentKind(in.Gathered.LinePrefix, lang)

	var b strings.Builder
	b.WriteString("Language: ")
	b.WriteString(lang)
	b.WriteString("\n\n")

	switch {
	case in.Policy.Strategy == strategy.BlockRewrite:
		b.WriteString("Preference: Rewrite the whole block shown below.\n")
	case in.Policy.Display == strategy.DisplaySingleLine:
		b.WriteString("Preference: Complete only the current line or statement.\n")
	default:
		b.WriteString("Preference: Complete the logical block of code (method, if-statement, etc.).\n")
	}
	switch comment {
	case lineComment:
		b.WriteString("Focus: Continue the comment on the current line. Plain prose, no code.\n")
	case docComment:
		b.WriteString("Focus: Continue the documentation comment, describing parameters and results.\n")
	default:
		b.WriteString("Focus: Provide code completion only, no comments or explanations.\n")
	}
	b.WriteString("\n")

	fence := "```" + strings.ToLower(lang) + "\n"
	if in.FileContext != "" && in.FileContext != in.Gathered.Window {
		b.WriteString("File Context:\n")
		b.WriteString(fence)
		b.WriteString(truncate(in.FileContext, fileContextLimit))
		b.WriteString("\n```\n\n")
	}

	if in.Policy.Strategy == strategy.BlockRewrite {
		b.WriteString("Rewrite this block:\n")
	} else {
		b.WriteString("Complete the code at the <CURSOR> position:\n")
	}
	b.WriteString(fence)
	b.WriteString(in.Gathered.Window)
	b.WriteString("\n```\n\n")

	p := Prompt{System: systemCode}
	switch {
	case in.Policy.Strategy == strategy.BlockRewrite:
		p.System = systemBlock
		b.WriteString("Rewritten block (provide the complete replacement for the block, without the <CURSOR> marker, no markdown, no explanations):")
	case comment != noComment:
		p.System = systemComment
		b.WriteString("Completion (provide only the comment text to insert at <CURSOR>, no markdown):")
	case in.Policy.Rationale:
		b.WriteString("Completion (provide only the code to insert at <CURSOR>, no markdown). ")
		b.WriteString("Then on a new line write " + RationaleMarker + " followed by one sentence explaining the suggestion:")
	default:
		b.WriteString("Completion (provide only the code to insert at <CURSOR>, no markdown, no explanations):")
	}

	if in.Policy.Display == strategy.DisplaySingleLine && comment == noComment {
		p.Stop = []string{"\n\n"}
	}
	p.User = b.String()
	return p
}

type commentStyle int

const (
	noComment commentStyle = iota
	lineComment
	docComment
)

func commentKind(linePrefix, lang string) commentStyle {
	trimmed := strings.TrimSpace(linePrefix)
	switch {
	case strings.HasPrefix(trimmed, "/**"), strings.HasPrefix(trimmed, "* "), trimmed == "*",
		strings.HasPrefix(trimmed, `"""`), strings.HasPrefix(trimmed, "///"):
		return docComment
	case strings.HasPrefix(trimmed, snapshot.LineComment(lang)):
		return lineComment
	default:
		return noComment
	}
}

// truncate cuts text at a line boundary so it fits in limit bytes.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	var b strings.Builder
	budget := limit - len(truncatedMarker) - 1
	for _, line := range strings.Split(text, "\n") {
		if b.Len()+len(line)+1 > budget {
			break
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(truncatedMarker)
	return b.String()
}
