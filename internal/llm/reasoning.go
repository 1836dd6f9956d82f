package llm

import "strings"

// reasoningTags are the wrappers reasoning models put around their scratch work.
var reasoningTags = []string{"think", "thinking", "reasoning"}

// StripReasoning removes <think>...</think> style blocks from model output.
// An unclosed block drops everything after its opening tag.
func StripReasoning(s string) string {
	for _, tag := range reasoningTags {
		s = stripTag(s, "<"+tag+">", "</"+tag+">")
	}
	return strings.TrimSpace(s)
}

func stripTag(s, open, close string) string {
	for {
		start := strings.Index(s, open)
		if start == -1 {
			return s
		}
		end := strings.Index(s[start:], close)
		if end == -1 {
			return s[:start]
		}
		s = s[:start] + s[start+end+len(close):]
	}
}
