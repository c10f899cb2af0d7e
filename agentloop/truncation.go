package agentloop

import (
	"fmt"
)

// TruncationMode specifies which part of an oversized result is kept.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// TruncateText shortens s to roughly maxChars runes. head_tail keeps both
// ends and marks the gap; tail keeps the end. maxChars <= 0 disables it.
func TruncateText(s string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	removed := len(r) - maxChars

	switch mode {
	case TruncateTail:
		return fmt.Sprintf("[result truncated: first %d characters removed]\n", removed) + string(r[removed:])
	default:
		head := maxChars / 2
		tail := maxChars - head
		return string(r[:head]) +
			fmt.Sprintf("\n\n[result truncated: %d characters removed from the middle; call the tool with narrower arguments to see them]\n\n", removed) +
			string(r[len(r)-tail:])
	}
}

// truncateRecord returns rec with a string Result shortened for history.
// The record stored in events keeps the full value.
func truncateRecord(rec ExecutionRecord, maxChars int, mode TruncationMode) ExecutionRecord {
	if s, ok := rec.Result.(string); ok {
		rec.Result = TruncateText(s, maxChars, mode)
	}
	return rec
}
