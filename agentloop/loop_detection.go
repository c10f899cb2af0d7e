package agentloop

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// callSignature identifies a tool call by name and argument hash.
// encoding/json sorts map keys, so equal arguments hash equally.
func callSignature(name string, args map[string]any) string {
	raw, _ := json.Marshal(args)
	h := sha256.Sum256(raw)
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// DetectRepetition reports whether the last window signatures repeat a
// pattern of length 1, 2, or 3.
func DetectRepetition(sigs []string, window int) bool {
	if window <= 1 || len(sigs) < window {
		return false
	}
	recent := sigs[len(sigs)-window:]

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if window%patternLen != 0 || window == patternLen {
			continue
		}
		pattern := recent[:patternLen]
		allMatch := true
		for i := patternLen; i < window && allMatch; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if recent[i+j] != pattern[j] {
					allMatch = false
					break
				}
			}
		}
		if allMatch {
			return true
		}
	}
	return false
}

const repetitionNote = "Your last %d tool calls repeat the same pattern without progress. " +
	"Try a different tool or different arguments, or call %s if the task is complete."
