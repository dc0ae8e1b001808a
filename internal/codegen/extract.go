package codegen

import (
	"regexp"
	"strings"
)

var (
	thinkClosedRe = regexp.MustCompile(`(?s)<think>.*?</think>\s*`)
	thinkOpenRe   = regexp.MustCompile(`(?s)<think>.*`)

	fencedPythonRe = regexp.MustCompile("(?s)```python\\s*\\n(.*?)```")
	fencedAnyRe    = regexp.MustCompile("(?s)```\\s*\\n(.*?)```")

	leadingFenceRe  = regexp.MustCompile("^```python\\s*\\n?")
	trailingFenceRe = regexp.MustCompile("\\n?```\\s*$")
)

// codeMarkers are substrings whose presence makes an unfenced response
// plausible as raw Python.
var codeMarkers = []string{"def ", "print(", "import ", "for ", "class ", "="}

// StripThink removes reasoning-model <think> blocks from a response,
// including an unterminated trailing block.
func StripThink(text string) string {
	text = thinkClosedRe.ReplaceAllString(text, "")
	text = thinkOpenRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// ExtractCode pulls executable Python out of a raw model response.
// Preference order: a ```python fence, any fence, then the bare response if
// it looks like code. Returns ok=false when no code can be extracted —
// callers treat that as a conversational (non-code) reply.
func ExtractCode(text string) (string, bool) {
	text = StripThink(text)

	if m := fencedPythonRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := fencedAnyRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}

	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return "", false
	}
	for _, marker := range codeMarkers {
		if strings.Contains(cleaned, marker) {
			cleaned = leadingFenceRe.ReplaceAllString(cleaned, "")
			cleaned = trailingFenceRe.ReplaceAllString(cleaned, "")
			return strings.TrimSpace(cleaned), true
		}
	}
	return "", false
}
