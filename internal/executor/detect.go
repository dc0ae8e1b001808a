package executor

import "regexp"

// DefaultPromptLabel is used when an input() call carries no literal prompt.
const DefaultPromptLabel = "Enter value"

// inputCallRe matches an input() call with an optional single string-literal
// argument (plain or f-string, single or double quoted). A non-literal
// argument (variable, expression) fails the capture group and falls back to
// the default label.
//
// Known limitation: nested or escaped quotes inside the literal, and calls
// split across multiple lines, are not guaranteed to match.
var inputCallRe = regexp.MustCompile(`input\s*\(\s*(?:f?["'](.*?)["'])?\s*\)`)

// InputRequest is a detected interactive-input call site paired with its
// human-readable prompt label.
type InputRequest struct {
	Site   string // Exact matched substring, e.g. `input("Name: ")`.
	Prompt string // Extracted literal, or DefaultPromptLabel.
}

// DetectInputs scans code for input() call sites, in source order.
// Pure and idempotent: rescanning identical code yields an identical list.
func DetectInputs(code string) []InputRequest {
	var requests []InputRequest
	for _, m := range inputCallRe.FindAllStringSubmatch(code, -1) {
		prompt := m[1]
		if prompt == "" {
			prompt = DefaultPromptLabel
		}
		requests = append(requests, InputRequest{Site: m[0], Prompt: prompt})
	}
	return requests
}
