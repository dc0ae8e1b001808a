package executor

import (
	"errors"
	"strings"
)

// ErrCancelled is returned when the user declines an input prompt.
var ErrCancelled = errors.New("cancelled by user")

// AskFunc obtains a value for one detected input prompt. It blocks until the
// user answers. ok=false signals cancellation.
type AskFunc func(prompt string) (value string, ok bool)

// ResolveInputs replaces each detected input() call site with a quoted string
// literal containing the callback's answer, turning an interactive program
// into a non-interactive one.
//
// All values are collected before any substitution, so a cancellation aborts
// with the code untouched. Each request consumes the first remaining
// occurrence of its site text — duplicate call sites map 1:1 to successive
// occurrences.
func ResolveInputs(code string, requests []InputRequest, ask AskFunc) (string, error) {
	values := make([]string, 0, len(requests))
	for _, req := range requests {
		value, ok := ask(req.Prompt)
		if !ok {
			return "", ErrCancelled
		}
		values = append(values, value)
	}

	resolved := code
	for i, req := range requests {
		resolved = strings.Replace(resolved, req.Site, quotePython(values[i]), 1)
	}
	return resolved, nil
}

// quotePython renders value as a double-quoted Python string literal,
// escaping backslashes and double quotes.
func quotePython(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}
