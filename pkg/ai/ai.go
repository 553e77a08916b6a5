package ai

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrMalformedResponse is returned when a completion fails structural validation.
var ErrMalformedResponse = errors.New("malformed ai response")

// AiInterface is a single-prompt, single-completion text generator.
type AiInterface interface {
	Name() string
	HandleText(ctx context.Context, prompt string) (string, error)
}

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \\t]*\\n?(.*?)\\n?[ \\t]*```")

// StripFences returns the body of the first markdown code fence in s, so
// chatter around the fence is dropped. Text without a closed fence is
// returned trimmed.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}
