// Package llm defines the completion-function abstraction the chat service
// calls. The service treats the model as an opaque text function: it sends
// a composed system prompt plus the user prompt and accepts the returned
// text as-is.
package llm

import (
	"context"
	"errors"
	"strings"
)

// ErrQuotaExceeded marks a completion failure caused by API quota
// exhaustion. The key pool rotates on it; callers can match with errors.Is.
var ErrQuotaExceeded = errors.New("llm: quota exceeded")

// Client is the completion function.
type Client interface {
	// Complete generates a reply for the user prompt under the given
	// system prompt. The returned text is not validated or reformatted.
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// isQuotaError recognizes provider quota failures from error text when the
// provider does not surface a typed error.
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "429")
}
