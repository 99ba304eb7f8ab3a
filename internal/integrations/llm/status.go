package llm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyResponse   = errors.New("llm response has no content")
	ErrUnknownProvider = errors.New("unknown llm provider")
)

// StatusError reports a non-success HTTP status from the provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.StatusCode, truncateBody(e.Body, 200))
}

// RateLimited reports whether the provider throttled the request.
func (e *StatusError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Unauthorized reports whether the credential was rejected.
func (e *StatusError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func truncateBody(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
