package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/Veraticus/firetrack/internal/common"
)

// ErrorKind classifies AI categorisation failures.
type ErrorKind string

// Error kinds.
const (
	KindAPI             ErrorKind = "API_ERROR"
	KindParse           ErrorKind = "PARSE_ERROR"
	KindInvalidResponse ErrorKind = "INVALID_RESPONSE"
	KindRateLimited     ErrorKind = "RATE_LIMITED"
	KindTimeout         ErrorKind = "TIMEOUT"
)

// Error is the typed failure returned by the classifier.
type Error struct {
	Err     error
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of an AI error, or "" when err is not one.
func KindOf(err error) ErrorKind {
	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr.Kind
	}
	return ""
}

// classifyProviderError maps a provider failure onto an error kind.
func classifyProviderError(err error) *Error {
	var aiErr *Error
	switch {
	case errors.As(err, &aiErr):
		return aiErr
	case errors.Is(err, context.DeadlineExceeded):
		return newError(KindTimeout, "model call timed out", err)
	case errors.Is(err, common.ErrRateLimit):
		return newError(KindRateLimited, "model provider rate limited the request", err)
	default:
		return newError(KindAPI, "model call failed", err)
	}
}
