package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoProviders reports that every provider in the router failed.
var ErrNoProviders = errors.New("llm: no providers available")

// ErrorKind classifies provider failures for retry and fallback
// decisions.
type ErrorKind string

const (
	KindHTTP        ErrorKind = "http"
	KindParse       ErrorKind = "parse"
	KindRateLimited ErrorKind = "rate_limited"
	KindUnsupported ErrorKind = "unsupported"
	KindTimeout     ErrorKind = "timeout"
)

// ProviderError wraps a backend failure with its classification.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Classify derives an ErrorKind from err's message when the backend
// did not produce a typed error.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindHTTP
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"),
		strings.Contains(msg, "too many requests"):
		return KindRateLimited
	case strings.Contains(msg, "unmarshal"), strings.Contains(msg, "decode"),
		strings.Contains(msg, "parse"):
		return KindParse
	default:
		return KindHTTP
	}
}

func wrapErr(provider string, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Kind: Classify(err), Err: err}
}
