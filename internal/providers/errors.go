package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tickerlens/tickerlens/internal/httpx"
)

// Stable error codes. Providers may additionally carry a bare HTTP status
// string ("404") when no better classification exists.
const (
	CodeTimeout       = "TIMEOUT"
	CodeNetwork       = "NETWORK"
	CodeRateLimit     = "RATE_LIMIT"
	CodeTierDenied    = "TIER_DENIED"
	CodeProviderError = "PROVIDER_ERROR"
	CodeUnsupported   = "UNSUPPORTED"
	CodeMissingAuth   = "MISSING_AUTH"
)

// Error is the typed failure a provider surfaces to the federation engine.
type Error struct {
	Source     string
	Message    string
	Code       string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

// NewError builds a typed provider error.
func NewError(source, code, message string) *Error {
	return &Error{Source: source, Code: code, Message: message}
}

var (
	rateLimitPattern  = regexp.MustCompile(`(?i)rate.?limit`)
	tierDeniedPattern = regexp.MustCompile(`(?i)tier|upgrade|plan|subscri|premium|exclusive`)
)

// TierDenied reports whether a 402/403 body carries tier or upgrade
// markers, which distinguishes plan gating from plain authorization errors.
func TierDenied(status int, body string) bool {
	if status != 402 && status != 403 {
		return false
	}
	return tierDeniedPattern.MatchString(body)
}

// Classify maps an arbitrary fetch failure onto the taxonomy. Already-typed
// errors pass through with the source filled in.
func Classify(source string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		if typed.Source == "" {
			typed.Source = source
		}
		return typed
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewError(source, CodeTimeout, "request timed out or was cancelled")
	}

	var status *httpx.StatusError
	if errors.As(err, &status) {
		return classifyStatus(source, status)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewError(source, CodeTimeout, err.Error())
		}
		return NewError(source, CodeNetwork, err.Error())
	}

	msg := err.Error()
	if rateLimitPattern.MatchString(msg) || strings.Contains(msg, "429") {
		return NewError(source, CodeRateLimit, msg)
	}
	return NewError(source, CodeProviderError, msg)
}

func classifyStatus(source string, status *httpx.StatusError) *Error {
	switch {
	case status.StatusCode == 429:
		e := NewError(source, CodeRateLimit, fmt.Sprintf("rate limited (http 429): %s", status.Body))
		e.RetryAfter = status.RetryAfter
		return e
	case TierDenied(status.StatusCode, status.Body):
		return NewError(source, CodeTierDenied,
			fmt.Sprintf("endpoint requires a higher plan (http %d): %s", status.StatusCode, status.Body))
	case status.StatusCode == 401 || status.StatusCode == 403:
		return NewError(source, CodeMissingAuth,
			fmt.Sprintf("authentication rejected (http %d)", status.StatusCode))
	default:
		e := NewError(source, strconv.Itoa(status.StatusCode), status.Error())
		e.RetryAfter = status.RetryAfter
		return e
	}
}
