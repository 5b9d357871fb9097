package backtest

import "fmt"

// ErrorCode is the stable failure taxonomy of the event-study engine.
// Workflows fail loudly with one of these; partial studies are never
// emitted.
type ErrorCode string

const (
	CodeInvalidEventDate          ErrorCode = "INVALID_EVENT_DATE"
	CodeMissingRequiredAnchorDate ErrorCode = "MISSING_REQUIRED_ANCHOR_DATE"
	CodeInvalidQuiverRow          ErrorCode = "INVALID_QUIVER_ROW"
	CodeAnchorOutOfRange          ErrorCode = "ANCHOR_OUT_OF_RANGE"
	CodeWindowOutOfRange          ErrorCode = "WINDOW_OUT_OF_RANGE"
	CodeNoEvents                  ErrorCode = "NO_EVENTS"
	CodeMissingPriceData          ErrorCode = "MISSING_PRICE_DATA"
	CodeMissingBenchmark          ErrorCode = "MISSING_BENCHMARK"
)

// Error carries a stable code plus human-readable details.
type Error struct {
	Code    ErrorCode
	Details string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Details)
}

func errf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Details: fmt.Sprintf(format, args...)}
}
