package finance

import (
	"fmt"
	"strings"
)

// Intent selects the canonical payload shape of a finance answer.
type Intent string

const (
	IntentQuote        Intent = "quote"
	IntentFundamentals Intent = "fundamentals"
	IntentFilings      Intent = "filings"
	IntentInsider      Intent = "insider"
	IntentNews         Intent = "news"
)

// Intents lists every supported intent in canonical order.
func Intents() []Intent {
	return []Intent{IntentQuote, IntentFundamentals, IntentFilings, IntentInsider, IntentNews}
}

// ParseIntent maps a user-supplied intent name onto the canonical set.
func ParseIntent(s string) (Intent, error) {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentQuote:
		return IntentQuote, nil
	case IntentFundamentals:
		return IntentFundamentals, nil
	case IntentFilings:
		return IntentFilings, nil
	case IntentInsider:
		return IntentInsider, nil
	case IntentNews:
		return IntentNews, nil
	}
	return "", fmt.Errorf("unsupported intent %q", s)
}

// Valid reports whether the intent is one of the canonical five.
func (i Intent) Valid() bool {
	switch i {
	case IntentQuote, IntentFundamentals, IntentFilings, IntentInsider, IntentNews:
		return true
	}
	return false
}

func (i Intent) String() string { return string(i) }
