package query

import (
	"math"
	"regexp"
	"strings"

	"github.com/tickerlens/tickerlens/internal/finance"
)

// ParseError is an input error raised at the entry boundary. It is never
// surfaced through the result envelope.
type ParseError struct {
	Code    string
	Message string
}

func (e *ParseError) Error() string { return e.Message }

var (
	ErrEmptyQuery        = &ParseError{Code: "EMPTY_QUERY", Message: "query text is empty"}
	ErrMissingTicker     = &ParseError{Code: "MISSING_TICKER", Message: "no ticker symbol identifiable in query"}
	ErrUnsupportedIntent = &ParseError{Code: "UNSUPPORTED_INTENT", Message: "unrecognized intent"}
)

// Options carries explicit overrides that win over anything inferred from
// the query text. Zero values mean "not supplied".
type Options struct {
	Intent   string
	Ticker   string
	Form     string
	Coverage string
	Limit    float64
	Source   string
	Refresh  bool
}

var (
	tickerShape   = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,4}(\.[A-Z]{1,3})?$`)
	dollarTicker  = regexp.MustCompile(`\$([A-Za-z][A-Za-z0-9]{0,4}(?:\.[A-Za-z]{1,3})?)`)
	formPattern   = regexp.MustCompile(`(?i)\b(10-k|10-q|8-k|13f|s-1|20-f|6-k|def 14a)\b`)
	tokenSplitter = regexp.MustCompile(`[\s,;!?()]+`)
)

// stopWords are uppercase tokens that match the ticker shape but are
// ordinary query words, never symbols.
var stopWords = map[string]struct{}{
	"A": {}, "ABOUT": {}, "ALL": {}, "AM": {}, "AN": {}, "AND": {}, "ANY": {},
	"ARE": {}, "AS": {}, "AT": {}, "BE": {}, "BUY": {}, "BY": {}, "CAN": {},
	"DO": {}, "DOES": {}, "FOR": {}, "FROM": {}, "GET": {}, "GIVE": {},
	"GO": {}, "HAS": {}, "HAVE": {}, "HOW": {}, "I": {}, "IF": {}, "IN": {},
	"INTO": {}, "IS": {}, "IT": {}, "LAST": {}, "ME": {}, "MY": {}, "NEWS": {},
	"NO": {}, "NOT": {}, "NOW": {}, "OF": {}, "ON": {}, "OR": {}, "OVER": {},
	"PRICE": {}, "QUOTE": {}, "SEC": {}, "SELL": {}, "SHARE": {}, "SHOW": {},
	"STOCK": {}, "THE": {}, "THIS": {}, "TO": {}, "TODAY": {}, "UP": {},
	"US": {}, "WAS": {}, "WHAT": {}, "WHEN": {}, "WHO": {}, "WHY": {},
	"WILL": {}, "WITH": {}, "YES": {}, "YOU": {}, "YTD": {},
}

// intentKeywords maps keyword classes to intents; classes are checked in
// this order and the first hit wins.
var intentKeywords = []struct {
	intent   finance.Intent
	keywords []string
}{
	{finance.IntentFilings, []string{"10-k", "10-q", "8-k", "filing", "sec filing"}},
	{finance.IntentInsider, []string{"insider", "ownership", "officer", "beneficial", "inside"}},
	{finance.IntentFundamentals, []string{"revenue", "earnings", "fundamentals", "metric", "financial"}},
	{finance.IntentNews, []string{"news", "headline", "press release", "announc"}},
}

// Parse normalizes free text plus overrides into a Query.
func Parse(text string, opts Options) (Query, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" && opts.Ticker == "" {
		return Query{}, ErrEmptyQuery
	}

	q := Query{Coverage: CoverageDefault, Limit: DefaultLimit, Refresh: opts.Refresh}

	ticker := finance.NormalizeSymbol(opts.Ticker)
	if ticker == "" {
		ticker = extractTicker(trimmed)
	}
	if ticker == "" || !tickerShape.MatchString(ticker) {
		return Query{}, ErrMissingTicker
	}
	q.Ticker = ticker

	if opts.Intent != "" {
		intent, err := finance.ParseIntent(opts.Intent)
		if err != nil {
			return Query{}, ErrUnsupportedIntent
		}
		q.Intent = intent
	} else {
		q.Intent = inferIntent(trimmed)
	}

	if opts.Form != "" {
		q.Form = strings.ToUpper(strings.TrimSpace(opts.Form))
	} else if q.Intent == finance.IntentFilings {
		if m := formPattern.FindString(trimmed); m != "" {
			q.Form = strings.ToUpper(m)
		}
	}

	coverage, err := ParseCoverage(opts.Coverage)
	if err != nil {
		return Query{}, err
	}
	q.Coverage = coverage

	if opts.Limit != 0 {
		q.Limit = ClampLimit(opts.Limit)
	}
	q.Source = strings.ToLower(strings.TrimSpace(opts.Source))
	return q, nil
}

// ClampLimit floors a requested limit and clamps it to [MinLimit, MaxLimit].
func ClampLimit(limit float64) int {
	n := int(math.Floor(limit))
	if n < MinLimit {
		return MinLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// extractTicker applies the precedence chain: $TICKER, whole-query symbol,
// first non-stop-word uppercase token of ticker shape.
func extractTicker(text string) string {
	if m := dollarTicker.FindStringSubmatch(text); len(m) == 2 {
		candidate := strings.ToUpper(m[1])
		if tickerShape.MatchString(candidate) {
			return candidate
		}
	}

	tokens := tokenSplitter.Split(text, -1)
	fields := tokens[:0]
	for _, t := range tokens {
		if t != "" {
			fields = append(fields, t)
		}
	}
	if len(fields) == 1 {
		candidate := strings.ToUpper(strings.TrimPrefix(fields[0], "$"))
		if tickerShape.MatchString(candidate) {
			return candidate
		}
		return ""
	}

	for _, tok := range fields {
		if tok != strings.ToUpper(tok) {
			continue
		}
		candidate := strings.ToUpper(tok)
		if _, stop := stopWords[candidate]; stop {
			continue
		}
		if tickerShape.MatchString(candidate) {
			return candidate
		}
	}
	return ""
}

func inferIntent(text string) finance.Intent {
	lowered := strings.ToLower(text)
	for _, class := range intentKeywords {
		for _, kw := range class.keywords {
			if strings.Contains(lowered, kw) {
				return class.intent
			}
		}
	}
	return finance.IntentQuote
}
