// Package federation orders providers, dispatches fetches, merges payloads
// for comprehensive coverage and short-circuits on completeness.
package federation

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tickerlens/tickerlens/internal/finance"
)

// placeholderString matches values that look present but carry no
// information; they lose merges the same way empty strings do.
var placeholderString = regexp.MustCompile(`(?i)^(unknown|n/?a|-|none)$`)

func wellFormedString(s string) bool {
	t := strings.TrimSpace(s)
	return t != "" && !placeholderString.MatchString(t)
}

// pickString keeps the accumulator's value when well-formed, otherwise
// accepts the candidate when the candidate is.
func pickString(acc, next string) string {
	if wellFormedString(acc) {
		return acc
	}
	if wellFormedString(next) {
		return next
	}
	return acc
}

// pickNumber keeps the first finite value, accumulator first.
func pickNumber(acc, next *float64) *float64 {
	if finance.IsFinite(acc) {
		return acc
	}
	if finance.IsFinite(next) {
		return next
	}
	return acc
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	return limit
}

// Merge folds the next provider payload into the accumulator under the
// intent's policy. A nil accumulator starts from the empty skeleton so the
// same pipeline (dedup, sort, truncate) applies to single-provider results.
func Merge(intent finance.Intent, acc, next finance.Payload, limit int) finance.Payload {
	if acc == nil {
		acc = finance.EmptyPayload(intent, symbolOf(next))
	}
	if next == nil {
		return acc
	}
	switch intent {
	case finance.IntentQuote:
		mergeQuote(acc.(*finance.Quote), next.(*finance.Quote))
	case finance.IntentFundamentals:
		mergeFundamentals(acc.(*finance.Fundamentals), next.(*finance.Fundamentals))
	case finance.IntentFilings:
		mergeFilings(acc.(*finance.Filings), next.(*finance.Filings), limit)
	case finance.IntentInsider:
		mergeInsider(acc.(*finance.Insider), next.(*finance.Insider), limit)
	case finance.IntentNews:
		mergeNews(acc.(*finance.News), next.(*finance.News), limit)
	}
	return acc
}

func symbolOf(p finance.Payload) string {
	switch v := p.(type) {
	case *finance.Quote:
		return v.Symbol
	case *finance.Fundamentals:
		return v.Symbol
	case *finance.Filings:
		return v.Symbol
	case *finance.Insider:
		return v.Symbol
	case *finance.News:
		return v.Symbol
	}
	return ""
}

func mergeQuote(acc, next *finance.Quote) {
	if acc.Symbol == "" {
		acc.Symbol = next.Symbol
	}
	acc.Price = pickNumber(acc.Price, next.Price)
	acc.PreviousClose = pickNumber(acc.PreviousClose, next.PreviousClose)
	acc.Change = pickNumber(acc.Change, next.Change)
	acc.ChangePercent = pickNumber(acc.ChangePercent, next.ChangePercent)
	acc.MarketCap = pickNumber(acc.MarketCap, next.MarketCap)
	acc.High52W = pickNumber(acc.High52W, next.High52W)
	acc.Low52W = pickNumber(acc.Low52W, next.Low52W)
	acc.YTDReturnPercent = pickNumber(acc.YTDReturnPercent, next.YTDReturnPercent)

	if acc.Currency == "" || acc.Currency == "USD" {
		if wellFormedString(next.Currency) {
			acc.Currency = next.Currency
		} else if acc.Currency == "" {
			acc.Currency = "USD"
		}
	}
}

// mergeMetric accepts the candidate triple atomically when the accumulator
// has no finite value yet: value, period and derivation travel together.
func mergeMetric(acc *finance.Metric, next finance.Metric) {
	if finance.IsFinite(acc.Value) || !finance.IsFinite(next.Value) {
		return
	}
	*acc = next
}

func mergeFundamentals(acc, next *finance.Fundamentals) {
	if acc.Symbol == "" {
		acc.Symbol = next.Symbol
	}
	mergeMetric(&acc.Metrics.Revenue, next.Metrics.Revenue)
	mergeMetric(&acc.Metrics.NetIncome, next.Metrics.NetIncome)
	mergeMetric(&acc.Metrics.GrossMarginPct, next.Metrics.GrossMarginPct)
	mergeMetric(&acc.Metrics.DebtToEquity, next.Metrics.DebtToEquity)
	mergeMetric(&acc.Metrics.ROEPct, next.Metrics.ROEPct)
	mergeMetric(&acc.Metrics.OperatingMarginPct, next.Metrics.OperatingMarginPct)
	mergeMetric(&acc.Metrics.FreeCashFlow, next.Metrics.FreeCashFlow)

	acc.FiscalPeriodEnd = pickString(acc.FiscalPeriodEnd, next.FiscalPeriodEnd)
	acc.MarketCap = pickNumber(acc.MarketCap, next.MarketCap)
	acc.Sector = pickString(acc.Sector, next.Sector)
	acc.Headquarters = pickString(acc.Headquarters, next.Headquarters)
	acc.Website = pickString(acc.Website, next.Website)
	acc.IconURL = pickString(acc.IconURL, next.IconURL)

	acc.AnalystRatings.StrongBuy = pickNumber(acc.AnalystRatings.StrongBuy, next.AnalystRatings.StrongBuy)
	acc.AnalystRatings.Buy = pickNumber(acc.AnalystRatings.Buy, next.AnalystRatings.Buy)
	acc.AnalystRatings.Hold = pickNumber(acc.AnalystRatings.Hold, next.AnalystRatings.Hold)
	acc.AnalystRatings.Sell = pickNumber(acc.AnalystRatings.Sell, next.AnalystRatings.Sell)
	acc.AnalystRatings.StrongSell = pickNumber(acc.AnalystRatings.StrongSell, next.AnalystRatings.StrongSell)

	acc.RecoarsenPeriod()
}

func filingKey(f finance.Filing) string {
	return strings.Join([]string{f.AccessionNumber, f.URL, f.Form, f.FilingDate}, "|")
}

func mergeFilings(acc, next *finance.Filings, limit int) {
	if acc.Symbol == "" {
		acc.Symbol = next.Symbol
	}
	merged := append(acc.Filings, next.Filings...)
	seen := make(map[string]struct{}, len(merged))
	out := merged[:0]
	for _, f := range merged {
		k := filingKey(f)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FilingDate > out[j].FilingDate })
	if max := clampLimit(limit); len(out) > max {
		out = out[:max]
	}
	acc.Filings = out
}

func insiderKey(e finance.InsiderEntry) string {
	return strings.Join([]string{
		e.Owner,
		e.Date,
		strconv.FormatFloat(e.Shares, 'f', -1, 64),
		strconv.FormatFloat(e.SharesChange, 'f', -1, 64),
		e.Security,
		string(e.TransactionType),
	}, "|")
}

func mergeInsider(acc, next *finance.Insider, limit int) {
	if acc.Symbol == "" {
		acc.Symbol = next.Symbol
	}
	merged := append(acc.Entries, next.Entries...)
	seen := make(map[string]struct{}, len(merged))
	out := merged[:0]
	for _, e := range merged {
		k := insiderKey(e)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	if max := clampLimit(limit) * 5; len(out) > max {
		out = out[:max]
	}
	acc.Entries = out
	acc.RecomputeOwnershipChange()

	if acc.Summary == nil && next.Summary != nil {
		acc.Summary = next.Summary
	}
}

func newsKey(n finance.NewsItem) string {
	return strings.Join([]string{n.URL, n.Title, n.PublishedAt}, "|")
}

func mergeNews(acc, next *finance.News, limit int) {
	if acc.Symbol == "" {
		acc.Symbol = next.Symbol
	}
	merged := append(acc.Items, next.Items...)
	seen := make(map[string]struct{}, len(merged))
	out := merged[:0]
	for _, n := range merged {
		k := newsKey(n)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PublishedAt > out[j].PublishedAt })
	if max := clampLimit(limit); len(out) > max {
		out = out[:max]
	}
	acc.Items = out
}
