package federation

import "github.com/tickerlens/tickerlens/internal/finance"

// IsComplete reports whether the accumulated payload satisfies the intent's
// completeness oracle, letting comprehensive coverage stop consulting
// further providers.
func IsComplete(intent finance.Intent, p finance.Payload, limit int) bool {
	if p == nil {
		return false
	}
	switch intent {
	case finance.IntentQuote:
		q := p.(*finance.Quote)
		return finance.IsFinite(q.Price) &&
			finance.IsFinite(q.PreviousClose) &&
			finance.IsFinite(q.ChangePercent) &&
			finance.IsFinite(q.MarketCap) &&
			finance.IsFinite(q.High52W) &&
			finance.IsFinite(q.Low52W) &&
			finance.IsFinite(q.YTDReturnPercent)

	case finance.IntentFundamentals:
		f := p.(*finance.Fundamentals)
		return finance.IsFinite(f.Metrics.Revenue.Value) &&
			finance.IsFinite(f.Metrics.NetIncome.Value) &&
			finance.IsFinite(f.Metrics.GrossMarginPct.Value) &&
			finance.IsFinite(f.Metrics.DebtToEquity.Value) &&
			finance.IsFinite(f.Metrics.FreeCashFlow.Value) &&
			finance.IsFinite(f.MarketCap) &&
			wellFormedString(f.Sector) &&
			wellFormedString(f.Headquarters) &&
			f.AnalystRatings.AnyBucket()

	case finance.IntentFilings:
		want := clampLimit(limit)
		if want > 5 {
			want = 5
		}
		return len(p.(*finance.Filings).Filings) >= want

	case finance.IntentInsider:
		ins := p.(*finance.Insider)
		return len(ins.Entries) > 0 || (ins.Summary != nil && ins.Summary.Text != "")

	case finance.IntentNews:
		want := clampLimit(limit)
		if want > 3 {
			want = 3
		}
		return len(p.(*finance.News).Items) >= want
	}
	return false
}
