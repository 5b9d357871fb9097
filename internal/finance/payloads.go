package finance

import (
	"math"
	"strings"
)

// Payload is the sealed set of intent-specific data variants carried by a
// Result. Exactly one concrete type exists per intent.
type Payload interface {
	Intent() Intent
}

// Float returns a pointer to v, for populating nullable numeric fields.
func Float(v float64) *float64 { return &v }

// IsFinite reports whether p holds a finite number. Nil, NaN and ±Inf are
// all treated as absent.
func IsFinite(p *float64) bool {
	return p != nil && !math.IsNaN(*p) && !math.IsInf(*p, 0)
}

// NormalizeSymbol uppercases and trims a ticker symbol on ingress.
func NormalizeSymbol(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// Quote is the payload for the quote intent. All numeric fields are
// nullable; currency defaults to USD when the upstream does not say.
type Quote struct {
	Symbol           string   `json:"symbol"`
	Price            *float64 `json:"price"`
	Currency         string   `json:"currency"`
	PreviousClose    *float64 `json:"previousClose"`
	Change           *float64 `json:"change"`
	ChangePercent    *float64 `json:"changePercent"`
	MarketCap        *float64 `json:"marketCap"`
	High52W          *float64 `json:"52wHigh"`
	Low52W           *float64 `json:"52wLow"`
	YTDReturnPercent *float64 `json:"ytdReturnPercent"`
}

func (*Quote) Intent() Intent { return IntentQuote }

// MetricPeriod describes the reporting period a fundamental metric covers.
type MetricPeriod string

const (
	PeriodTTM     MetricPeriod = "TTM"
	PeriodFY      MetricPeriod = "FY"
	PeriodQ       MetricPeriod = "Q"
	PeriodUnknown MetricPeriod = "Unknown"
)

// periodRank orders periods for coarsening: TTM > FY > Q > Unknown.
func periodRank(p MetricPeriod) int {
	switch p {
	case PeriodTTM:
		return 3
	case PeriodFY:
		return 2
	case PeriodQ:
		return 1
	default:
		return 0
	}
}

// CoarsestPeriod picks the strongest period across metrics, used for the
// payload-level period field after a merge.
func CoarsestPeriod(periods ...MetricPeriod) MetricPeriod {
	best := PeriodUnknown
	for _, p := range periods {
		if periodRank(p) > periodRank(best) {
			best = p
		}
	}
	return best
}

// MetricDerivation records whether a metric came straight from a statement
// or was computed from other reported figures.
type MetricDerivation string

const (
	DerivationReported MetricDerivation = "reported"
	DerivationDerived  MetricDerivation = "derived"
)

// Metric is the 3-tuple carried per fundamental metric. Merges treat the
// tuple atomically: value, period and derivation travel together.
type Metric struct {
	Value      *float64         `json:"value"`
	Period     MetricPeriod     `json:"period,omitempty"`
	Derivation MetricDerivation `json:"derivation,omitempty"`
}

// FundamentalMetrics holds the seven canonical metrics.
type FundamentalMetrics struct {
	Revenue            Metric `json:"revenue"`
	NetIncome          Metric `json:"netIncome"`
	GrossMarginPct     Metric `json:"grossMarginPct"`
	DebtToEquity       Metric `json:"debtToEquity"`
	ROEPct             Metric `json:"roePct"`
	OperatingMarginPct Metric `json:"operatingMarginPct"`
	FreeCashFlow       Metric `json:"freeCashFlow"`
}

// AnalystRatings buckets analyst recommendations by strength.
type AnalystRatings struct {
	StrongBuy  *float64 `json:"strongBuy"`
	Buy        *float64 `json:"buy"`
	Hold       *float64 `json:"hold"`
	Sell       *float64 `json:"sell"`
	StrongSell *float64 `json:"strongSell"`
}

// AnyBucket reports whether at least one rating bucket holds a finite value.
func (r AnalystRatings) AnyBucket() bool {
	return IsFinite(r.StrongBuy) || IsFinite(r.Buy) || IsFinite(r.Hold) ||
		IsFinite(r.Sell) || IsFinite(r.StrongSell)
}

// Fundamentals is the payload for the fundamentals intent.
type Fundamentals struct {
	Symbol          string             `json:"symbol"`
	Metrics         FundamentalMetrics `json:"metrics"`
	FiscalPeriodEnd string             `json:"fiscalPeriodEnd"`
	MarketCap       *float64           `json:"marketCap"`
	Sector          string             `json:"sector"`
	Headquarters    string             `json:"headquarters"`
	Website         string             `json:"website"`
	IconURL         string             `json:"iconUrl"`
	AnalystRatings  AnalystRatings     `json:"analystRatings"`
	Period          MetricPeriod       `json:"period"`
}

func (*Fundamentals) Intent() Intent { return IntentFundamentals }

// RecoarsenPeriod recomputes the payload-level period from the per-metric
// periods of metrics that actually hold a value.
func (f *Fundamentals) RecoarsenPeriod() {
	periods := make([]MetricPeriod, 0, 7)
	for _, m := range []Metric{
		f.Metrics.Revenue, f.Metrics.NetIncome, f.Metrics.GrossMarginPct,
		f.Metrics.DebtToEquity, f.Metrics.ROEPct, f.Metrics.OperatingMarginPct,
		f.Metrics.FreeCashFlow,
	} {
		if IsFinite(m.Value) {
			periods = append(periods, m.Period)
		}
	}
	f.Period = CoarsestPeriod(periods...)
}

// Filing is one SEC (or SEC-like) filing reference.
type Filing struct {
	Form            string `json:"form"`
	AccessionNumber string `json:"accessionNumber"`
	FilingDate      string `json:"filingDate"`
	ReportDate      string `json:"reportDate"`
	URL             string `json:"url"`
	Summary         string `json:"summary"`
}

// Filings is the payload for the filings intent, sorted filingDate desc.
type Filings struct {
	Symbol  string   `json:"symbol"`
	Filings []Filing `json:"filings"`
}

func (*Filings) Intent() Intent { return IntentFilings }

// TransactionType classifies an insider transaction.
type TransactionType string

const (
	TransactionBuy   TransactionType = "buy"
	TransactionSell  TransactionType = "sell"
	TransactionOther TransactionType = "other"
)

// InsiderEntry is one insider transaction. Shares is always the magnitude
// of SharesChange.
type InsiderEntry struct {
	Owner           string          `json:"owner"`
	Date            string          `json:"date"`
	Shares          float64         `json:"shares"`
	SharesChange    float64         `json:"sharesChange"`
	TransactionType TransactionType `json:"transactionType"`
	Security        string          `json:"security"`
}

// InsiderSummary carries advisory text when no itemized entries are
// available (the Quiver tier-1 fallback path).
type InsiderSummary struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Insider is the payload for the insider intent.
type Insider struct {
	Symbol          string          `json:"symbol"`
	OwnershipChange float64         `json:"ownershipChange"`
	Entries         []InsiderEntry  `json:"entries"`
	Summary         *InsiderSummary `json:"summary,omitempty"`
}

func (*Insider) Intent() Intent { return IntentInsider }

// RecomputeOwnershipChange sets OwnershipChange to the sum of entry
// sharesChange values.
func (p *Insider) RecomputeOwnershipChange() {
	total := 0.0
	for _, e := range p.Entries {
		total += e.SharesChange
	}
	p.OwnershipChange = total
}

// NewsItem is one headline.
type NewsItem struct {
	Title       string `json:"title"`
	Source      string `json:"source"`
	PublishedAt string `json:"publishedAt"`
	URL         string `json:"url"`
	Summary     string `json:"summary"`
	Sentiment   string `json:"sentiment,omitempty"`
}

// News is the payload for the news intent, sorted publishedAt desc.
type News struct {
	Symbol string     `json:"symbol"`
	Items  []NewsItem `json:"items"`
}

func (*News) Intent() Intent { return IntentNews }

// EmptyPayload builds the empty-intent skeleton returned when every
// provider failed or none were available.
func EmptyPayload(intent Intent, symbol string) Payload {
	symbol = NormalizeSymbol(symbol)
	switch intent {
	case IntentQuote:
		return &Quote{Symbol: symbol, Currency: "USD"}
	case IntentFundamentals:
		return &Fundamentals{Symbol: symbol, Period: PeriodUnknown}
	case IntentFilings:
		return &Filings{Symbol: symbol, Filings: []Filing{}}
	case IntentInsider:
		return &Insider{Symbol: symbol, Entries: []InsiderEntry{}}
	case IntentNews:
		return &News{Symbol: symbol, Items: []NewsItem{}}
	}
	return nil
}
