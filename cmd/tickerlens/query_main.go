package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/tickerlens/tickerlens/internal/finance"
	"github.com/tickerlens/tickerlens/internal/query"
)

const queryTimeout = 60 * time.Second

func runQuery(cmd *cobra.Command, args []string) error {
	ticker, _ := cmd.Flags().GetString("ticker")
	intent, _ := cmd.Flags().GetString("intent")
	form, _ := cmd.Flags().GetString("form")
	coverage, _ := cmd.Flags().GetString("coverage")
	limit, _ := cmd.Flags().GetInt("limit")
	source, _ := cmd.Flags().GetString("source")
	refresh, _ := cmd.Flags().GetBool("refresh")
	asJSON, _ := cmd.Flags().GetBool("json")

	configureProgress(cmd.Flags().Lookup("progress").Value.String())

	q, err := query.Parse(strings.Join(args, " "), query.Options{
		Ticker:   ticker,
		Intent:   intent,
		Form:     form,
		Coverage: coverage,
		Limit:    float64(limit),
		Source:   source,
		Refresh:  refresh,
	})
	if err != nil {
		return err
	}

	a, err := newApp(configPath(cmd), log.Logger)
	if err != nil {
		return err
	}

	log.Info().
		Str("ticker", q.Ticker).
		Str("intent", string(q.Intent)).
		Str("coverage", string(q.Coverage)).
		Str("source", orAuto(q.Source)).
		Msg("resolving query")

	ctx, cancel := context.WithTimeout(cmd.Context(), queryTimeout)
	defer cancel()

	res := a.engine.Fetch(ctx, q)

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	renderResult(os.Stdout, res)
	return nil
}

// progressValue restricts --progress to the supported output modes at
// parse time.
type progressValue string

var _ pflag.Value = (*progressValue)(nil)

func (v *progressValue) String() string { return string(*v) }

func (v *progressValue) Type() string { return "mode" }

func (v *progressValue) Set(s string) error {
	switch s {
	case "auto", "plain", "json":
		*v = progressValue(s)
		return nil
	}
	return fmt.Errorf("must be one of auto, plain, json")
}

// configureProgress reshapes the step log for the requested mode: json for
// machine consumers, plain for dumb terminals, auto picks by TTY.
func configureProgress(mode string) {
	switch mode {
	case "json":
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	case "plain":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen, NoColor: true})
	default:
		if !term.IsTerminal(int(os.Stderr.Fd())) {
			log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		}
	}
}

func orAuto(s string) string {
	if s == "" {
		return "auto"
	}
	return s
}

func renderResult(w io.Writer, res *finance.Result) {
	switch p := res.Data.(type) {
	case *finance.Quote:
		renderQuote(w, p)
	case *finance.Fundamentals:
		renderFundamentals(w, p)
	case *finance.Filings:
		renderFilings(w, p)
	case *finance.Insider:
		renderInsider(w, p)
	case *finance.News:
		renderNews(w, p)
	default:
		fmt.Fprintln(w, "no data")
	}

	fmt.Fprintf(w, "\nSource: %s (as of %s)\n", res.Source, res.Timestamp.UTC().Format(time.RFC3339))
	for _, a := range res.Attribution {
		fmt.Fprintf(w, "Data from %s (%s)\n", a.Publisher, a.Domain)
	}
	if len(res.Errors) > 0 {
		fmt.Fprintln(w, "Provider issues:")
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
}

func renderQuote(w io.Writer, p *finance.Quote) {
	fmt.Fprintf(w, "%s quote\n", p.Symbol)
	fmt.Fprintf(w, "  Price           %s %s\n", num(p.Price), p.Currency)
	fmt.Fprintf(w, "  Previous close  %s\n", num(p.PreviousClose))
	fmt.Fprintf(w, "  Change          %s (%s)\n", signedNum(p.Change), signedPct(p.ChangePercent))
	fmt.Fprintf(w, "  Market cap      %s\n", compactNum(p.MarketCap))
	fmt.Fprintf(w, "  52w range       %s to %s\n", num(p.Low52W), num(p.High52W))
	fmt.Fprintf(w, "  YTD return      %s\n", signedPct(p.YTDReturnPercent))
}

func renderFundamentals(w io.Writer, p *finance.Fundamentals) {
	fmt.Fprintf(w, "%s fundamentals (%s)\n", p.Symbol, p.Period)
	if p.Sector != "" {
		fmt.Fprintf(w, "  Sector          %s\n", p.Sector)
	}
	if p.FiscalPeriodEnd != "" {
		fmt.Fprintf(w, "  Fiscal period   %s\n", p.FiscalPeriodEnd)
	}
	if finance.IsFinite(p.MarketCap) {
		fmt.Fprintf(w, "  Market cap      %s\n", compactNum(p.MarketCap))
	}

	rows := []struct {
		name string
		m    finance.Metric
	}{
		{"Revenue", p.Metrics.Revenue},
		{"Net income", p.Metrics.NetIncome},
		{"Gross margin", p.Metrics.GrossMarginPct},
		{"Debt/equity", p.Metrics.DebtToEquity},
		{"ROE", p.Metrics.ROEPct},
		{"Operating margin", p.Metrics.OperatingMarginPct},
		{"Free cash flow", p.Metrics.FreeCashFlow},
	}
	for _, r := range rows {
		if !finance.IsFinite(r.m.Value) {
			continue
		}
		fmt.Fprintf(w, "  %-16v %12s  %s, %s\n", r.name, compactNum(r.m.Value), r.m.Period, r.m.Derivation)
	}

	if p.AnalystRatings.AnyBucket() {
		ar := p.AnalystRatings
		fmt.Fprintf(w, "  Analyst ratings  strong buy %s / buy %s / hold %s / sell %s / strong sell %s\n",
			count(ar.StrongBuy), count(ar.Buy), count(ar.Hold), count(ar.Sell), count(ar.StrongSell))
	}
}

func renderFilings(w io.Writer, p *finance.Filings) {
	fmt.Fprintf(w, "%s filings (%d)\n", p.Symbol, len(p.Filings))
	for _, f := range p.Filings {
		fmt.Fprintf(w, "  %-8s filed %-10s  %s\n", f.Form, f.FilingDate, f.URL)
		if f.Summary != "" {
			fmt.Fprintf(w, "           %s\n", f.Summary)
		}
	}
}

func renderInsider(w io.Writer, p *finance.Insider) {
	fmt.Fprintf(w, "%s insider activity (net %+.0f shares)\n", p.Symbol, p.OwnershipChange)
	for _, e := range p.Entries {
		fmt.Fprintf(w, "  %-10s %-28s %-5s %12.0f shares  %s\n",
			e.Date, e.Owner, e.TransactionType, e.Shares, e.Security)
	}
	if p.Summary != nil && p.Summary.Text != "" {
		fmt.Fprintf(w, "  Note: %s\n", p.Summary.Text)
	}
}

func renderNews(w io.Writer, p *finance.News) {
	fmt.Fprintf(w, "%s news (%d)\n", p.Symbol, len(p.Items))
	for _, n := range p.Items {
		fmt.Fprintf(w, "  [%s] %s\n", n.PublishedAt, n.Title)
		detail := n.Source
		if n.Sentiment != "" {
			detail += ", " + n.Sentiment
		}
		fmt.Fprintf(w, "        %s  %s\n", detail, n.URL)
	}
}

func num(p *float64) string {
	if !finance.IsFinite(p) {
		return "-"
	}
	return fmt.Sprintf("%.2f", *p)
}

func signedNum(p *float64) string {
	if !finance.IsFinite(p) {
		return "-"
	}
	return fmt.Sprintf("%+.2f", *p)
}

func signedPct(p *float64) string {
	if !finance.IsFinite(p) {
		return "-"
	}
	return fmt.Sprintf("%+.2f%%", *p)
}

func count(p *float64) string {
	if !finance.IsFinite(p) {
		return "-"
	}
	return fmt.Sprintf("%.0f", *p)
}

// compactNum renders large magnitudes with K/M/B/T suffixes.
func compactNum(p *float64) string {
	if !finance.IsFinite(p) {
		return "-"
	}
	v := *p
	switch {
	case math.Abs(v) >= 1e12:
		return fmt.Sprintf("%.2fT", v/1e12)
	case math.Abs(v) >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case math.Abs(v) >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case math.Abs(v) >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}
