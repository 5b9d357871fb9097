package finnhub

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tickerlens/tickerlens/internal/auth"
	"github.com/tickerlens/tickerlens/internal/finance"
	"github.com/tickerlens/tickerlens/internal/providers"
	"github.com/tickerlens/tickerlens/internal/query"
)

func testResolver(t *testing.T, withKey bool) *auth.Resolver {
	t.Helper()
	store := auth.NewStore(t.TempDir())
	if withKey {
		require.NoError(t, store.Set("finnhub", auth.Info{Type: auth.KindAPI, Key: "fh-test"}))
	}
	r := auth.NewResolver(store)
	r.SetGetenv(func(string) string { return "" })
	return r
}

func newTestProvider(t *testing.T, srv *httptest.Server) *Provider {
	t.Helper()
	deps := providers.Deps{
		Resolver: testResolver(t, true),
		Client:   srv.Client(),
		Logger:   zerolog.Nop(),
	}
	return New(deps,
		WithBaseURL(srv.URL),
		WithTimeout(5*time.Second),
		WithGuardConfig(providers.GuardConfig{RPS: 1000, Burst: 1000}),
	)
}

func intentQuery(ticker string, intent finance.Intent) query.Query {
	return query.Query{
		Ticker:   ticker,
		Intent:   intent,
		Coverage: query.CoverageDefault,
		Limit:    query.DefaultLimit,
	}
}

func TestFetchQuote_EnrichesRangeFromMetrics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "fh-test", r.URL.Query().Get("token"))
		fmt.Fprint(w, `{"c":190.5,"d":2.5,"dp":1.3298,"pc":188.0}`)
	})
	mux.HandleFunc("/stock/metric", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("metric"))
		fmt.Fprint(w, `{"metric":{
			"52WeekHigh":199.62,"52WeekLow":164.08,
			"yearToDatePriceReturnDaily":12.34,
			"marketCapitalization":2950000
		}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newTestProvider(t, srv)
	res, err := p.Fetch(context.Background(), intentQuery("AAPL", finance.IntentQuote))
	require.NoError(t, err)

	assert.Equal(t, "finnhub", res.Source)
	q, ok := res.Data.(*finance.Quote)
	require.True(t, ok)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, "USD", q.Currency)
	assert.Equal(t, 190.5, *q.Price)
	assert.Equal(t, 188.0, *q.PreviousClose)
	assert.Equal(t, 2.5, *q.Change)
	assert.Equal(t, 1.3298, *q.ChangePercent)
	assert.Equal(t, 199.62, *q.High52W)
	assert.Equal(t, 164.08, *q.Low52W)
	assert.Equal(t, 12.34, *q.YTDReturnPercent)
	assert.Equal(t, 2.95e12, *q.MarketCap)

	require.Len(t, res.Attribution, 1)
	assert.Equal(t, "finnhub.io", res.Attribution[0].Domain)
}

func TestFetchQuote_SurvivesGatedMetrics(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"c":190.5,"d":2.5,"dp":1.3298,"pc":188.0}`)
	})
	mux.HandleFunc("/stock/metric", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"premium endpoint"}`, http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newTestProvider(t, srv)
	res, err := p.Fetch(context.Background(), intentQuery("AAPL", finance.IntentQuote))
	require.NoError(t, err)

	q, ok := res.Data.(*finance.Quote)
	require.True(t, ok)
	assert.Equal(t, 190.5, *q.Price)
	assert.Nil(t, q.High52W)
	assert.Nil(t, q.Low52W)
	assert.Nil(t, q.MarketCap)
}

func TestFetchQuote_ZeroPriceIsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"c":0,"d":null,"dp":null,"pc":0}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newTestProvider(t, srv)
	_, err := p.Fetch(context.Background(), intentQuery("ZZZZ", finance.IntentQuote))

	var perr *providers.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, providers.CodeProviderError, perr.Code)
	assert.Contains(t, perr.Message, "no quote returned for ZZZZ")
}

func TestFetchFundamentals_MapsMetricsAndProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stock/metric", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"metric":{
			"revenueTTM":383285000000,
			"netIncomeTTM":100389000000,
			"grossMarginTTM":45.1,
			"operatingMarginTTM":30.2,
			"roeTTM":150.3,
			"totalDebt/totalEquityQuarterly":1.765
		}}`)
	})
	mux.HandleFunc("/stock/profile2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"name":"Apple Inc","country":"US","currency":"USD",
			"marketCapitalization":2950000,
			"finnhubIndustry":"Technology",
			"weburl":"https://www.apple.com/",
			"logo":"https://static.finnhub.io/logo/aapl.png"
		}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newTestProvider(t, srv)
	res, err := p.Fetch(context.Background(), intentQuery("AAPL", finance.IntentFundamentals))
	require.NoError(t, err)

	f, ok := res.Data.(*finance.Fundamentals)
	require.True(t, ok)
	assert.Equal(t, 383285000000.0, *f.Metrics.Revenue.Value)
	assert.Equal(t, finance.PeriodTTM, f.Metrics.Revenue.Period)
	assert.Equal(t, finance.DerivationReported, f.Metrics.Revenue.Derivation)
	assert.Equal(t, 100389000000.0, *f.Metrics.NetIncome.Value)
	assert.Equal(t, 45.1, *f.Metrics.GrossMarginPct.Value)
	assert.Equal(t, 30.2, *f.Metrics.OperatingMarginPct.Value)
	assert.Equal(t, 150.3, *f.Metrics.ROEPct.Value)
	assert.Equal(t, 1.765, *f.Metrics.DebtToEquity.Value)
	assert.Equal(t, finance.PeriodQ, f.Metrics.DebtToEquity.Period)

	assert.Equal(t, 2.95e12, *f.MarketCap)
	assert.Equal(t, "Technology", f.Sector)
	assert.Equal(t, "US", f.Headquarters)
	assert.Equal(t, "https://www.apple.com/", f.Website)
	assert.Equal(t, "https://static.finnhub.io/logo/aapl.png", f.IconURL)
	assert.Equal(t, finance.PeriodTTM, f.Period)
}

func TestFetchFundamentals_EmptyMetricsIsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stock/metric", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newTestProvider(t, srv)
	_, err := p.Fetch(context.Background(), intentQuery("ZZZZ", finance.IntentFundamentals))

	var perr *providers.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, providers.CodeProviderError, perr.Code)
	assert.Contains(t, perr.Message, "no metrics returned for ZZZZ")
}

func TestFetchInsider_MapsTransactionCodes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stock/insider-transactions", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[
			{"name":"Tim Cook","share":3280000,"change":-50000,"transactionDate":"2024-03-05","transactionCode":"S"},
			{"name":"Luca Maestri","share":110000,"change":1200,"transactionDate":"2024-03-04","transactionCode":"P"},
			{"name":"Katherine Adams","share":200000,"change":500,"transactionDate":"2024-03-03","transactionCode":"M"},
			{"name":"Jeff Williams","share":95000,"change":-100,"transactionDate":"2024-03-02","transactionCode":"F"},
			{"name":"Board Trust","share":10000,"change":10,"transactionDate":"2024-03-01","transactionCode":"G"},
			{"name":"No Change","share":5000,"change":null,"transactionDate":"2024-02-29","transactionCode":"S"}
		]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newTestProvider(t, srv)
	res, err := p.Fetch(context.Background(), intentQuery("AAPL", finance.IntentInsider))
	require.NoError(t, err)

	ins, ok := res.Data.(*finance.Insider)
	require.True(t, ok)
	require.Len(t, ins.Entries, 5)

	assert.Equal(t, finance.TransactionSell, ins.Entries[0].TransactionType)
	assert.Equal(t, 50000.0, ins.Entries[0].Shares)
	assert.Equal(t, -50000.0, ins.Entries[0].SharesChange)
	assert.Equal(t, finance.TransactionBuy, ins.Entries[1].TransactionType)
	assert.Equal(t, finance.TransactionBuy, ins.Entries[2].TransactionType)
	assert.Equal(t, finance.TransactionSell, ins.Entries[3].TransactionType)
	assert.Equal(t, finance.TransactionOther, ins.Entries[4].TransactionType)
	assert.Equal(t, "Common Stock", ins.Entries[0].Security)

	assert.Equal(t, -48390.0, ins.OwnershipChange)
}

func TestFetchNews_WindowParamsAndLimit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/company-news", func(w http.ResponseWriter, r *http.Request) {
		from, errFrom := time.Parse("2006-01-02", r.URL.Query().Get("from"))
		to, errTo := time.Parse("2006-01-02", r.URL.Query().Get("to"))
		assert.NoError(t, errFrom)
		assert.NoError(t, errTo)
		assert.True(t, from.Before(to))

		fmt.Fprint(w, `[
			{"datetime":1709640000,"headline":"Apple unveils new chip","source":"Newswire","summary":"Details.","url":"https://example.com/1"},
			{"datetime":0,"headline":"Undated item","source":"Blog","summary":"","url":"https://example.com/2"},
			{"datetime":1709553600,"headline":"Third item","source":"Wire","summary":"","url":"https://example.com/3"}
		]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newTestProvider(t, srv)
	q := intentQuery("AAPL", finance.IntentNews)
	q.Limit = 2
	res, err := p.Fetch(context.Background(), q)
	require.NoError(t, err)

	news, ok := res.Data.(*finance.News)
	require.True(t, ok)
	require.Len(t, news.Items, 2)
	assert.Equal(t, "Apple unveils new chip", news.Items[0].Title)
	assert.Equal(t, "2024-03-05T12:00:00Z", news.Items[0].PublishedAt)
	assert.Empty(t, news.Items[1].PublishedAt)
}

func TestFetch_MissingKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without a key")
	}))
	defer srv.Close()

	deps := providers.Deps{
		Resolver: testResolver(t, false),
		Client:   srv.Client(),
		Logger:   zerolog.Nop(),
	}
	p := New(deps, WithBaseURL(srv.URL))

	assert.False(t, p.Enabled())
	_, err := p.Fetch(context.Background(), intentQuery("AAPL", finance.IntentQuote))

	var perr *providers.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, providers.CodeMissingAuth, perr.Code)
}

func TestFetch_UnsupportedIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an unsupported intent")
	}))
	defer srv.Close()

	p := newTestProvider(t, srv)
	_, err := p.Fetch(context.Background(), intentQuery("AAPL", finance.IntentFilings))

	var perr *providers.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, providers.CodeUnsupported, perr.Code)
}

func TestProviderIdentity(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	p := newTestProvider(t, srv)
	assert.Equal(t, "finnhub", p.ID())
	assert.Equal(t, "Finnhub", p.DisplayName())
	assert.True(t, p.Enabled())

	assert.True(t, p.Supports(finance.IntentQuote))
	assert.True(t, p.Supports(finance.IntentFundamentals))
	assert.True(t, p.Supports(finance.IntentInsider))
	assert.True(t, p.Supports(finance.IntentNews))
	assert.False(t, p.Supports(finance.IntentFilings))
}
