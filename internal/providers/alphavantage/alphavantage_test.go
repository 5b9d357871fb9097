package alphavantage

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
		require.NoError(t, store.Set("alphavantage", auth.Info{Type: auth.KindAPI, Key: "av-test"}))
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

func TestFetchQuote_ParsesStringNumbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "av-test", r.URL.Query().Get("apikey"))
		fmt.Fprint(w, `{"Global Quote":{
			"01. symbol":"AAPL",
			"05. price":"190.5000",
			"08. previous close":"188.0000",
			"09. change":"2.5000",
			"10. change percent":"1.3298%"
		}}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv)
	res, err := p.Fetch(context.Background(), intentQuery("AAPL", finance.IntentQuote))
	require.NoError(t, err)

	q, ok := res.Data.(*finance.Quote)
	require.True(t, ok)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 190.5, *q.Price)
	assert.Equal(t, 188.0, *q.PreviousClose)
	assert.Equal(t, 2.5, *q.Change)
	assert.Equal(t, 1.3298, *q.ChangePercent)

	require.Len(t, res.Attribution, 1)
	assert.Equal(t, "alphavantage.co", res.Attribution[0].Domain)
}

func TestFetchQuote_EmptyBodyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Global Quote":{}}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv)
	_, err := p.Fetch(context.Background(), intentQuery("ZZZZ", finance.IntentQuote))

	var perr *providers.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, providers.CodeProviderError, perr.Code)
	assert.Contains(t, perr.Message, "no quote returned for ZZZZ")
}

func TestBodyErrors_ClassifyInBandFailures(t *testing.T) {
	cases := []struct {
		name string
		body string
		code string
	}{
		{
			name: "note means throttled",
			body: `{"Note":"Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`,
			code: providers.CodeRateLimit,
		},
		{
			name: "premium information means tier denied",
			body: `{"Information":"This is a premium endpoint. Please subscribe to unlock."}`,
			code: providers.CodeTierDenied,
		},
		{
			name: "error message means provider error",
			body: `{"Error Message":"Invalid API call. Please retry or visit the documentation."}`,
			code: providers.CodeProviderError,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			p := newTestProvider(t, srv)
			_, err := p.Fetch(context.Background(), intentQuery("AAPL", finance.IntentQuote))

			var perr *providers.Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.code, perr.Code)
		})
	}
}

func TestFetchFundamentals_DerivesFromOverview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OVERVIEW", r.URL.Query().Get("function"))
		fmt.Fprint(w, `{
			"Symbol":"AAPL",
			"Sector":"TECHNOLOGY",
			"Address":"One Apple Park Way, Cupertino, CA, US",
			"OfficialSite":"https://www.apple.com",
			"MarketCapitalization":"2950000000000",
			"RevenueTTM":"400000000000",
			"GrossProfitTTM":"180000000000",
			"ProfitMargin":"0.25",
			"OperatingMarginTTM":"0.302",
			"ReturnOnEquityTTM":"1.503",
			"LatestQuarter":"2024-06-30",
			"AnalystRatingStrongBuy":"10",
			"AnalystRatingBuy":"24",
			"AnalystRatingHold":"8",
			"AnalystRatingSell":"2",
			"AnalystRatingStrongSell":"1"
		}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv)
	res, err := p.Fetch(context.Background(), intentQuery("AAPL", finance.IntentFundamentals))
	require.NoError(t, err)

	f, ok := res.Data.(*finance.Fundamentals)
	require.True(t, ok)

	assert.Equal(t, 400000000000.0, *f.Metrics.Revenue.Value)
	assert.Equal(t, finance.DerivationReported, f.Metrics.Revenue.Derivation)

	// Net income and gross margin do not appear in the overview; both are
	// derived from reported TTM revenue.
	assert.Equal(t, 100000000000.0, *f.Metrics.NetIncome.Value)
	assert.Equal(t, finance.DerivationDerived, f.Metrics.NetIncome.Derivation)
	assert.Equal(t, 45.0, *f.Metrics.GrossMarginPct.Value)
	assert.Equal(t, finance.DerivationDerived, f.Metrics.GrossMarginPct.Derivation)
	assert.InDelta(t, 30.2, *f.Metrics.OperatingMarginPct.Value, 1e-9)
	assert.InDelta(t, 150.3, *f.Metrics.ROEPct.Value, 1e-9)

	assert.Equal(t, 2.95e12, *f.MarketCap)
	assert.Equal(t, "Technology", f.Sector)
	assert.Equal(t, "One Apple Park Way, Cupertino, CA, US", f.Headquarters)
	assert.Equal(t, "https://www.apple.com", f.Website)
	assert.Equal(t, "2024-06-30", f.FiscalPeriodEnd)
	assert.Equal(t, 10.0, *f.AnalystRatings.StrongBuy)
	assert.Equal(t, 1.0, *f.AnalystRatings.StrongSell)
	assert.Equal(t, finance.PeriodTTM, f.Period)
}

func TestFetchFundamentals_EmptyOverviewIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv)
	_, err := p.Fetch(context.Background(), intentQuery("ZZZZ", finance.IntentFundamentals))

	var perr *providers.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, providers.CodeProviderError, perr.Code)
	assert.Contains(t, perr.Message, "no overview returned for ZZZZ")
}

func TestFetchNews_ConvertsTimeAndSentiment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "NEWS_SENTIMENT", r.URL.Query().Get("function"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("tickers"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"feed":[
			{"title":"Apple unveils new chip","url":"https://example.com/1",
			 "time_published":"20240305T120000","source":"Newswire",
			 "summary":"Details.","overall_sentiment_label":"Bullish"},
			{"title":"Odd timestamp","url":"https://example.com/2",
			 "time_published":"last tuesday","source":"Blog",
			 "summary":"","overall_sentiment_label":"Neutral"}
		]}`)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv)
	q := intentQuery("AAPL", finance.IntentNews)
	q.Limit = 2
	res, err := p.Fetch(context.Background(), q)
	require.NoError(t, err)

	news, ok := res.Data.(*finance.News)
	require.True(t, ok)
	require.Len(t, news.Items, 2)
	assert.Equal(t, "2024-03-05T12:00:00Z", news.Items[0].PublishedAt)
	assert.Equal(t, "bullish", news.Items[0].Sentiment)
	assert.Equal(t, "last tuesday", news.Items[1].PublishedAt)
	assert.Equal(t, "neutral", news.Items[1].Sentiment)
}

func TestNum(t *testing.T) {
	cases := []struct {
		in   string
		want *float64
	}{
		{"45.2%", finance.Float(45.2)},
		{"2950000000000", finance.Float(2.95e12)},
		{"-1.25", finance.Float(-1.25)},
		{"None", nil},
		{"none", nil},
		{"-", nil},
		{"", nil},
		{"n/a", nil},
	}
	for _, tc := range cases {
		got := num(tc.in)
		if tc.want == nil {
			assert.Nil(t, got, "num(%q)", tc.in)
			continue
		}
		require.NotNil(t, got, "num(%q)", tc.in)
		assert.Equal(t, *tc.want, *got, "num(%q)", tc.in)
	}
}

func TestTitleCaseSector(t *testing.T) {
	assert.Equal(t, "Technology", titleCaseSector("TECHNOLOGY"))
	assert.Equal(t, "Consumer Cyclical", titleCaseSector("CONSUMER CYCLICAL"))
	assert.Equal(t, "", titleCaseSector("  "))
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
	srv := httptest.NewServer(http.NotFoundHandler())
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
	assert.Equal(t, "alphavantage", p.ID())
	assert.Equal(t, "Alpha Vantage", p.DisplayName())
	assert.True(t, p.Enabled())

	assert.True(t, p.Supports(finance.IntentQuote))
	assert.True(t, p.Supports(finance.IntentFundamentals))
	assert.True(t, p.Supports(finance.IntentNews))
	assert.False(t, p.Supports(finance.IntentFilings))
	assert.False(t, p.Supports(finance.IntentInsider))
}
