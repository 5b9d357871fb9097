package quartr

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
		require.NoError(t, store.Set("quartr", auth.Info{Type: auth.KindAPI, Key: "quartr-test"}))
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

func TestFetchNews_LooksUpCompanyThenEvents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/companies", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "quartr-test", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("ticker"))
		fmt.Fprint(w, `{"data":[{"id":42,"displayName":"Apple Inc"}]}`)
	})
	mux.HandleFunc("/companies/42/events", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "quartr-test", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "desc", r.URL.Query().Get("sort"))
		fmt.Fprint(w, `{"data":[
			{"eventTitle":"","eventDate":"2024-05-02","fiscalPeriod":"Q2","fiscalYear":2024,
			 "eventType":"earnings_call",
			 "transcriptUrl":"https://quartr.com/t/1","reportUrl":"https://quartr.com/r/1","audioUrl":"https://quartr.com/a/1"},
			{"eventTitle":"Apple AGM 2024","eventDate":"2024-02-28","fiscalPeriod":"","fiscalYear":2024,
			 "eventType":"agm",
			 "transcriptUrl":"","reportUrl":"","audioUrl":"https://quartr.com/a/2"},
			{"eventTitle":"Over the limit","eventDate":"2024-02-01","fiscalPeriod":"Q1","fiscalYear":2024,
			 "eventType":"earnings_call","transcriptUrl":"","reportUrl":"","audioUrl":""}
		]}`)
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

	// Untitled events take a synthesized title, and the transcript wins the
	// link when all three documents exist.
	assert.Equal(t, "Apple Inc Q2 2024 Earnings Call", news.Items[0].Title)
	assert.Equal(t, "https://quartr.com/t/1", news.Items[0].URL)
	assert.Equal(t, "Earnings Call", news.Items[0].Summary)
	assert.Equal(t, "Quartr", news.Items[0].Source)
	assert.Equal(t, "2024-05-02", news.Items[0].PublishedAt)

	assert.Equal(t, "Apple AGM 2024", news.Items[1].Title)
	assert.Equal(t, "https://quartr.com/a/2", news.Items[1].URL)
	assert.Equal(t, "Annual General Meeting", news.Items[1].Summary)

	require.Len(t, res.Attribution, 1)
	assert.Equal(t, "quartr.com", res.Attribution[0].Domain)
}

func TestFetchNews_UnknownCompanyIsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/companies", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := newTestProvider(t, srv)
	_, err := p.Fetch(context.Background(), intentQuery("ZZZZ", finance.IntentNews))

	var perr *providers.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, providers.CodeProviderError, perr.Code)
	assert.Contains(t, perr.Message, "no Quartr company for ZZZZ")
}

func TestEventLabel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"earnings_call", "Earnings Call"},
		{"earnings", "Earnings Call"},
		{"capital_markets_day", "Capital Markets Day"},
		{"agm", "Annual General Meeting"},
		{"annual_general_meeting", "Annual General Meeting"},
		{"", "Company Event"},
		{"investor_day", "Investor Day"},
		{"PRODUCT_LAUNCH", "Product Launch"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, eventLabel(tc.in), "eventLabel(%q)", tc.in)
	}
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
	_, err := p.Fetch(context.Background(), intentQuery("AAPL", finance.IntentNews))

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
	_, err := p.Fetch(context.Background(), intentQuery("AAPL", finance.IntentQuote))

	var perr *providers.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, providers.CodeUnsupported, perr.Code)
}

func TestProviderIdentity(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	p := newTestProvider(t, srv)
	assert.Equal(t, "quartr", p.ID())
	assert.Equal(t, "Quartr", p.DisplayName())
	assert.True(t, p.Enabled())

	assert.True(t, p.Supports(finance.IntentNews))
	assert.False(t, p.Supports(finance.IntentQuote))
	assert.False(t, p.Supports(finance.IntentFundamentals))
	assert.False(t, p.Supports(finance.IntentFilings))
	assert.False(t, p.Supports(finance.IntentInsider))
}
