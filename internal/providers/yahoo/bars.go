package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/tickerlens/tickerlens/internal/finance"
	"github.com/tickerlens/tickerlens/internal/httpx"
	"github.com/tickerlens/tickerlens/internal/providers"
)

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency string `json:"currency"`
				Symbol   string `json:"symbol"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Adjclose []struct {
					Adjclose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartMeta struct {
	Currency string
}

// chart fetches daily bars for a range expression ("1y") or, when rangeExpr
// is empty, a [from,to] window set by the caller on the URL.
func (p *Provider) chart(ctx context.Context, symbol, rangeExpr string) ([]finance.PriceBar, chartMeta, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=%s",
		p.baseURL, url.PathEscape(symbol), url.QueryEscape(rangeExpr))
	return p.chartURL(ctx, symbol, u)
}

func (p *Provider) chartURL(ctx context.Context, symbol, u string) ([]finance.PriceBar, chartMeta, error) {
	var decoded chartResponse
	if err := httpx.GetJSON(ctx, p.deps.Client, u, nil, &decoded); err != nil {
		return nil, chartMeta{}, err
	}
	if decoded.Chart.Error != nil {
		return nil, chartMeta{}, providers.NewError(id, providers.CodeProviderError,
			fmt.Sprintf("chart error for %s: %s", symbol, decoded.Chart.Error.Description))
	}
	if len(decoded.Chart.Result) == 0 {
		return nil, chartMeta{}, providers.NewError(id, providers.CodeProviderError,
			fmt.Sprintf("no chart data for %s", symbol))
	}

	r := decoded.Chart.Result[0]
	closes := make([]*float64, 0)
	if len(r.Indicators.Adjclose) > 0 {
		closes = r.Indicators.Adjclose[0].Adjclose
	} else if len(r.Indicators.Quote) > 0 {
		closes = r.Indicators.Quote[0].Close
	}

	bars := make([]finance.PriceBar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		bars = append(bars, finance.PriceBar{
			Symbol:        finance.NormalizeSymbol(symbol),
			Date:          time.Unix(ts, 0).UTC().Format("2006-01-02"),
			AdjustedClose: *closes[i],
		})
	}
	return bars, chartMeta{Currency: r.Meta.Currency}, nil
}

// DailyBars loads the adjusted daily series for [from, to]. It satisfies
// the price-source contract of the analytic workflows.
func (p *Provider) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]finance.PriceBar, error) {
	ctx, cancel := httpx.Compose(ctx, p.timeout)
	defer cancel()

	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&period1=%d&period2=%d",
		p.baseURL, url.PathEscape(symbol), from.UTC().Unix(), to.UTC().Unix())
	bars, _, err := p.chartURL(ctx, symbol, u)
	if err != nil {
		return nil, providers.Classify(id, err)
	}
	return bars, nil
}
