package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"etf-reversion-bot/internal/drawdown"
)

// YahooProvider implements Provider against the Yahoo Finance chart API.
type YahooProvider struct {
	client  *http.Client
	baseURL string
}

func NewYahooProvider(timeout time.Duration, proxyURL string) *YahooProvider {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &YahooProvider{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		baseURL: "https://query1.finance.yahoo.com",
	}
}

// yahooChart is the response structure from the chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []interface{} `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func (p *YahooProvider) fetchChart(ctx context.Context, ticker, interval, rng string) ([]drawdown.Close, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		p.baseURL, url.PathEscape(ticker), interval, rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, fmt.Errorf("yahoo: no data returned for %s", ticker)
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo: no quote data for %s", ticker)
	}
	quote := result.Indicators.Quote[0]

	closes := make([]drawdown.Close, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) {
			break
		}
		c := toFloat(quote.Close[i])
		if c == 0 {
			continue // skip null bars (holidays etc.)
		}
		closes = append(closes, drawdown.Close{
			Date:  time.Unix(ts, 0).UTC(),
			Price: c,
		})
	}

	sort.Slice(closes, func(i, j int) bool { return closes[i].Date.Before(closes[j].Date) })
	return closes, nil
}

// History returns up to the requested number of daily closes, oldest first.
func (p *YahooProvider) History(ctx context.Context, ticker string, days int) ([]drawdown.Close, error) {
	rng := "2y"
	switch {
	case days <= 30:
		rng = "1mo"
	case days <= 90:
		rng = "3mo"
	case days <= 180:
		rng = "6mo"
	case days <= 365:
		rng = "1y"
	}
	closes, err := p.fetchChart(ctx, ticker, "1d", rng)
	if err != nil {
		return nil, err
	}
	if len(closes) > days {
		closes = closes[len(closes)-days:]
	}
	return closes, nil
}

// LatestPrice returns the most recent close for the ticker.
func (p *YahooProvider) LatestPrice(ctx context.Context, ticker string) (float64, error) {
	closes, err := p.fetchChart(ctx, ticker, "1d", "5d")
	if err != nil {
		return 0, err
	}
	if len(closes) == 0 {
		return 0, fmt.Errorf("yahoo: no price data for %s", ticker)
	}
	return closes[len(closes)-1].Price, nil
}

var _ Provider = (*YahooProvider)(nil)
