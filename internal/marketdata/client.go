package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"tradesignal/internal/config"
	"tradesignal/internal/trading"
)

// Client wraps the market-data provider REST API. The provider is treated as
// unreliable: gaps and 429s surface as trading.ErrDataUnavailable so callers
// can skip the symbol live or fail the run in a backtest.
type Client struct {
	rest *resty.Client
}

func NewClient(cfg config.MarketDataConfig) *Client {
	rest := resty.New()
	rest.SetBaseURL(cfg.BaseURL)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rest.SetTimeout(timeout)
	if key := os.Getenv(cfg.APIKeyEnv); key != "" {
		rest.SetHeader("X-API-Key", key)
	}
	return &Client{rest: rest}
}

func (c *Client) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]Bar, error) {
	if c == nil || c.rest == nil {
		return nil, trading.ErrDataUnavailable
	}
	var out struct {
		Bars []Bar `json:"bars"`
	}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":    symbol,
			"timeframe": timeframe,
			"start":     start.UTC().Format(time.RFC3339),
			"end":       end.UTC().Format(time.RFC3339),
		}).
		SetResult(&out).
		Get("/v1/bars")
	if err != nil {
		return nil, fmt.Errorf("%w: bars %s: %v", trading.ErrDataUnavailable, symbol, err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: bars %s: rate limited", trading.ErrDataUnavailable, symbol)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: bars %s: status %d", trading.ErrDataUnavailable, symbol, resp.StatusCode())
	}
	return out.Bars, nil
}

func (c *Client) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	if c == nil || c.rest == nil {
		return Quote{}, trading.ErrDataUnavailable
	}
	var out Quote
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get("/v1/quote")
	if err != nil {
		return Quote{}, fmt.Errorf("%w: quote %s: %v", trading.ErrDataUnavailable, symbol, err)
	}
	if resp.IsError() {
		return Quote{}, fmt.Errorf("%w: quote %s: status %d", trading.ErrDataUnavailable, symbol, resp.StatusCode())
	}
	return out, nil
}

func (c *Client) GetDepth(ctx context.Context, symbol string) (DepthSnapshot, error) {
	if c == nil || c.rest == nil {
		return DepthSnapshot{}, trading.ErrDataUnavailable
	}
	var out DepthSnapshot
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get("/v1/depth")
	if err != nil {
		return DepthSnapshot{}, fmt.Errorf("%w: depth %s: %v", trading.ErrDataUnavailable, symbol, err)
	}
	if resp.IsError() {
		return DepthSnapshot{}, fmt.Errorf("%w: depth %s: status %d", trading.ErrDataUnavailable, symbol, resp.StatusCode())
	}
	return out, nil
}
