package market

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"

	"orchestrator/internal/cache"
	"orchestrator/pkg/exception"
)

const (
	_binanceBaseRestUrl = "https://api.binance.com"
)

// BinanceTickerPrice is the body of GET /api/v3/ticker/price.
type BinanceTickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// RestClient fetches a price when no stream value exists yet.
type RestClient struct {
	client  *http.Client
	baseURL string
}

// NewRestClient creates a client. An empty baseURL targets the public API.
func NewRestClient(client *http.Client, baseURL string) *RestClient {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if baseURL == "" {
		baseURL = _binanceBaseRestUrl
	}
	return &RestClient{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// TickerPrice returns the last price of symbol.
func (c *RestClient) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	u := c.baseURL + "/api/v3/ticker/price?symbol=" + url.QueryEscape(strings.ToUpper(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "get ticker price")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, errors.Wrapf(exception.ErrPriceUnavailable, "status: %d", resp.StatusCode)
	}

	var data BinanceTickerPrice
	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(&data); err != nil {
		return decimal.Zero, errors.Wrap(err, "decode ticker price")
	}
	return parsePrice(data.Price)
}

// PriceFetcher adapts TickerPrice to a cache fallback.
func (c *RestClient) PriceFetcher(symbol string) cache.FetchFunc[decimal.Decimal] {
	return func(ctx context.Context) (decimal.Decimal, error) {
		return c.TickerPrice(ctx, symbol)
	}
}
