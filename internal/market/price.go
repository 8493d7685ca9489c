package market

import (
	"context"
	"strings"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"orchestrator/internal/cache"
	"orchestrator/internal/stream"
	"orchestrator/pkg/exception"
)

const (
	_binanceBaseWsUrl = "wss://stream.binance.com:9443/ws"
)

// BinanceTrade is one message of the '<symbol>@trade' stream.
type BinanceTrade struct {
	EventType string          `json:"e"`
	EventTime int64           `json:"E"`
	Symbol    string          `json:"s"`
	TradeID   int64           `json:"t"`
	Price     decimal.Decimal `json:"p"`
	Quantity  decimal.Decimal `json:"q"`
	TradeTime int64           `json:"T"`
}

// PriceFeed streams trades of one pair into the price cache.
type PriceFeed struct {
	symbol  string
	baseURL string
	price   *cache.Value[decimal.Decimal]
	tracker *stream.Tracker
}

// NewPriceFeed creates a feed for symbol, e.g. "SOLUSDT".
func NewPriceFeed(symbol string, price *cache.Value[decimal.Decimal]) *PriceFeed {
	return &PriceFeed{
		symbol:  strings.ToUpper(symbol),
		baseURL: _binanceBaseWsUrl,
		price:   price,
		tracker: stream.NewTracker("price:" + strings.ToLower(symbol)),
	}
}

// State returns the connection state.
func (f *PriceFeed) State() stream.State {
	return f.tracker.State()
}

func (f *PriceFeed) url() string {
	return f.baseURL + "/" + strings.ToLower(f.symbol) + "@trade"
}

// Run connects once and streams until the transport fails or ctx is done.
// It does not reconnect, see stream.Supervise.
func (f *PriceFeed) Run(ctx context.Context) error {
	if !f.tracker.Transition(stream.StateConnecting) {
		return exception.ErrStreamAlreadyRunning
	}
	defer f.tracker.Transition(stream.StateDisconnected)

	wss := ws.New(ctx, f.url())
	defer wss.Close()

	if err := wss.Start(ctx); err != nil {
		return errors.Wrap(exception.ErrStreamTransport, "start wss, err: "+err.Error())
	}

	ch, cancel := wss.Subscribe()
	defer cancel()

	f.tracker.Transition(stream.StateStreaming)
	logs.Infof("websocket connected to binance %s trade stream", f.symbol)

	for {
		select {
		case <-sys.Shutdown():
			return nil
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return errors.Wrap(exception.ErrStreamTransport, "binance trade stream closed")
			}

			var trade BinanceTrade
			if err := m.Unmarshal(&trade); err != nil {
				logs.Errorf("unmarshal trade, err: %+v", err)
				continue
			}

			f.apply(trade)
		}
	}
}

// apply stores the trade price. Messages of other streams, malformed and
// non-positive prices are ignored.
func (f *PriceFeed) apply(trade BinanceTrade) bool {
	if trade.EventType != "trade" || !strings.EqualFold(trade.Symbol, f.symbol) {
		return false
	}
	price, err := parsePrice(trade.Price)
	if err != nil {
		logs.Warnf("ignore %s trade %d, err: %+v", f.symbol, trade.TradeID, err)
		return false
	}
	f.price.Set(price)
	return true
}

// parsePrice validates a decimal received from the wire. Decimal methods
// panic on text that is not a number.
func parsePrice(raw decimal.Decimal) (decimal.Decimal, error) {
	price, err := decimal.New(string(raw))
	if err != nil {
		return decimal.Zero, errors.Wrapf(exception.ErrPriceUnavailable, "malformed price %q, err: %s", string(raw), err.Error())
	}
	if price.Sign() <= 0 {
		return decimal.Zero, errors.Wrapf(exception.ErrPriceUnavailable, "non-positive price: %s", price.String())
	}
	return price, nil
}
