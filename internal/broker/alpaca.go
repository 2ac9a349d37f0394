// Package broker adapts trade intents to real broker APIs. Each adapter
// satisfies executor.BrokerClient and reports equity for sizing.
package broker

import (
	"context"
	"fmt"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dhenken/alertflow/internal/intent"
	"github.com/dhenken/alertflow/internal/signal"
)

const (
	alpacaPaperURL = "https://paper-api.alpaca.markets"
	alpacaLiveURL  = "https://api.alpaca.markets"
)

// Alpaca places stock and single-leg option orders. Multi-leg spreads
// are routed to Tradier instead; Alpaca's order API takes one symbol per
// order.
type Alpaca struct {
	client *alpaca.Client
	log    zerolog.Logger
}

type AlpacaConfig struct {
	APIKey    string
	APISecret string
	Paper     bool
}

func NewAlpaca(cfg AlpacaConfig, log zerolog.Logger) *Alpaca {
	baseURL := alpacaLiveURL
	if cfg.Paper {
		baseURL = alpacaPaperURL
	}
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   baseURL,
	})
	return &Alpaca{client: client, log: log.With().Str("broker", "alpaca").Logger()}
}

func (a *Alpaca) Name() string { return "alpaca" }

// Equity reads the current account equity for position sizing.
func (a *Alpaca) Equity(_ context.Context) (decimal.Decimal, error) {
	acct, err := a.client.GetAccount()
	if err != nil {
		return decimal.Zero, fmt.Errorf("alpaca account: %w", err)
	}
	return acct.Equity, nil
}

func (a *Alpaca) PlaceOrder(_ context.Context, ti *intent.TradeIntent) (string, decimal.Decimal, error) {
	if ti.InstrumentType == intent.InstrumentSpread {
		return "", decimal.Zero, fmt.Errorf("alpaca adapter does not place multi-leg spreads")
	}

	symbol := ti.Underlying
	if ti.InstrumentType == intent.InstrumentOption {
		if len(ti.Legs) != 1 || ti.Expiration == nil {
			return "", decimal.Zero, fmt.Errorf("option order needs exactly one leg and an expiration")
		}
		symbol = occSymbol(ti.Underlying, ti.Expiration.Format("060102"), ti.Legs[0])
	}

	qty := decimal.NewFromInt(int64(ti.Quantity))
	req := alpaca.PlaceOrderRequest{
		Symbol:      symbol,
		Qty:         &qty,
		Side:        alpacaSide(ti.Action),
		Type:        alpacaOrderType(ti.OrderType),
		TimeInForce: alpaca.Day,
	}
	req.PositionIntent = alpacaPositionIntent(ti.Action)
	if ti.OrderType == intent.Limit {
		limit := ti.LimitPrice
		req.LimitPrice = &limit
	}

	order, err := a.client.PlaceOrder(req)
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("alpaca order: %w", err)
	}

	fill := decimal.Zero
	if order.FilledAvgPrice != nil {
		fill = *order.FilledAvgPrice
	} else if ti.OrderType == intent.Limit {
		fill = ti.LimitPrice
	}
	a.log.Info().Str("order_id", order.ID).Str("symbol", symbol).Msg("order accepted")
	return order.ID, fill, nil
}

func alpacaSide(action intent.Action) alpaca.Side {
	switch action {
	case intent.BuyToOpen, intent.BuyToClose:
		return alpaca.Buy
	default:
		return alpaca.Sell
	}
}

func alpacaOrderType(ot intent.OrderType) alpaca.OrderType {
	if ot == intent.Limit {
		return alpaca.Limit
	}
	return alpaca.Market
}

func alpacaPositionIntent(action intent.Action) alpaca.PositionIntent {
	switch action {
	case intent.BuyToOpen:
		return alpaca.BuyToOpen
	case intent.BuyToClose:
		return alpaca.BuyToClose
	case intent.SellToOpen:
		return alpaca.SellToOpen
	default:
		return alpaca.SellToClose
	}
}

// occSymbol builds the OCC option symbol, e.g. GLD270617C00415000.
func occSymbol(underlying, yymmdd string, leg signal.Leg) string {
	right := "C"
	if leg.Right == signal.Put {
		right = "P"
	}
	milli := leg.Strike.Mul(decimal.NewFromInt(1000)).IntPart()
	return fmt.Sprintf("%s%s%s%08d", strings.ToUpper(underlying), yymmdd, right, milli)
}
