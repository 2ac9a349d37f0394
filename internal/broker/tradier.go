package broker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dhenken/alertflow/internal/intent"
	"github.com/dhenken/alertflow/internal/signal"
)

const (
	tradierSandboxURL  = "https://sandbox.tradier.com"
	defaultHTTPTimeout = 30 * time.Second
)

// Tradier places stock, single-leg option and multi-leg spread orders
// through Tradier's REST API. Spreads go through the multileg order
// class with one indexed form field per leg.
type Tradier struct {
	client    *resty.Client
	accountID string
	log       zerolog.Logger
}

type TradierConfig struct {
	Token     string
	AccountID string
	BaseURL   string
}

func NewTradier(cfg TradierConfig, log zerolog.Logger) *Tradier {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = tradierSandboxURL
	}
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(defaultHTTPTimeout)
	client.SetAuthToken(cfg.Token)
	client.SetHeader("Accept", "application/json")
	return &Tradier{client: client, accountID: cfg.AccountID, log: log.With().Str("broker", "tradier").Logger()}
}

func (t *Tradier) Name() string { return "tradier" }

type tradierOrderResponse struct {
	Order struct {
		ID     int    `json:"id"`
		Status string `json:"status"`
	} `json:"order"`
	Errors struct {
		Error []string `json:"error"`
	} `json:"errors"`
}

type tradierBalancesResponse struct {
	Balances struct {
		TotalEquity decimal.Decimal `json:"total_equity"`
	} `json:"balances"`
}

// Equity reads total account equity from the balances endpoint.
func (t *Tradier) Equity(ctx context.Context) (decimal.Decimal, error) {
	var out tradierBalancesResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/v1/accounts/%s/balances", t.accountID))
	if err != nil {
		return decimal.Zero, fmt.Errorf("tradier balances: %w", err)
	}
	if resp.IsError() {
		return decimal.Zero, fmt.Errorf("tradier balances: status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.Balances.TotalEquity, nil
}

func (t *Tradier) PlaceOrder(ctx context.Context, ti *intent.TradeIntent) (string, decimal.Decimal, error) {
	form, err := t.orderForm(ti)
	if err != nil {
		return "", decimal.Zero, err
	}

	var out tradierOrderResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&out).
		Post(fmt.Sprintf("/v1/accounts/%s/orders", t.accountID))
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("tradier order: %w", err)
	}
	if resp.IsError() {
		return "", decimal.Zero, fmt.Errorf("tradier order: status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Errors.Error) > 0 {
		return "", decimal.Zero, fmt.Errorf("tradier order rejected: %v", out.Errors.Error)
	}

	orderID := strconv.Itoa(out.Order.ID)
	fill := decimal.Zero
	if ti.OrderType == intent.Limit {
		fill = ti.LimitPrice
	}
	t.log.Info().Str("order_id", orderID).Str("status", out.Order.Status).
		Str("underlying", ti.Underlying).Msg("order accepted")
	return orderID, fill, nil
}

func (t *Tradier) orderForm(ti *intent.TradeIntent) (map[string]string, error) {
	form := map[string]string{
		"symbol":   ti.Underlying,
		"duration": "day",
		"type":     tradierOrderType(ti.OrderType),
	}
	if ti.OrderType == intent.Limit {
		form["price"] = ti.LimitPrice.String()
	}

	switch ti.InstrumentType {
	case intent.InstrumentStock:
		form["class"] = "equity"
		form["side"] = tradierEquitySide(ti.Action)
		form["quantity"] = strconv.Itoa(ti.Quantity)
	case intent.InstrumentOption:
		if len(ti.Legs) != 1 || ti.Expiration == nil {
			return nil, fmt.Errorf("option order needs exactly one leg and an expiration")
		}
		form["class"] = "option"
		form["option_symbol"] = occSymbol(ti.Underlying, ti.Expiration.Format("060102"), ti.Legs[0])
		form["side"] = tradierOptionSide(ti.Action)
		form["quantity"] = strconv.Itoa(ti.Quantity)
	case intent.InstrumentSpread:
		if len(ti.Legs) < 2 || ti.Expiration == nil {
			return nil, fmt.Errorf("spread order needs at least two legs and an expiration")
		}
		form["class"] = "multileg"
		yymmdd := ti.Expiration.Format("060102")
		for i, leg := range ti.Legs {
			idx := strconv.Itoa(i)
			form["option_symbol["+idx+"]"] = occSymbol(ti.Underlying, yymmdd, leg)
			form["side["+idx+"]"] = tradierLegSide(ti.Action, leg)
			form["quantity["+idx+"]"] = strconv.Itoa(ti.Quantity * leg.Ratio)
		}
	default:
		return nil, fmt.Errorf("unsupported instrument %s", ti.InstrumentType)
	}
	return form, nil
}

func tradierOrderType(ot intent.OrderType) string {
	if ot == intent.Limit {
		return "limit"
	}
	return "market"
}

func tradierEquitySide(action intent.Action) string {
	switch action {
	case intent.BuyToOpen, intent.BuyToClose:
		return "buy"
	default:
		return "sell"
	}
}

func tradierOptionSide(action intent.Action) string {
	switch action {
	case intent.BuyToOpen:
		return "buy_to_open"
	case intent.BuyToClose:
		return "buy_to_close"
	case intent.SellToOpen:
		return "sell_to_open"
	default:
		return "sell_to_close"
	}
}

// tradierLegSide maps the spread-level action onto each leg. A spread
// opened by buying has its long legs buy_to_open and short legs
// sell_to_open; closing inverts open and close for every leg.
func tradierLegSide(action intent.Action, leg signal.Leg) string {
	opening := action == intent.BuyToOpen || action == intent.SellToOpen
	longLeg := leg.Side == signal.Buy
	if !opening {
		longLeg = !longLeg
	}
	switch {
	case opening && longLeg:
		return "buy_to_open"
	case opening && !longLeg:
		return "sell_to_open"
	case longLeg:
		return "buy_to_close"
	default:
		return "sell_to_close"
	}
}
