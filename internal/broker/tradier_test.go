package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhenken/alertflow/internal/intent"
	"github.com/dhenken/alertflow/internal/signal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func spreadIntent() *intent.TradeIntent {
	exp := time.Date(2027, 6, 17, 0, 0, 0, 0, time.UTC)
	return &intent.TradeIntent{
		ID:             "ti-1",
		InstrumentType: intent.InstrumentSpread,
		Underlying:     "GLD",
		Action:         intent.BuyToOpen,
		OrderType:      intent.Limit,
		LimitPrice:     dec("1.9"),
		Quantity:       10,
		Expiration:     &exp,
		Legs: []signal.Leg{
			{Side: signal.Buy, Ratio: 1, Strike: dec("415"), Right: signal.Call},
			{Side: signal.Sell, Ratio: 1, Strike: dec("420"), Right: signal.Call},
		},
	}
}

func TestOCCSymbol(t *testing.T) {
	leg := signal.Leg{Side: signal.Buy, Ratio: 1, Strike: dec("415"), Right: signal.Call}
	assert.Equal(t, "GLD270617C00415000", occSymbol("GLD", "270617", leg))

	leg = signal.Leg{Side: signal.Sell, Ratio: 1, Strike: dec("420.5"), Right: signal.Put}
	assert.Equal(t, "SPXW270617P00420500", occSymbol("SPXW", "270617", leg))
}

func TestTradierMultilegForm(t *testing.T) {
	tr := NewTradier(TradierConfig{Token: "tok", AccountID: "ACC1"}, zerolog.Nop())

	form, err := tr.orderForm(spreadIntent())
	require.NoError(t, err)

	assert.Equal(t, "multileg", form["class"])
	assert.Equal(t, "GLD", form["symbol"])
	assert.Equal(t, "limit", form["type"])
	assert.Equal(t, "1.9", form["price"])
	assert.Equal(t, "GLD270617C00415000", form["option_symbol[0]"])
	assert.Equal(t, "buy_to_open", form["side[0]"])
	assert.Equal(t, "10", form["quantity[0]"])
	assert.Equal(t, "GLD270617C00420000", form["option_symbol[1]"])
	assert.Equal(t, "sell_to_open", form["side[1]"])
	assert.Equal(t, "10", form["quantity[1]"])
}

func TestTradierCloseInvertsLegSides(t *testing.T) {
	tr := NewTradier(TradierConfig{Token: "tok", AccountID: "ACC1"}, zerolog.Nop())
	ti := spreadIntent()
	ti.Action = intent.SellToClose

	form, err := tr.orderForm(ti)
	require.NoError(t, err)
	assert.Equal(t, "sell_to_close", form["side[0]"])
	assert.Equal(t, "buy_to_close", form["side[1]"])
}

func TestTradierPlaceOrder(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "multileg", r.PostForm.Get("class"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"order":{"id":8642,"status":"ok"}}`))
	}))
	defer srv.Close()

	tr := NewTradier(TradierConfig{Token: "tok", AccountID: "ACC1", BaseURL: srv.URL}, zerolog.Nop())
	orderID, fill, err := tr.PlaceOrder(context.Background(), spreadIntent())
	require.NoError(t, err)
	assert.Equal(t, "8642", orderID)
	assert.True(t, fill.Equal(dec("1.9")))
	assert.Equal(t, "/v1/accounts/ACC1/orders", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestTradierOrderRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"errors":{"error":["margin requirement not met"]}}`))
	}))
	defer srv.Close()

	tr := NewTradier(TradierConfig{Token: "tok", AccountID: "ACC1", BaseURL: srv.URL}, zerolog.Nop())
	_, _, err := tr.PlaceOrder(context.Background(), spreadIntent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "margin requirement")
}

func TestTradierEquity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts/ACC1/balances", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"balances":{"total_equity":100000.50}}`))
	}))
	defer srv.Close()

	tr := NewTradier(TradierConfig{Token: "tok", AccountID: "ACC1", BaseURL: srv.URL}, zerolog.Nop())
	eq, err := tr.Equity(context.Background())
	require.NoError(t, err)
	assert.True(t, eq.Equal(dec("100000.50")))
}
