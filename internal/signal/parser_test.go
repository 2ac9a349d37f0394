package signal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

const gldAlert = "GLD leap bullish call debit spread\n\n6/17/2027 exp\n\n+1 415 C / -1 420 C\nLimit 1.85-1.9 debit to open\n\n2% size"

func TestParse_CallDebitSpread(t *testing.T) {
	sig, ns := Parse(gldAlert, now)
	require.Nil(t, ns)
	require.NotNil(t, sig)

	assert.Equal(t, "GLD", sig.Ticker)
	assert.Equal(t, CallDebitSpread, sig.Strategy)
	require.Len(t, sig.Legs, 2)
	assert.Equal(t, Leg{Side: Buy, Ratio: 1, Strike: decimal.NewFromInt(415), Right: Call}, sig.Legs[0])
	assert.Equal(t, Leg{Side: Sell, Ratio: 1, Strike: decimal.NewFromInt(420), Right: Call}, sig.Legs[1])
	assert.True(t, sig.LimitMax.Equal(decimal.RequireFromString("1.9")), "limit max %s", sig.LimitMax)
	assert.True(t, sig.LimitMin.Equal(decimal.RequireFromString("1.85")))
	assert.Equal(t, Debit, sig.LimitKind)
	assert.True(t, sig.SizePct.Equal(decimal.RequireFromString("0.02")))
	require.NotNil(t, sig.Expiration)
	assert.Equal(t, time.Date(2027, 6, 17, 0, 0, 0, 0, time.UTC), *sig.Expiration)
	assert.False(t, sig.Degraded)
	assert.NotEmpty(t, sig.Fingerprint)
}

func TestParse_CreditSpread(t *testing.T) {
	raw := "SPX bear call credit spread\n\n12/12/26 exp\n\n-1 6860 C / +1 6865 C\nLimit 2.6-2.7 credit to open\n\n1% size"
	sig, ns := Parse(raw, now)
	require.Nil(t, ns)
	assert.Equal(t, CallCreditSpread, sig.Strategy)
	assert.Equal(t, "SPX", sig.Ticker)
	require.Len(t, sig.Legs, 2)
	assert.Equal(t, Sell, sig.Legs[0].Side)
	assert.Equal(t, Buy, sig.Legs[1].Side)
	assert.Equal(t, Credit, sig.LimitKind)
	// credit orders submit the minimum acceptable credit
	assert.True(t, sig.OrderLimitPrice().Equal(decimal.RequireFromString("2.6")))
	assert.True(t, sig.SpreadWidth().Equal(decimal.NewFromInt(5)))
}

func TestParse_TwoDigitYearResolvesFuture(t *testing.T) {
	sig, ns := Parse("GLD put debit spread\n\n6/17/27 exp\n\n+1 180 P / -1 175 P\nLimit 1.1-1.2 debit\n\n2% size", now)
	require.Nil(t, ns)
	require.NotNil(t, sig.Expiration)
	assert.Equal(t, 2027, sig.Expiration.Year())
	assert.Equal(t, PutDebitSpread, sig.Strategy)
}

func TestParse_MonthNameExpiration(t *testing.T) {
	sig, ns := Parse("Long SPY 480C December exp, 2 contracts", now)
	require.Nil(t, ns)
	require.NotNil(t, sig.Expiration)
	assert.Equal(t, time.December, sig.Expiration.Month())
	assert.Equal(t, now.Year(), sig.Expiration.Year())
	assert.Equal(t, LongOption, sig.Strategy)
}

func TestParse_LongForms(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		strategy Strategy
		ticker   string
		quantity int
	}{
		{"bare long", "Long AAPL", LongStock, "AAPL", 1},
		{"shares", "Buying 100 shares of TSLA here", LongStock, "TSLA", 100},
		{"calls", "Buying QQQ calls, 3 contracts", LongOption, "QQQ", 3},
		{"strike and right", "Long SPY 480C 1/16/2026 exp, 1 contract", LongOption, "SPY", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig, ns := Parse(tc.raw, now)
			require.Nil(t, ns, "raw: %q", tc.raw)
			assert.Equal(t, tc.strategy, sig.Strategy)
			assert.Equal(t, tc.ticker, sig.Ticker)
			assert.Equal(t, tc.quantity, sig.Quantity)
		})
	}
}

func TestParse_LowercaseWordsAreNotTickers(t *testing.T) {
	cases := []struct{ name, raw string }{
		{"long term talk", "staying long term on this market, be patient out there folks"},
		{"buying talk", "buying more of this dip tomorrow if we stay weak"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig, ns := Parse(tc.raw, now)
			assert.Nil(t, sig)
			require.NotNil(t, ns)
		})
	}
}

func TestParse_ExitAlert(t *testing.T) {
	sig, ns := Parse("Exit GLD spread here, take profits", now)
	require.Nil(t, ns)
	assert.Equal(t, Exit, sig.Strategy)
	assert.Equal(t, "GLD", sig.Ticker)
	assert.Empty(t, sig.Legs)
}

func TestParse_ExitWithLegs(t *testing.T) {
	sig, ns := Parse("Closing the GLD position +1 415 C / -1 420 C for a win", now)
	require.Nil(t, ns)
	assert.Equal(t, Exit, sig.Strategy)
	require.Len(t, sig.Legs, 2)
}

func TestParse_NonSignal(t *testing.T) {
	cases := []struct{ name, raw string }{
		{"empty", "   "},
		{"assignment talk", "Heads up, the short puts will be assigned tomorrow"},
		{"market commentary", "Market update: watch out below, futures red"},
		{"feed chrome", "Like\n12 comments"},
		{"short noise", "gm everyone"},
		{"no legs", "NVDA looking strong into earnings 6/19/2026 exp with size"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig, ns := Parse(tc.raw, now)
			assert.Nil(t, sig)
			require.NotNil(t, ns)
			assert.NotEmpty(t, ns.Reason)
		})
	}
}

func TestParse_DegradedMissingLimit(t *testing.T) {
	sig, ns := Parse("GLD call debit spread 6/17/2027 exp +1 415 C / -1 420 C with 2% size", now)
	require.Nil(t, ns)
	assert.True(t, sig.Degraded)
	assert.Equal(t, "missing limit price", sig.DegradedReason)
}

func TestParse_DegradedMissingSize(t *testing.T) {
	sig, ns := Parse("GLD call debit spread 6/17/2027 exp +1 415 C / -1 420 C Limit 1.85 debit", now)
	require.Nil(t, ns)
	assert.True(t, sig.Degraded)
	assert.Equal(t, "missing size indicator", sig.DegradedReason)
}

func TestFingerprint_StableUnderWhitespace(t *testing.T) {
	a := Fingerprint("Exit GLD  spread\nhere")
	b := Fingerprint("exit gld spread here")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Fingerprint("exit slv spread here"))
}

func TestParse_Total(t *testing.T) {
	// parse returns exactly one of signal or reason for arbitrary junk
	for _, raw := range []string{"", "???", "+1 C", "Limit debit", "\x00\xff", "exit"} {
		sig, ns := Parse(raw, now)
		assert.True(t, (sig == nil) != (ns == nil), "raw %q", raw)
	}
}
