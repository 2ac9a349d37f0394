package decision

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhenken/alertflow/internal/intent"
	"github.com/dhenken/alertflow/internal/positions"
	"github.com/dhenken/alertflow/internal/signal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTracker(t *testing.T) *positions.Tracker {
	t.Helper()
	tr, err := positions.OpenTracker(filepath.Join(t.TempDir(), "positions.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { tr.CloseStore() })
	return tr
}

func openGLDSpread(t *testing.T, tr *positions.Tracker, strategy signal.Strategy, openedAt time.Time) positions.Position {
	t.Helper()
	exp := time.Date(2027, 6, 17, 0, 0, 0, 0, time.UTC)
	sig := &signal.ParsedSignal{
		Ticker:   "GLD",
		Strategy: strategy,
		Legs: []signal.Leg{
			{Side: signal.Buy, Ratio: 1, Strike: dec("415"), Right: signal.Call},
			{Side: signal.Sell, Ratio: 1, Strike: dec("420"), Right: signal.Call},
		},
		Expiration: &exp,
	}
	ti := &intent.TradeIntent{ID: "ti-" + openedAt.Format("150405"), Quantity: 10}
	p := positions.NewPosition(sig, ti, dec("1900"), openedAt)
	require.NoError(t, tr.Open(p))
	return p
}

func TestClassifyEntry(t *testing.T) {
	tr := newTracker(t)
	cls := Classify(&signal.ParsedSignal{Ticker: "GLD", Strategy: signal.CallDebitSpread}, tr)
	assert.Equal(t, intent.ClassEntry, cls.Kind)
}

func TestClassifyExitMatchesOpenPosition(t *testing.T) {
	tr := newTracker(t)
	p := openGLDSpread(t, tr, signal.CallDebitSpread, time.Now().UTC())

	cls := Classify(&signal.ParsedSignal{Ticker: "GLD", Strategy: signal.Exit}, tr)
	require.Equal(t, intent.ClassExit, cls.Kind)
	assert.Equal(t, p.ID, cls.PositionID)
	assert.Equal(t, intent.SellToClose, cls.CloseAction)
	assert.Equal(t, 10, cls.Quantity)
	assert.False(t, cls.Ambiguous)
}

func TestClassifyExitCreditSpreadBuysToClose(t *testing.T) {
	tr := newTracker(t)
	openGLDSpread(t, tr, signal.CallCreditSpread, time.Now().UTC())

	cls := Classify(&signal.ParsedSignal{Ticker: "GLD", Strategy: signal.Exit}, tr)
	require.Equal(t, intent.ClassExit, cls.Kind)
	assert.Equal(t, intent.BuyToClose, cls.CloseAction)
}

func TestClassifyExitUnresolvedWhenNoMatch(t *testing.T) {
	tr := newTracker(t)
	cls := Classify(&signal.ParsedSignal{Ticker: "GLD", Strategy: signal.Exit}, tr)
	assert.Equal(t, intent.ClassExitUnresolved, cls.Kind)
	assert.NotEmpty(t, cls.Reason)
}

func TestClassifyExitAmbiguousClosesOldest(t *testing.T) {
	tr := newTracker(t)
	older := openGLDSpread(t, tr, signal.CallDebitSpread, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	openGLDSpread(t, tr, signal.CallDebitSpread, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))

	cls := Classify(&signal.ParsedSignal{Ticker: "GLD", Strategy: signal.Exit}, tr)
	require.Equal(t, intent.ClassExit, cls.Kind)
	assert.True(t, cls.Ambiguous)
	assert.Equal(t, older.ID, cls.PositionID)
}

func TestClassifyExitWithoutTicker(t *testing.T) {
	tr := newTracker(t)
	cls := Classify(&signal.ParsedSignal{Strategy: signal.Exit}, tr)
	assert.Equal(t, intent.ClassExitUnresolved, cls.Kind)
}
