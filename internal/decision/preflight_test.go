package decision

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhenken/alertflow/internal/intent"
	"github.com/dhenken/alertflow/internal/ledger"
)

var preflightNow = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func baseContext(t *testing.T) PreflightContext {
	t.Helper()
	dd, err := ledger.OpenDedupe(filepath.Join(t.TempDir(), "dedupe.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { dd.Close() })
	return PreflightContext{
		Equity:          dec("100000"),
		OpenRisk:        decimal.Zero,
		IntentRisk:      dec("1900"),
		MaxDailyRiskPct: dec("0.10"),
		MinDTE:          1,
		Dedupe:          dd,
		Now:             preflightNow,
	}
}

func baseIntent() *intent.TradeIntent {
	exp := time.Date(2027, 6, 17, 0, 0, 0, 0, time.UTC)
	return &intent.TradeIntent{
		ID:             "ti-1",
		Mode:           intent.Paper,
		InstrumentType: intent.InstrumentSpread,
		Underlying:     "GLD",
		Action:         intent.BuyToOpen,
		OrderType:      intent.Limit,
		LimitPrice:     dec("1.9"),
		Quantity:       10,
		Expiration:     &exp,
		Fingerprint:    "abc123",
	}
}

func checkByName(t *testing.T, r Report, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q missing from report", name)
	return Check{}
}

func TestPreflightAllPass(t *testing.T) {
	r := Preflight(baseIntent(), baseContext(t))
	assert.True(t, r.OK())
	assert.Len(t, r.Checks, 6)
	assert.Empty(t, r.Failed())
}

func TestPreflightRunsEveryGate(t *testing.T) {
	// break several gates at once; every failure must be reported
	pctx := baseContext(t)
	pctx.IntentRisk = dec("50000")
	ti := baseIntent()
	ti.Quantity = 0
	ti.Mode = intent.Live

	r := Preflight(ti, pctx)
	assert.False(t, r.OK())
	assert.Len(t, r.Checks, 6)
	assert.ElementsMatch(t, []string{"completeness", "risk_cap", "mode_guard"}, r.Failed())
}

func TestRiskCapSkippedForCloses(t *testing.T) {
	pctx := baseContext(t)
	pctx.IntentRisk = dec("50000")
	ti := baseIntent()
	ti.Action = intent.SellToClose

	r := Preflight(ti, pctx)
	assert.True(t, checkByName(t, r, "risk_cap").OK)
}

func TestDTEGuard(t *testing.T) {
	pctx := baseContext(t)
	ti := baseIntent()
	sameDay := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	ti.Expiration = &sameDay

	r := Preflight(ti, pctx)
	assert.False(t, checkByName(t, r, "dte_guard").OK)

	// 0DTE allowed only for SPX, only when explicitly enabled
	ti.Underlying = "SPX"
	r = Preflight(ti, pctx)
	assert.False(t, checkByName(t, r, "dte_guard").OK)

	pctx.Allow0DTESPX = true
	r = Preflight(ti, pctx)
	assert.True(t, checkByName(t, r, "dte_guard").OK)

	past := time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC)
	ti.Expiration = &past
	r = Preflight(ti, pctx)
	assert.False(t, checkByName(t, r, "dte_guard").OK)
}

func TestModeGuard(t *testing.T) {
	pctx := baseContext(t)
	ti := baseIntent()
	ti.Mode = intent.Live

	r := Preflight(ti, pctx)
	assert.False(t, checkByName(t, r, "mode_guard").OK)

	pctx.LiveTrading = true
	pctx.DryRun = true
	r = Preflight(ti, pctx)
	assert.False(t, checkByName(t, r, "mode_guard").OK)

	pctx.DryRun = false
	r = Preflight(ti, pctx)
	assert.True(t, checkByName(t, r, "mode_guard").OK)
}

func TestDedupeGate(t *testing.T) {
	pctx := baseContext(t)
	ti := baseIntent()

	require.NoError(t, pctx.Dedupe.Record(ti.Fingerprint, ledger.OutcomeExecuted, "filled"))
	r := Preflight(ti, pctx)
	assert.False(t, checkByName(t, r, "dedupe").OK)
	assert.Contains(t, r.Failed(), "dedupe")
}
