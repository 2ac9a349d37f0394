package decision

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dhenken/alertflow/internal/intent"
	"github.com/dhenken/alertflow/internal/ledger"
)

// Check is one preflight gate's outcome.
type Check struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Summary string `json:"summary"`
}

// Report carries every gate's result. All gates run on every intent so
// the ledger shows the full picture, not just the first failure.
type Report struct {
	Checks []Check `json:"checks"`
}

func (r Report) OK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

// Failed lists the names of blocked gates.
func (r Report) Failed() []string {
	var names []string
	for _, c := range r.Checks {
		if !c.OK {
			names = append(names, c.Name)
		}
	}
	return names
}

// PreflightContext is the account and safety state the gates read.
type PreflightContext struct {
	Equity          decimal.Decimal
	OpenRisk        decimal.Decimal
	IntentRisk      decimal.Decimal
	MaxDailyRiskPct decimal.Decimal
	MinDTE          int
	Allow0DTESPX    bool
	LiveTrading     bool
	DryRun          bool
	Dedupe          *ledger.DedupeStore
	Now             time.Time
}

// Preflight runs the full gate battery over a built intent.
func Preflight(ti *intent.TradeIntent, pctx PreflightContext) Report {
	checks := []Check{
		checkCompleteness(ti),
		checkInstrument(ti),
		checkRiskCap(ti, pctx),
		checkDTE(ti, pctx),
		checkModeGuard(ti, pctx),
		checkDedupe(ti, pctx),
	}
	return Report{Checks: checks}
}

func checkCompleteness(ti *intent.TradeIntent) Check {
	const name = "completeness"
	switch {
	case ti == nil:
		return Check{Name: name, Summary: "no intent"}
	case ti.Underlying == "":
		return Check{Name: name, Summary: "missing underlying"}
	case ti.Quantity <= 0:
		return Check{Name: name, Summary: fmt.Sprintf("non-positive quantity %d", ti.Quantity)}
	case ti.OrderType == intent.Limit && ti.LimitPrice.LessThanOrEqual(decimal.Zero):
		return Check{Name: name, Summary: "limit order without a limit price"}
	case ti.InstrumentType != intent.InstrumentStock && ti.Expiration == nil:
		return Check{Name: name, Summary: "option intent without expiration"}
	}
	return Check{Name: name, OK: true, Summary: "intent complete"}
}

func checkInstrument(ti *intent.TradeIntent) Check {
	const name = "supported_instrument"
	if ti == nil {
		return Check{Name: name, Summary: "no intent"}
	}
	switch ti.InstrumentType {
	case intent.InstrumentStock, intent.InstrumentOption, intent.InstrumentSpread:
		return Check{Name: name, OK: true, Summary: string(ti.InstrumentType)}
	}
	return Check{Name: name, Summary: fmt.Sprintf("unsupported instrument %s", ti.InstrumentType)}
}

func checkRiskCap(ti *intent.TradeIntent, pctx PreflightContext) Check {
	const name = "risk_cap"
	if ti == nil {
		return Check{Name: name, Summary: "no intent"}
	}
	if isClose(ti.Action) {
		return Check{Name: name, OK: true, Summary: "closing trade, risk cap not applied"}
	}
	limit := pctx.Equity.Mul(pctx.MaxDailyRiskPct)
	total := pctx.OpenRisk.Add(pctx.IntentRisk)
	if total.GreaterThan(limit) {
		return Check{Name: name, Summary: fmt.Sprintf(
			"total risk $%s exceeds cap $%s", total.StringFixed(2), limit.StringFixed(2))}
	}
	return Check{Name: name, OK: true, Summary: fmt.Sprintf(
		"$%s of $%s", total.StringFixed(2), limit.StringFixed(2))}
}

func checkDTE(ti *intent.TradeIntent, pctx PreflightContext) Check {
	const name = "dte_guard"
	if ti == nil {
		return Check{Name: name, Summary: "no intent"}
	}
	if ti.InstrumentType == intent.InstrumentStock || ti.Expiration == nil {
		return Check{Name: name, OK: true, Summary: "no expiration to guard"}
	}
	if isClose(ti.Action) {
		return Check{Name: name, OK: true, Summary: "closing trade, DTE guard not applied"}
	}
	dte := daysBetween(pctx.Now, *ti.Expiration)
	if dte < 0 {
		return Check{Name: name, Summary: fmt.Sprintf("expiration %s already passed", ti.Expiration.Format("2006-01-02"))}
	}
	if dte == 0 && pctx.Allow0DTESPX && isSPX(ti.Underlying) {
		return Check{Name: name, OK: true, Summary: "0DTE index trade explicitly allowed"}
	}
	if dte < pctx.MinDTE {
		return Check{Name: name, Summary: fmt.Sprintf("%d DTE is below the %d-day minimum", dte, pctx.MinDTE)}
	}
	return Check{Name: name, OK: true, Summary: fmt.Sprintf("%d DTE", dte)}
}

func checkModeGuard(ti *intent.TradeIntent, pctx PreflightContext) Check {
	const name = "mode_guard"
	if ti == nil {
		return Check{Name: name, Summary: "no intent"}
	}
	needsLive := ti.Mode == intent.Live || ti.Mode == intent.Dual
	if !needsLive {
		return Check{Name: name, OK: true, Summary: string(ti.Mode)}
	}
	if !pctx.LiveTrading {
		return Check{Name: name, Summary: "live execution requires LIVE_TRADING=true"}
	}
	if pctx.DryRun {
		return Check{Name: name, Summary: "live execution blocked while DRY_RUN=true"}
	}
	return Check{Name: name, OK: true, Summary: "live trading armed"}
}

func checkDedupe(ti *intent.TradeIntent, pctx PreflightContext) Check {
	const name = "dedupe"
	if ti == nil {
		return Check{Name: name, Summary: "no intent"}
	}
	if pctx.Dedupe == nil {
		return Check{Name: name, OK: true, Summary: "dedupe store unavailable"}
	}
	if pctx.Dedupe.Executed(ti.Fingerprint) {
		return Check{Name: name, Summary: fmt.Sprintf("fingerprint %s already executed", ti.Fingerprint)}
	}
	return Check{Name: name, OK: true, Summary: "first execution for fingerprint"}
}

func isClose(a intent.Action) bool {
	return a == intent.BuyToClose || a == intent.SellToClose
}

func isSPX(underlying string) bool {
	return underlying == "SPX" || underlying == "SPXW"
}

// daysBetween is calendar days from now to the expiration date, both in UTC.
func daysBetween(now, exp time.Time) int {
	n := now.UTC()
	e := exp.UTC()
	nd := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	ed := time.Date(e.Year(), e.Month(), e.Day(), 0, 0, 0, 0, time.UTC)
	return int(ed.Sub(nd).Hours() / 24)
}
