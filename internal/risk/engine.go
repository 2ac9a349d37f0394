// Package risk computes position sizes from account equity and enforces
// the per-trade and daily risk caps. Eligibility by risk mode is decided
// before any arithmetic runs; exits always bypass eligibility because
// closing risk is always allowed.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dhenken/alertflow/internal/signal"
)

// Mode gates which strategies are eligible for sizing.
type Mode string

const (
	Conservative Mode = "CONSERVATIVE"
	Balanced     Mode = "BALANCED"
	Aggressive   Mode = "AGGRESSIVE"
)

// Profile is the operational trading-mode axis. CONSERVATIVE clamps the
// effective risk mode down to Conservative; STANDARD leaves the
// configured risk mode in effect.
type Profile string

const (
	ProfileConservative Profile = "CONSERVATIVE"
	ProfileStandard     Profile = "STANDARD"
)

// EffectiveMode resolves the two axes into the risk mode actually applied.
func EffectiveMode(configured Mode, profile Profile) Mode {
	if profile == ProfileConservative {
		return Conservative
	}
	return configured
}

// Caps are the hard limits sizing is clamped to.
type Caps struct {
	MaxContractsPerTrade int
	MaxOpenPositions     int
	MaxDailyRiskPct      decimal.Decimal
	DefaultSizePct       decimal.Decimal
}

// Violation explains a refused trade. It is a value, not a panic: risk
// refusals are expected outcomes.
type Violation struct {
	Reason string
}

func (v *Violation) Error() string { return v.Reason }

// Sized is the engine's accepted-sizing result.
type Sized struct {
	Contracts int
	RiskUSD   decimal.Decimal
}

// Engine sizes entries and keeps the daily risk budget. Single-writer,
// like the rest of the pipeline; the mutex covers the daily counters.
type Engine struct {
	mu            sync.Mutex
	mode          Mode
	caps          Caps
	dailyRiskUsed decimal.Decimal
	day           string
}

func NewEngine(mode Mode, caps Caps) *Engine {
	return &Engine{mode: mode, caps: caps, dailyRiskUsed: decimal.Zero}
}

func (e *Engine) Mode() Mode { return e.mode }

var hundred = decimal.NewFromInt(100)

// sharesPerContract converts the per-trade contract cap into a share cap
// for stock entries.
const sharesPerContract = 100

// Size computes the contract/share quantity for a signal, or a Violation.
// openRisk and openCount describe the current position book; equity is
// the account reading for this cycle.
func (e *Engine) Size(sig *signal.ParsedSignal, equity, openRisk decimal.Decimal, openCount int, now time.Time) (Sized, *Violation) {
	if sig.Strategy == signal.Exit {
		// exits are sized by the matched position, not by the engine
		return Sized{}, &Violation{Reason: "exit signals are not sized"}
	}
	if equity.LessThanOrEqual(decimal.Zero) {
		return Sized{}, &Violation{Reason: "account equity is zero or negative"}
	}
	if reason := e.eligibility(sig); reason != "" {
		return Sized{}, &Violation{Reason: reason}
	}

	sizePct := sig.SizePct
	if sizePct.LessThanOrEqual(decimal.Zero) {
		sizePct = e.caps.DefaultSizePct
	}
	budget := equity.Mul(sizePct)

	perContract, err := riskPerContract(sig)
	if err != nil {
		return Sized{}, &Violation{Reason: err.Error()}
	}

	var contracts int
	var riskUSD decimal.Decimal
	switch sig.Strategy {
	case signal.LongStock, signal.LongOption:
		// long quantities come from the alert, still clamped to the
		// per-trade cap; 100 shares of stock count as one
		// contract-equivalent. Budget prorates down with the clamp so
		// the daily tally tracks what was actually committed.
		requested := sig.Quantity
		limit := e.caps.MaxContractsPerTrade
		if sig.Strategy == signal.LongStock {
			limit *= sharesPerContract
		}
		contracts = requested
		if contracts > limit {
			contracts = limit
		}
		riskUSD = budget
		if requested > 0 && contracts < requested {
			riskUSD = budget.Mul(decimal.NewFromInt(int64(contracts))).
				Div(decimal.NewFromInt(int64(requested)))
		}
	default:
		contracts = int(budget.Div(perContract).IntPart())
		if contracts > e.caps.MaxContractsPerTrade {
			contracts = e.caps.MaxContractsPerTrade
		}
		riskUSD = perContract.Mul(decimal.NewFromInt(int64(contracts)))
	}
	if contracts <= 0 {
		return Sized{}, &Violation{Reason: fmt.Sprintf("size too small for %s%% risk", sizePct.Mul(hundred))}
	}

	e.mu.Lock()
	e.maybeResetDay(now)
	used := e.dailyRiskUsed
	e.mu.Unlock()

	if openCount >= e.caps.MaxOpenPositions {
		return Sized{}, &Violation{Reason: fmt.Sprintf("max open positions reached (%d)", e.caps.MaxOpenPositions)}
	}
	dailyLimit := equity.Mul(e.caps.MaxDailyRiskPct)
	if used.Add(riskUSD).GreaterThan(dailyLimit) {
		return Sized{}, &Violation{Reason: fmt.Sprintf(
			"daily risk limit would be exceeded (used $%s of $%s)", used.StringFixed(2), dailyLimit.StringFixed(2))}
	}
	if openRisk.Add(riskUSD).GreaterThan(dailyLimit) {
		return Sized{}, &Violation{Reason: fmt.Sprintf(
			"open-position risk would exceed daily cap ($%s open of $%s)", openRisk.StringFixed(2), dailyLimit.StringFixed(2))}
	}

	return Sized{Contracts: contracts, RiskUSD: riskUSD}, nil
}

// riskPerContract is the defined max loss of one contract.
// Debit spreads risk the paid debit; credit spreads risk width minus the
// collected credit. Both are per-100-multiplier option contracts.
func riskPerContract(sig *signal.ParsedSignal) (decimal.Decimal, error) {
	switch sig.Strategy {
	case signal.CallDebitSpread, signal.PutDebitSpread:
		if sig.LimitMax.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, fmt.Errorf("invalid limit price for debit spread")
		}
		return sig.LimitMax.Mul(hundred), nil
	case signal.CallCreditSpread, signal.PutCreditSpread:
		width := sig.SpreadWidth()
		if width.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, fmt.Errorf("cannot determine spread width for credit spread")
		}
		maxLoss := width.Sub(sig.LimitMin).Mul(hundred)
		if maxLoss.LessThanOrEqual(decimal.Zero) {
			maxLoss = width.Mul(hundred)
		}
		return maxLoss, nil
	case signal.LongStock, signal.LongOption:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("unknown strategy %s", sig.Strategy)
	}
}

func (e *Engine) eligibility(sig *signal.ParsedSignal) string {
	switch e.mode {
	case Conservative:
		if !sig.Strategy.IsSpread() {
			return fmt.Sprintf("risk mode CONSERVATIVE permits only defined-risk spreads, got %s", sig.Strategy)
		}
	case Balanced:
		if !sig.Strategy.IsSpread() && sig.Strategy != signal.LongStock && sig.Strategy != signal.LongOption {
			return fmt.Sprintf("risk mode BALANCED does not permit %s", sig.Strategy)
		}
	case Aggressive:
		// everything is eligible; 0DTE index trades are still subject to
		// the preflight DTE guard
	default:
		return fmt.Sprintf("unknown risk mode %s", e.mode)
	}
	return ""
}

// Commit spends daily budget after a filled entry.
func (e *Engine) Commit(riskUSD decimal.Decimal, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maybeResetDay(now)
	e.dailyRiskUsed = e.dailyRiskUsed.Add(riskUSD)
}

// Release returns daily budget when a same-day position is closed.
func (e *Engine) Release(riskUSD decimal.Decimal, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maybeResetDay(now)
	e.dailyRiskUsed = e.dailyRiskUsed.Sub(riskUSD)
	if e.dailyRiskUsed.LessThan(decimal.Zero) {
		e.dailyRiskUsed = decimal.Zero
	}
}

// ResetDaily zeroes the budget regardless of the day boundary.
func (e *Engine) ResetDaily() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dailyRiskUsed = decimal.Zero
}

// DailyRiskUsed reports the budget spent today.
func (e *Engine) DailyRiskUsed(now time.Time) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maybeResetDay(now)
	return e.dailyRiskUsed
}

func (e *Engine) maybeResetDay(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	if e.day != day {
		e.day = day
		e.dailyRiskUsed = decimal.Zero
	}
}
