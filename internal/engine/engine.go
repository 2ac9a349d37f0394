// Package engine runs the alert pipeline: fetch, parse, classify, size,
// preflight, execute, record. Alerts are processed one at a time in
// arrival order; nothing in the cycle runs concurrently.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dhenken/alertflow/internal/decision"
	"github.com/dhenken/alertflow/internal/executor"
	"github.com/dhenken/alertflow/internal/intent"
	"github.com/dhenken/alertflow/internal/ledger"
	"github.com/dhenken/alertflow/internal/modes"
	"github.com/dhenken/alertflow/internal/observ"
	"github.com/dhenken/alertflow/internal/positions"
	"github.com/dhenken/alertflow/internal/review"
	"github.com/dhenken/alertflow/internal/risk"
	"github.com/dhenken/alertflow/internal/signal"
	"github.com/dhenken/alertflow/internal/source"
)

// EquityProvider reports account equity for sizing. Live modes ask the
// broker; paper and historical runs use a fixed figure.
type EquityProvider interface {
	Equity(ctx context.Context) (decimal.Decimal, error)
}

// StaticEquity is the paper-mode equity provider.
type StaticEquity struct{ Value decimal.Decimal }

func (s StaticEquity) Equity(context.Context) (decimal.Decimal, error) { return s.Value, nil }

// Settings are the engine knobs that do not live in a dependency.
type Settings struct {
	PollInterval    time.Duration
	MaxDailyRiskPct decimal.Decimal
	MinDTE          int
	Allow0DTESPX    bool
	LiveTrading     bool
	DryRun          bool
	ReviewRequired  bool
}

// Deps wires the engine to its collaborators.
type Deps struct {
	Source  source.Source
	Tracker *positions.Tracker
	Dedupe  *ledger.DedupeStore
	Risk    *risk.Engine
	Modes   *modes.Manager
	Router  *executor.Router
	Review  *review.Queue
	Equity  EquityProvider

	RawLog    *ledger.Store
	ParsedLog *ledger.Store
	IntentLog *ledger.Store
	ResultLog *ledger.Store

	Log   zerolog.Logger
	Clock func() time.Time
}

type Engine struct {
	d   Deps
	s   Settings
	log zerolog.Logger
}

func New(d Deps, s Settings) *Engine {
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{d: d, s: s, log: d.Log.With().Str("component", "engine").Logger()}
}

// Run polls the source until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.s.PollInterval)
	defer ticker.Stop()

	e.log.Info().Dur("poll_interval", e.s.PollInterval).
		Str("effective_mode", string(e.d.Modes.Effective())).Msg("engine started")

	for {
		if err := e.RunOnce(ctx); err != nil {
			e.log.Error().Err(err).Msg("poll cycle failed")
		}
		select {
		case <-ctx.Done():
			e.log.Info().Msg("engine stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce fetches pending alerts and processes each one. A panic while
// handling one alert is contained to that alert; the rest of the batch
// still runs.
func (e *Engine) RunOnce(ctx context.Context) error {
	alerts, err := e.d.Source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch alerts: %w", err)
	}
	if len(alerts) == 0 {
		return nil
	}

	// one equity reading per cycle; every alert in the batch sizes
	// against the same account snapshot
	equity, err := e.d.Equity.Equity(ctx)
	if err != nil {
		return fmt.Errorf("equity read: %w", err)
	}

	for _, alert := range alerts {
		e.handleAlert(ctx, alert, equity)
	}
	return nil
}

func (e *Engine) handleAlert(ctx context.Context, alert source.RawAlert, equity decimal.Decimal) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Str("alert", truncate(alert.Text, 120)).
				Msg("alert handler panicked")
		}
	}()

	observ.AlertsIngested.Inc()
	if err := e.d.RawLog.Append(alert); err != nil {
		e.log.Error().Err(err).Msg("raw ledger append failed")
		return
	}

	sig, notSig := signal.Parse(alert.Text, alert.FetchedAt)
	if notSig != nil {
		observ.SignalsParsed.WithLabelValues("not_signal").Inc()
		e.log.Debug().Str("reason", notSig.Reason).Str("alert", truncate(alert.Text, 80)).
			Msg("alert is not a trade signal")
		return
	}
	observ.SignalsParsed.WithLabelValues("signal").Inc()
	if err := e.d.ParsedLog.Append(sig); err != nil {
		e.log.Error().Err(err).Msg("parsed ledger append failed")
		return
	}

	log := e.log.With().Str("fingerprint", sig.Fingerprint).Str("ticker", sig.Ticker).
		Str("strategy", string(sig.Strategy)).Logger()

	if e.d.Dedupe.Executed(sig.Fingerprint) {
		observ.DedupeHits.Inc()
		log.Info().Msg("fingerprint already executed, skipping")
		e.recordResult(intent.ExecutionResult{
			Status: intent.SkippedDuplicate,
			Reason: "fingerprint already executed",
		})
		return
	}

	cls := decision.Classify(sig, e.d.Tracker)
	switch cls.Kind {
	case intent.ClassUnknown:
		log.Warn().Str("reason", cls.Reason).Msg("signal could not be classified")
		return
	case intent.ClassExitUnresolved:
		log.Warn().Str("reason", cls.Reason).Msg("exit alert matches no open position")
		e.skip(sig.Fingerprint, intent.SkippedUnresolved, cls.Reason, log)
		return
	}

	// degraded signals parsed without a mandatory detail never execute
	// straight through, they wait for an operator even when review is off
	holdForReview := (e.s.ReviewRequired || sig.Degraded) && cls.Kind == intent.ClassEntry

	qty, riskUSD := cls.Quantity, decimal.Zero
	if cls.Kind == intent.ClassEntry {
		sized, violation := e.d.Risk.Size(sig, equity, e.d.Tracker.OpenRisk(), e.d.Tracker.OpenCount(), e.d.Clock())
		switch {
		case violation == nil:
			qty, riskUSD = sized.Contracts, sized.RiskUSD
		case holdForReview:
			// unsizable degraded alerts still reach the queue; the
			// operator sees one contract and the degraded reason
			log.Info().Str("reason", violation.Reason).Msg("sizing deferred to review")
			qty = 1
		default:
			log.Info().Str("reason", violation.Reason).Msg("risk engine refused trade")
			e.skip(sig.Fingerprint, intent.SkippedRisk, violation.Reason, log)
			return
		}
	}

	effective := e.d.Modes.Effective()
	ti, err := intent.Build(sig, qty, cls, effective)
	if err != nil {
		log.Error().Err(err).Msg("intent build refused")
		return
	}
	if err := e.d.IntentLog.Append(ti); err != nil {
		log.Error().Err(err).Msg("intent ledger append failed")
		return
	}

	if holdForReview {
		e.enqueueForReview(ti, log)
		return
	}

	e.execute(ctx, sig, cls, ti, riskUSD, equity, log)
}

func (e *Engine) enqueueForReview(ti *intent.TradeIntent, log zerolog.Logger) {
	err := e.d.Review.Enqueue(ti, e.d.Clock())
	switch err {
	case nil:
		log.Info().Str("intent_id", ti.ID).Msg("intent queued for review")
		e.recordResult(intent.ExecutionResult{
			IntentID: ti.ID,
			Status:   intent.SkippedReview,
			Reason:   "held for operator review",
		})
	case review.ErrAlreadyQueued:
		log.Info().Msg("intent already awaiting review")
	default:
		log.Error().Err(err).Msg("review enqueue failed")
	}
}

// ExecuteApproved runs a reviewed intent through preflight and the
// router, exactly as the normal path would have. The intent is re-sized
// against current equity first, so the opened position carries the risk
// the daily budget is charged with; intents the engine still cannot size
// keep their queued quantity and commit no risk.
func (e *Engine) ExecuteApproved(ctx context.Context, fingerprint string) error {
	ti, err := e.d.Review.Approve(fingerprint)
	if err != nil {
		return err
	}
	equity, err := e.d.Equity.Equity(ctx)
	if err != nil {
		return fmt.Errorf("equity read: %w", err)
	}
	log := e.log.With().Str("fingerprint", fingerprint).Logger()

	sig := signalFromIntent(&ti)
	riskUSD := decimal.Zero
	sized, violation := e.d.Risk.Size(sig, equity, e.d.Tracker.OpenRisk(), e.d.Tracker.OpenCount(), e.d.Clock())
	if violation == nil {
		riskUSD = sized.RiskUSD
		if sized.Contracts != ti.Quantity {
			log.Info().Int("queued", ti.Quantity).Int("sized", sized.Contracts).
				Msg("approved intent re-sized")
			ti.Quantity = sized.Contracts
			if err := e.d.IntentLog.Append(&ti); err != nil {
				log.Error().Err(err).Msg("intent ledger append failed")
			}
		}
	} else {
		log.Warn().Str("reason", violation.Reason).Msg("approved intent kept its queued quantity")
	}

	cls := intent.Classification{Kind: intent.ClassEntry}
	e.execute(ctx, sig, cls, &ti, riskUSD, equity, log)
	return nil
}

// signalFromIntent rebuilds the sizing-relevant view of the parsed signal
// from a journaled intent.
func signalFromIntent(ti *intent.TradeIntent) *signal.ParsedSignal {
	kind := signal.Debit
	if ti.Strategy.IsCredit() {
		kind = signal.Credit
	}
	return &signal.ParsedSignal{
		Ticker:      ti.Underlying,
		Strategy:    ti.Strategy,
		Legs:        ti.Legs,
		Expiration:  ti.Expiration,
		Quantity:    ti.Quantity,
		LimitKind:   kind,
		LimitMin:    ti.LimitMin,
		LimitMax:    ti.LimitMax,
		SizePct:     ti.SizePct,
		Fingerprint: ti.Fingerprint,
	}
}

func (e *Engine) execute(ctx context.Context, sig *signal.ParsedSignal, cls intent.Classification, ti *intent.TradeIntent, riskUSD, equity decimal.Decimal, log zerolog.Logger) {
	report := decision.Preflight(ti, decision.PreflightContext{
		Equity:          equity,
		OpenRisk:        e.d.Tracker.OpenRisk(),
		IntentRisk:      riskUSD,
		MaxDailyRiskPct: e.s.MaxDailyRiskPct,
		MinDTE:          e.s.MinDTE,
		Allow0DTESPX:    e.s.Allow0DTESPX,
		LiveTrading:     e.s.LiveTrading,
		DryRun:          e.s.DryRun,
		Dedupe:          e.d.Dedupe,
		Now:             e.d.Clock(),
	})
	if !report.OK() {
		failed := report.Failed()
		for _, name := range failed {
			observ.PreflightFailures.WithLabelValues(name).Inc()
		}
		log.Info().Strs("failed_checks", failed).Msg("preflight blocked intent")
		e.skip(ti.Fingerprint, intent.SkippedPreflight, fmt.Sprintf("preflight blocked: %v", failed), log)
		return
	}

	effective := e.d.Modes.Effective()
	results := e.d.Router.Dispatch(ctx, ti, effective)
	for _, res := range results {
		e.recordResult(res)
		observ.TradesExecuted.WithLabelValues(string(effective), string(res.Status)).Inc()
		log.Info().Str("executor", res.Executor).Str("status", string(res.Status)).
			Str("order_id", res.OrderID).Msg("execution result")
	}

	primary := results[0]
	if primary.Status != intent.Filled {
		if err := e.d.Dedupe.Record(ti.Fingerprint, ledger.OutcomeSkipped, primary.Reason); err != nil {
			log.Error().Err(err).Msg("dedupe record failed")
		}
		return
	}

	e.settle(sig, cls, ti, riskUSD, primary, log)

	if err := e.d.Dedupe.Record(ti.Fingerprint, ledger.OutcomeExecuted, primary.OrderID); err != nil {
		log.Error().Err(err).Msg("dedupe record failed after execution")
	}
}

// settle updates the position book from the primary fill.
func (e *Engine) settle(sig *signal.ParsedSignal, cls intent.Classification, ti *intent.TradeIntent, riskUSD decimal.Decimal, res intent.ExecutionResult, log zerolog.Logger) {
	switch cls.Kind {
	case intent.ClassEntry:
		p := positions.NewPosition(sig, ti, riskUSD, res.FilledAt)
		if err := e.d.Tracker.Open(p); err != nil {
			log.Error().Err(err).Msg("position open failed")
			return
		}
		e.d.Risk.Commit(riskUSD, e.d.Clock())
		log.Info().Str("position_id", p.ID).Msg("position opened")
	case intent.ClassExit:
		pos, found := e.d.Tracker.Get(cls.PositionID)
		if err := e.d.Tracker.Close(cls.PositionID, res); err != nil {
			log.Error().Err(err).Str("position_id", cls.PositionID).Msg("position close failed")
			return
		}
		if found && sameDay(pos.OpenedAt, e.d.Clock()) {
			e.d.Risk.Release(pos.AllocatedRisk, e.d.Clock())
		}
		log.Info().Str("position_id", cls.PositionID).Msg("position closed")
	}
}

func (e *Engine) skip(fingerprint string, status intent.Status, reason string, log zerolog.Logger) {
	if err := e.d.Dedupe.Record(fingerprint, ledger.OutcomeSkipped, reason); err != nil {
		log.Error().Err(err).Msg("dedupe record failed")
	}
	e.recordResult(intent.ExecutionResult{Status: status, Reason: reason})
}

func (e *Engine) recordResult(res intent.ExecutionResult) {
	if res.FilledAt.IsZero() {
		res.FilledAt = e.d.Clock()
	}
	if err := e.d.ResultLog.Append(res); err != nil {
		e.log.Error().Err(err).Msg("result ledger append failed")
	}
}

func sameDay(a, b time.Time) bool {
	return a.UTC().Format("2006-01-02") == b.UTC().Format("2006-01-02")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
