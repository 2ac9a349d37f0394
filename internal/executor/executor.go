// Package executor turns trade intents into execution results. Executors
// are pure fill producers; position bookkeeping happens in the engine.
package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dhenken/alertflow/internal/intent"
)

// Executor runs one intent and reports one result. Execute never panics;
// broker failures come back as Failed results.
type Executor interface {
	Name() string
	Execute(ctx context.Context, ti *intent.TradeIntent) intent.ExecutionResult
}

var two = decimal.NewFromInt(2)

// simulatedFill is the price a non-live executor fills at. Limit orders
// fill at the midpoint of the alert's limit range when one was given,
// otherwise at the single limit price; market orders fill at zero since
// no quote feed is attached.
func simulatedFill(ti *intent.TradeIntent) decimal.Decimal {
	if ti.LimitMin.GreaterThan(decimal.Zero) && ti.LimitMax.GreaterThan(ti.LimitMin) {
		return ti.LimitMin.Add(ti.LimitMax).Div(two)
	}
	return ti.LimitPrice
}

// Paper simulates fills instantly. The clock is injectable for tests.
type Paper struct {
	Clock func() time.Time
}

func NewPaper() *Paper { return &Paper{Clock: func() time.Time { return time.Now().UTC() }} }

func (p *Paper) Name() string { return "paper" }

func (p *Paper) Execute(_ context.Context, ti *intent.TradeIntent) intent.ExecutionResult {
	return intent.ExecutionResult{
		IntentID:  ti.ID,
		Status:    intent.Filled,
		Executor:  p.Name(),
		OrderID:   "paper-" + uuid.NewString(),
		FillPrice: simulatedFill(ti),
		FilledAt:  p.Clock(),
	}
}

// Historical simulates fills stamped at the signal's own time, so
// replayed ledgers line up with when the alert actually arrived.
type Historical struct{}

func NewHistorical() *Historical { return &Historical{} }

func (h *Historical) Name() string { return "historical" }

func (h *Historical) Execute(_ context.Context, ti *intent.TradeIntent) intent.ExecutionResult {
	filledAt := ti.SignalAt
	if filledAt.IsZero() {
		filledAt = time.Now().UTC()
	}
	return intent.ExecutionResult{
		IntentID:  ti.ID,
		Status:    intent.Filled,
		Executor:  h.Name(),
		OrderID:   "hist-" + uuid.NewString(),
		FillPrice: simulatedFill(ti),
		FilledAt:  filledAt,
	}
}
