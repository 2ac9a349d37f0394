package executor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/dhenken/alertflow/internal/intent"
)

// BrokerClient is the surface a live broker adapter must provide.
type BrokerClient interface {
	Name() string
	PlaceOrder(ctx context.Context, ti *intent.TradeIntent) (orderID string, fill decimal.Decimal, err error)
}

// Live submits intents to a real broker. Submissions are rate limited so
// a burst of alerts cannot hammer the broker API.
type Live struct {
	broker  BrokerClient
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewLive(broker BrokerClient, log zerolog.Logger) *Live {
	return &Live{
		broker:  broker,
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		log:     log.With().Str("component", "live-executor").Logger(),
	}
}

func (l *Live) Name() string { return "live:" + l.broker.Name() }

func (l *Live) Execute(ctx context.Context, ti *intent.TradeIntent) intent.ExecutionResult {
	if err := l.limiter.Wait(ctx); err != nil {
		return intent.ExecutionResult{
			IntentID: ti.ID,
			Status:   intent.Failed,
			Executor: l.Name(),
			Reason:   "rate limit wait: " + err.Error(),
		}
	}

	orderID, fill, err := l.broker.PlaceOrder(ctx, ti)
	if err != nil {
		l.log.Error().Err(err).Str("intent_id", ti.ID).Str("underlying", ti.Underlying).
			Msg("broker order failed")
		return intent.ExecutionResult{
			IntentID: ti.ID,
			Status:   intent.Failed,
			Executor: l.Name(),
			Reason:   err.Error(),
		}
	}

	l.log.Info().Str("intent_id", ti.ID).Str("order_id", orderID).
		Str("underlying", ti.Underlying).Msg("live order placed")
	return intent.ExecutionResult{
		IntentID:  ti.ID,
		Status:    intent.Filled,
		Executor:  l.Name(),
		OrderID:   orderID,
		FillPrice: fill,
		FilledAt:  time.Now().UTC(),
	}
}
