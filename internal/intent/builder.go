package intent

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dhenken/alertflow/internal/signal"
)

// Build converts a sized, classified signal into an order description.
// It refuses unresolved exits and unknown classifications: exits never
// open new risk and unclassified signals never execute.
func Build(sig *signal.ParsedSignal, qty int, cls Classification, mode Mode) (*TradeIntent, error) {
	switch cls.Kind {
	case ClassEntry, ClassExit:
	case ClassExitUnresolved:
		return nil, fmt.Errorf("refusing to build close order for unresolved exit: %s", cls.Reason)
	default:
		return nil, fmt.Errorf("refusing to build intent for classification %s", cls.Kind)
	}
	if qty <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", qty)
	}

	ti := &TradeIntent{
		ID:          uuid.NewString(),
		CreatedAt:   time.Now().UTC(),
		Mode:        mode,
		Underlying:  sig.Ticker,
		Strategy:    sig.Strategy,
		Quantity:    qty,
		Legs:        sig.Legs,
		Expiration:  sig.Expiration,
		Fingerprint: sig.Fingerprint,
		SignalAt:    sig.ReceivedAt,
		LimitMin:    sig.LimitMin,
		LimitMax:    sig.LimitMax,
		SizePct:     sig.SizePct,
	}

	if cls.Kind == ClassExit {
		// the close order mirrors the structure of the position being
		// closed, not whatever legs the exit alert happened to mention
		ti.Action = cls.CloseAction
		ti.MatchedPositionID = cls.PositionID
		if cls.PositionStrategy != "" {
			ti.Strategy = cls.PositionStrategy
		}
		if len(cls.PositionLegs) > 0 {
			ti.Legs = cls.PositionLegs
		}
		if cls.PositionExpiry != nil {
			ti.Expiration = cls.PositionExpiry
		}
		ti.InstrumentType = closeInstrumentFor(cls, ti.Legs)
	} else {
		ti.InstrumentType = instrumentFor(sig)
		action, err := entryAction(sig.Strategy)
		if err != nil {
			return nil, err
		}
		ti.Action = action
	}

	if price := sig.OrderLimitPrice(); price.GreaterThan(decimal.Zero) {
		ti.OrderType = Limit
		ti.LimitPrice = price
	} else {
		ti.OrderType = Market
	}

	return ti, nil
}

func entryAction(s signal.Strategy) (Action, error) {
	switch s {
	case signal.CallDebitSpread, signal.PutDebitSpread, signal.LongStock, signal.LongOption:
		return BuyToOpen, nil
	case signal.CallCreditSpread, signal.PutCreditSpread:
		return SellToOpen, nil
	case signal.Exit:
		return "", fmt.Errorf("exit strategy cannot be an entry")
	default:
		return "", fmt.Errorf("no entry action for strategy %s", s)
	}
}

// CloseActionFor maps the strategy of the position being closed to the
// action that unwinds it: credit positions are bought back, debit and
// long positions are sold.
func CloseActionFor(opened signal.Strategy) Action {
	if opened.IsCredit() {
		return BuyToClose
	}
	return SellToClose
}

func closeInstrumentFor(cls Classification, legs []signal.Leg) InstrumentType {
	switch {
	case cls.PositionStrategy == signal.LongStock:
		return InstrumentStock
	case len(legs) >= 2 || cls.PositionStrategy.IsSpread():
		return InstrumentSpread
	default:
		return InstrumentOption
	}
}

func instrumentFor(sig *signal.ParsedSignal) InstrumentType {
	switch {
	case sig.Strategy == signal.LongStock:
		return InstrumentStock
	case len(sig.Legs) >= 2 || sig.Strategy.IsSpread():
		return InstrumentSpread
	default:
		return InstrumentOption
	}
}
