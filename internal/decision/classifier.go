// Package decision classifies parsed signals against the position book
// and runs the preflight gate battery over built trade intents.
package decision

import (
	"fmt"

	"github.com/dhenken/alertflow/internal/intent"
	"github.com/dhenken/alertflow/internal/positions"
	"github.com/dhenken/alertflow/internal/signal"
)

// Classify decides what a parsed signal means relative to the open book.
// Entries classify on strategy alone; exits must resolve to exactly one
// open position or they come back EXIT_UNRESOLVED and produce no intent.
func Classify(sig *signal.ParsedSignal, tracker *positions.Tracker) intent.Classification {
	if sig == nil {
		return intent.Classification{Kind: intent.ClassUnknown, Reason: "nil signal"}
	}

	if sig.Strategy != signal.Exit {
		if sig.Ticker == "" {
			return intent.Classification{Kind: intent.ClassUnknown, Reason: "entry signal without ticker"}
		}
		return intent.Classification{Kind: intent.ClassEntry}
	}

	if sig.Ticker == "" {
		return intent.Classification{
			Kind:   intent.ClassExitUnresolved,
			Reason: "exit alert names no ticker",
		}
	}

	pos, found, ambiguous := tracker.FindOpen(sig.Ticker, sig.Legs)
	if !found {
		return intent.Classification{
			Kind:   intent.ClassExitUnresolved,
			Reason: fmt.Sprintf("no open position in %s matches the exit alert", sig.Ticker),
		}
	}

	cls := intent.Classification{
		Kind:             intent.ClassExit,
		PositionID:       pos.ID,
		CloseAction:      intent.CloseActionFor(pos.Strategy),
		Quantity:         pos.Quantity,
		Ambiguous:        ambiguous,
		PositionStrategy: pos.Strategy,
		PositionLegs:     pos.Legs,
		PositionExpiry:   pos.Expiration,
	}
	if ambiguous {
		cls.Reason = fmt.Sprintf("multiple open %s positions match; closing the oldest", sig.Ticker)
	}
	return cls
}
