// Package intent defines the broker-agnostic order description built from
// a sized, classified signal, and the result shape every executor returns.
package intent

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dhenken/alertflow/internal/signal"
)

// Mode selects which executor handles an intent.
type Mode string

const (
	Paper      Mode = "PAPER"
	Live       Mode = "LIVE"
	Dual       Mode = "DUAL"
	Historical Mode = "HISTORICAL"
)

type InstrumentType string

const (
	InstrumentStock  InstrumentType = "STOCK"
	InstrumentOption InstrumentType = "OPTION"
	InstrumentSpread InstrumentType = "SPREAD"
)

type Action string

const (
	BuyToOpen   Action = "BUY_TO_OPEN"
	BuyToClose  Action = "BUY_TO_CLOSE"
	SellToOpen  Action = "SELL_TO_OPEN"
	SellToClose Action = "SELL_TO_CLOSE"
)

type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

// Status is the final disposition of one intent. One result per intent,
// never retried automatically.
type Status string

const (
	Filled           Status = "FILLED"
	Rejected         Status = "REJECTED"
	Failed           Status = "FAILED"
	SkippedDuplicate  Status = "SKIPPED_DUPLICATE"
	SkippedRisk       Status = "SKIPPED_RISK"
	SkippedPreflight  Status = "SKIPPED_PREFLIGHT"
	SkippedReview     Status = "SKIPPED_REVIEW"
	SkippedUnresolved Status = "SKIPPED_UNRESOLVED"
)

// ClassKind tags a signal relative to the open-position book.
type ClassKind string

const (
	ClassEntry          ClassKind = "ENTRY"
	ClassExit           ClassKind = "EXIT"
	ClassExitUnresolved ClassKind = "EXIT_UNRESOLVED"
	ClassUnknown        ClassKind = "UNKNOWN"
)

// Classification is the classifier's verdict. For EXIT it carries the
// matched position and the action that unwinds it; Ambiguous flags a FIFO
// tie-break among several matching open positions.
type Classification struct {
	Kind        ClassKind `json:"kind"`
	PositionID  string    `json:"position_id,omitempty"`
	CloseAction Action    `json:"close_action,omitempty"`
	Quantity    int       `json:"quantity,omitempty"`
	Ambiguous   bool      `json:"ambiguous,omitempty"`
	Reason      string    `json:"reason,omitempty"`

	// structure of the matched position, carried so a leg-less exit
	// alert still produces a fully specified close order
	PositionStrategy signal.Strategy `json:"position_strategy,omitempty"`
	PositionLegs     []signal.Leg    `json:"position_legs,omitempty"`
	PositionExpiry   *time.Time      `json:"position_expiry,omitempty"`
}

// TradeIntent is built once per executable signal and never mutated; a
// correction requires a new intent.
type TradeIntent struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Mode           Mode            `json:"execution_mode"`
	InstrumentType InstrumentType  `json:"instrument_type"`
	Underlying     string          `json:"underlying"`
	Strategy       signal.Strategy `json:"strategy"`
	Action         Action          `json:"action"`
	OrderType      OrderType       `json:"order_type"`

	LimitPrice decimal.Decimal `json:"limit_price"`
	LimitMin   decimal.Decimal `json:"limit_min"`
	LimitMax   decimal.Decimal `json:"limit_max"`
	SizePct    decimal.Decimal `json:"size_pct"`

	Quantity   int          `json:"quantity"`
	Legs       []signal.Leg `json:"legs,omitempty"`
	Expiration *time.Time   `json:"expiration,omitempty"`

	Fingerprint       string    `json:"fingerprint"`
	MatchedPositionID string    `json:"matched_position_id,omitempty"`
	SignalAt          time.Time `json:"signal_at"`
}

// ExecutionResult is the outcome of one intent at one executor.
type ExecutionResult struct {
	IntentID  string          `json:"intent_id"`
	Status    Status          `json:"status"`
	Executor  string          `json:"executor"`
	OrderID   string          `json:"order_id,omitempty"`
	FillPrice decimal.Decimal `json:"fill_price"`
	FilledAt  time.Time       `json:"filled_at"`
	Reason    string          `json:"reason,omitempty"`
}
