// Package signal defines the structured form of a trade alert and the
// parser that produces it from raw text.
package signal

import (
	"time"

	"github.com/shopspring/decimal"
)

// Strategy is the closed set of trade shapes the parser recognizes.
// The risk engine and intent builder switch over it exhaustively, so a new
// strategy is a compile-time-visible change in both.
type Strategy string

const (
	CallDebitSpread  Strategy = "CALL_DEBIT_SPREAD"
	CallCreditSpread Strategy = "CALL_CREDIT_SPREAD"
	PutDebitSpread   Strategy = "PUT_DEBIT_SPREAD"
	PutCreditSpread  Strategy = "PUT_CREDIT_SPREAD"
	LongStock        Strategy = "LONG_STOCK"
	LongOption       Strategy = "LONG_OPTION"
	Exit             Strategy = "EXIT"
)

// IsSpread reports whether the strategy is a vertical spread.
func (s Strategy) IsSpread() bool {
	switch s {
	case CallDebitSpread, CallCreditSpread, PutDebitSpread, PutCreditSpread:
		return true
	}
	return false
}

// IsCredit reports whether the position collects premium at open.
func (s Strategy) IsCredit() bool {
	return s == CallCreditSpread || s == PutCreditSpread
}

type Right string

const (
	Call Right = "CALL"
	Put  Right = "PUT"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

type LimitKind string

const (
	Debit  LimitKind = "DEBIT"
	Credit LimitKind = "CREDIT"
)

// Leg is one leg of an options trade. Ratio is contracts per spread unit
// and is always positive; Side carries the direction.
type Leg struct {
	Side   Side            `json:"side"`
	Ratio  int             `json:"ratio"`
	Strike decimal.Decimal `json:"strike"`
	Right  Right           `json:"right"`
}

// ParsedSignal is the immutable structured form of one alert. Fields are
// set once by Parse and never mutated afterwards.
type ParsedSignal struct {
	Ticker     string     `json:"ticker"`
	Strategy   Strategy   `json:"strategy"`
	Expiration *time.Time `json:"expiration,omitempty"`
	Legs       []Leg      `json:"legs,omitempty"`

	LimitMin  decimal.Decimal `json:"limit_min"`
	LimitMax  decimal.Decimal `json:"limit_max"`
	LimitKind LimitKind       `json:"limit_kind"`

	// SizePct is the requested allocation as a decimal fraction (0.02 = 2%).
	SizePct decimal.Decimal `json:"size_pct"`
	// Quantity is the share/contract count for long positions.
	Quantity int `json:"quantity"`

	// Degraded marks a recognizable trade alert missing a mandatory detail.
	// Degraded signals surface in review instead of being dropped.
	Degraded       bool   `json:"degraded,omitempty"`
	DegradedReason string `json:"degraded_reason,omitempty"`

	Fingerprint string    `json:"fingerprint"`
	Raw         string    `json:"raw_text"`
	ReceivedAt  time.Time `json:"received_at"`
}

// NotSignal reports why a piece of text is not an actionable alert.
type NotSignal struct {
	Reason string `json:"reason"`
}

// SpreadWidth is the strike distance for vertical spreads, zero otherwise.
func (s *ParsedSignal) SpreadWidth() decimal.Decimal {
	if len(s.Legs) < 2 {
		return decimal.Zero
	}
	min, max := s.Legs[0].Strike, s.Legs[0].Strike
	for _, l := range s.Legs[1:] {
		if l.Strike.LessThan(min) {
			min = l.Strike
		}
		if l.Strike.GreaterThan(max) {
			max = l.Strike
		}
	}
	return max.Sub(min)
}

// OrderLimitPrice picks the limit to submit: the worst acceptable debit
// (max) when paying, the minimum acceptable credit (min) when collecting.
func (s *ParsedSignal) OrderLimitPrice() decimal.Decimal {
	if s.LimitKind == Credit {
		return s.LimitMin
	}
	return s.LimitMax
}
