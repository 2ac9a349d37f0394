// Package positions tracks open paper/live positions and resolves exits
// against them. The book is an in-memory index over an append-only event
// log; the index is rebuilt by full replay at startup.
package positions

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dhenken/alertflow/internal/intent"
	"github.com/dhenken/alertflow/internal/ledger"
	"github.com/dhenken/alertflow/internal/signal"
)

var (
	ErrNotFound      = errors.New("position not found")
	ErrAlreadyClosed = errors.New("position already closed")
)

type Status string

const (
	Open   Status = "OPEN"
	Closed Status = "CLOSED"
)

// Position is one unit of open risk. Created by a successful entry,
// transitioned to CLOSED by a matched exit, never deleted.
type Position struct {
	ID             string                  `json:"id"`
	Ticker         string                  `json:"ticker"`
	Strategy       signal.Strategy         `json:"strategy"`
	Legs           []signal.Leg            `json:"legs,omitempty"`
	Expiration     *time.Time              `json:"expiration,omitempty"`
	Quantity       int                     `json:"quantity"`
	AllocatedRisk  decimal.Decimal         `json:"allocated_risk_usd"`
	OpenedAt       time.Time               `json:"opened_at"`
	Status         Status                  `json:"status"`
	ClosedAt       *time.Time              `json:"closed_at,omitempty"`
	CloseResult    *intent.ExecutionResult `json:"close_result,omitempty"`
	SourceIntentID string                  `json:"source_intent_id,omitempty"`
}

type eventType string

const (
	eventOpened eventType = "opened"
	eventClosed eventType = "closed"
)

type event struct {
	Type       eventType               `json:"type"`
	Timestamp  time.Time               `json:"ts"`
	Position   *Position               `json:"position,omitempty"`
	PositionID string                  `json:"position_id,omitempty"`
	Result     *intent.ExecutionResult `json:"result,omitempty"`
}

// Tracker is the single-writer position book.
type Tracker struct {
	mu    sync.RWMutex
	store *ledger.Store
	byID  map[string]*Position
}

// OpenTracker opens the position log and replays it into the index.
func OpenTracker(path string) (*Tracker, error) {
	store, err := ledger.Open(path)
	if err != nil {
		return nil, err
	}
	t := &Tracker{store: store, byID: make(map[string]*Position)}
	err = store.Replay(func(line json.RawMessage) error {
		var ev event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil
		}
		switch ev.Type {
		case eventOpened:
			if ev.Position != nil && ev.Position.ID != "" {
				p := *ev.Position
				t.byID[p.ID] = &p
			}
		case eventClosed:
			if p, ok := t.byID[ev.PositionID]; ok {
				p.Status = Closed
				ts := ev.Timestamp
				p.ClosedAt = &ts
				p.CloseResult = ev.Result
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rebuild position index: %w", err)
	}
	return t, nil
}

// NewPosition builds an OPEN position from a filled entry.
func NewPosition(sig *signal.ParsedSignal, ti *intent.TradeIntent, riskUSD decimal.Decimal, openedAt time.Time) Position {
	return Position{
		ID:             uuid.NewString(),
		Ticker:         sig.Ticker,
		Strategy:       sig.Strategy,
		Legs:           sig.Legs,
		Expiration:     sig.Expiration,
		Quantity:       ti.Quantity,
		AllocatedRisk:  riskUSD,
		OpenedAt:       openedAt,
		Status:         Open,
		SourceIntentID: ti.ID,
	}
}

// Get returns a position by id, open or closed.
func (t *Tracker) Get(id string) (Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byID[id]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Open appends and indexes a new OPEN position.
func (t *Tracker) Open(p Position) error {
	if p.ID == "" || p.Ticker == "" {
		return fmt.Errorf("position missing id or ticker")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[p.ID]; ok {
		return fmt.Errorf("position %s already tracked", p.ID)
	}
	p.Status = Open
	if err := t.store.Append(event{Type: eventOpened, Timestamp: time.Now().UTC(), Position: &p}); err != nil {
		return err
	}
	t.byID[p.ID] = &p
	return nil
}

// Close transitions a position OPEN→CLOSED at most once. Duplicate closes
// that slipped past the dedupe store are rejected here without mutation.
func (t *Tracker) Close(id string, result intent.ExecutionResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byID[id]
	if !ok {
		return ErrNotFound
	}
	if p.Status == Closed {
		return ErrAlreadyClosed
	}
	now := time.Now().UTC()
	if err := t.store.Append(event{Type: eventClosed, Timestamp: now, PositionID: id, Result: &result}); err != nil {
		return err
	}
	p.Status = Closed
	p.ClosedAt = &now
	p.CloseResult = &result
	return nil
}

// FindOpen resolves an exit's target: ticker plus leg set (strike and
// right, side ignored) must match. With no legs on the exit alert any
// open position for the ticker matches. Several matches resolve to the
// oldest (FIFO) with the ambiguity flagged.
func (t *Tracker) FindOpen(ticker string, legs []signal.Leg) (Position, bool, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var matches []*Position
	for _, p := range t.byID {
		if p.Status != Open || p.Ticker != ticker {
			continue
		}
		if len(legs) > 0 && !legSetsMatch(p.Legs, legs) {
			continue
		}
		matches = append(matches, p)
	}
	if len(matches) == 0 {
		return Position{}, false, false
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].OpenedAt.Before(matches[j].OpenedAt) })
	return *matches[0], true, len(matches) > 1
}

// OpenPositions returns the open book oldest-first.
func (t *Tracker) OpenPositions() []Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []Position
	for _, p := range t.byID {
		if p.Status == Open {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// OpenRisk sums the allocated risk of all OPEN positions.
func (t *Tracker) OpenRisk() decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := decimal.Zero
	for _, p := range t.byID {
		if p.Status == Open {
			total = total.Add(p.AllocatedRisk)
		}
	}
	return total
}

// OpenCount returns the number of OPEN positions.
func (t *Tracker) OpenCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, p := range t.byID {
		if p.Status == Open {
			n++
		}
	}
	return n
}

func (t *Tracker) CloseStore() error { return t.store.Close() }

// legSetsMatch compares leg sets by strike and right, ignoring side and
// ratio: exit alerts quote the structure, not the direction.
func legSetsMatch(a, b []signal.Leg) bool {
	if len(a) != len(b) {
		return false
	}
	key := func(l signal.Leg) string { return l.Strike.String() + "|" + string(l.Right) }
	counts := make(map[string]int, len(a))
	for _, l := range a {
		counts[key(l)]++
	}
	for _, l := range b {
		counts[key(l)]--
		if counts[key(l)] < 0 {
			return false
		}
	}
	return true
}
