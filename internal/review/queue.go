// Package review holds intents that need operator approval before
// execution. The queue is keyed by signal fingerprint so the same alert
// cannot sit in review twice, and every queue transition is journaled.
package review

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dhenken/alertflow/internal/intent"
	"github.com/dhenken/alertflow/internal/ledger"
)

var (
	ErrAlreadyQueued = errors.New("review: fingerprint already queued")
	ErrNotQueued     = errors.New("review: fingerprint not queued")
)

// Entry is one intent awaiting review.
type Entry struct {
	Fingerprint string             `json:"fingerprint"`
	Intent      intent.TradeIntent `json:"intent"`
	QueuedAt    time.Time          `json:"queued_at"`
}

type event struct {
	Kind  string `json:"event"`
	Entry Entry  `json:"entry"`
}

const (
	eventQueued   = "QUEUED"
	eventApproved = "APPROVED"
	eventRejected = "REJECTED"
)

// Queue is the pending-review set, rebuilt from its journal on open.
type Queue struct {
	mu      sync.Mutex
	store   *ledger.Store
	pending map[string]Entry
}

func Open(path string) (*Queue, error) {
	store, err := ledger.Open(path)
	if err != nil {
		return nil, err
	}
	q := &Queue{store: store, pending: make(map[string]Entry)}
	err = store.Replay(func(raw json.RawMessage) error {
		var ev event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil
		}
		switch ev.Kind {
		case eventQueued:
			q.pending[ev.Entry.Fingerprint] = ev.Entry
		case eventApproved, eventRejected:
			delete(q.pending, ev.Entry.Fingerprint)
		}
		return nil
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return q, nil
}

// Enqueue journals an intent for review. A fingerprint already pending
// is refused so repeated alerts cannot stack up approvals.
func (q *Queue) Enqueue(ti *intent.TradeIntent, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[ti.Fingerprint]; ok {
		return ErrAlreadyQueued
	}
	e := Entry{Fingerprint: ti.Fingerprint, Intent: *ti, QueuedAt: now}
	if err := q.store.Append(event{Kind: eventQueued, Entry: e}); err != nil {
		return err
	}
	q.pending[ti.Fingerprint] = e
	return nil
}

// Approve removes the entry and returns its intent for execution.
func (q *Queue) Approve(fingerprint string) (intent.TradeIntent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.pending[fingerprint]
	if !ok {
		return intent.TradeIntent{}, ErrNotQueued
	}
	if err := q.store.Append(event{Kind: eventApproved, Entry: e}); err != nil {
		return intent.TradeIntent{}, err
	}
	delete(q.pending, fingerprint)
	return e.Intent, nil
}

// Reject drops the entry and records the rejection in the dedupe store
// so the alert is not reprocessed as new on the next poll.
func (q *Queue) Reject(fingerprint, reason string, dedupe *ledger.DedupeStore) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.pending[fingerprint]
	if !ok {
		return ErrNotQueued
	}
	if err := q.store.Append(event{Kind: eventRejected, Entry: e}); err != nil {
		return err
	}
	delete(q.pending, fingerprint)
	if dedupe != nil {
		return dedupe.Record(fingerprint, ledger.OutcomeRejected, reason)
	}
	return nil
}

// Pending lists queued entries, oldest first.
func (q *Queue) Pending() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, 0, len(q.pending))
	for _, e := range q.pending {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueuedAt.Before(out[j].QueuedAt) })
	return out
}

func (q *Queue) Contains(fingerprint string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[fingerprint]
	return ok
}

func (q *Queue) Close() error { return q.store.Close() }
