package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Outcome is the final disposition of a fingerprint.
type Outcome string

const (
	OutcomeExecuted Outcome = "EXECUTED"
	OutcomeSkipped  Outcome = "SKIPPED"
	OutcomeRejected Outcome = "REJECTED"
)

// ErrAlreadyExecuted guards the one-EXECUTED-per-fingerprint invariant.
var ErrAlreadyExecuted = errors.New("fingerprint already recorded as executed")

// DedupeRecord is one line of the dedupe ledger.
type DedupeRecord struct {
	Fingerprint string    `json:"fingerprint"`
	Outcome     Outcome   `json:"outcome"`
	Detail      string    `json:"detail,omitempty"`
	Timestamp   time.Time `json:"ts"`
}

// DedupeStore answers "have we executed this alert already?". The index is
// a projection of the append-only log, last record per fingerprint wins,
// rebuilt by full replay at open.
type DedupeStore struct {
	mu     sync.RWMutex
	store  *Store
	latest map[string]DedupeRecord
}

func OpenDedupe(path string) (*DedupeStore, error) {
	store, err := Open(path)
	if err != nil {
		return nil, err
	}
	d := &DedupeStore{store: store, latest: make(map[string]DedupeRecord)}
	err = store.Replay(func(line json.RawMessage) error {
		var rec DedupeRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil // tolerate foreign lines
		}
		if rec.Fingerprint != "" {
			d.latest[rec.Fingerprint] = rec
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rebuild dedupe index: %w", err)
	}
	return d, nil
}

// Lookup returns the latest record for a fingerprint.
func (d *DedupeStore) Lookup(fingerprint string) (DedupeRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.latest[fingerprint]
	return rec, ok
}

// Executed reports whether the fingerprint's latest outcome is EXECUTED.
func (d *DedupeStore) Executed(fingerprint string) bool {
	rec, ok := d.Lookup(fingerprint)
	return ok && rec.Outcome == OutcomeExecuted
}

// Record appends the final outcome for a fingerprint. The disk append
// happens before the index update and before returning, so a recorded
// trade can never replay as executable after a crash. Recording EXECUTED
// twice for the same fingerprint is refused.
func (d *DedupeStore) Record(fingerprint string, outcome Outcome, detail string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if outcome == OutcomeExecuted {
		if prev, ok := d.latest[fingerprint]; ok && prev.Outcome == OutcomeExecuted {
			return ErrAlreadyExecuted
		}
	}
	rec := DedupeRecord{
		Fingerprint: fingerprint,
		Outcome:     outcome,
		Detail:      detail,
		Timestamp:   time.Now().UTC(),
	}
	if err := d.store.Append(rec); err != nil {
		return err
	}
	d.latest[fingerprint] = rec
	return nil
}

func (d *DedupeStore) Close() error { return d.store.Close() }
