package ledger

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AppendReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")
	s, err := Open(path)
	require.NoError(t, err)

	type rec struct {
		N int `json:"n"`
	}
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Append(rec{N: i}))
	}
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	var seen []int
	err = reopened.Replay(func(line json.RawMessage) error {
		var r rec
		require.NoError(t, json.Unmarshal(line, &r))
		seen = append(seen, r.N)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestDedupe_LastRecordWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedupe.jsonl")
	d, err := OpenDedupe(path)
	require.NoError(t, err)

	require.NoError(t, d.Record("fp1", OutcomeSkipped, "preflight failed"))
	require.NoError(t, d.Record("fp1", OutcomeExecuted, ""))
	require.NoError(t, d.Close())

	// projection rebuilt by replay on reopen
	d2, err := OpenDedupe(path)
	require.NoError(t, err)
	defer d2.Close()

	rec, ok := d2.Lookup("fp1")
	require.True(t, ok)
	assert.Equal(t, OutcomeExecuted, rec.Outcome)
	assert.True(t, d2.Executed("fp1"))
	assert.False(t, d2.Executed("fp2"))
}

func TestDedupe_ExecutedAtMostOnce(t *testing.T) {
	d, err := OpenDedupe(filepath.Join(t.TempDir(), "dedupe.jsonl"))
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Record("fp1", OutcomeExecuted, ""))
	err = d.Record("fp1", OutcomeExecuted, "")
	assert.ErrorIs(t, err, ErrAlreadyExecuted)

	// non-executed outcomes are still appendable for audit
	assert.NoError(t, d.Record("fp2", OutcomeSkipped, "risk"))
	assert.NoError(t, d.Record("fp2", OutcomeRejected, "review"))
}
