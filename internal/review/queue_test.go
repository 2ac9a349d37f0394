package review

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhenken/alertflow/internal/intent"
	"github.com/dhenken/alertflow/internal/ledger"
)

func newQueue(t *testing.T) (*Queue, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "review.jsonl")
	q, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q, path
}

func testIntent(fp string) *intent.TradeIntent {
	return &intent.TradeIntent{
		ID:          "ti-" + fp,
		Underlying:  "GLD",
		Action:      intent.BuyToOpen,
		Quantity:    10,
		Fingerprint: fp,
	}
}

var queuedAt = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func TestEnqueueRejectsDuplicateFingerprint(t *testing.T) {
	q, _ := newQueue(t)

	require.NoError(t, q.Enqueue(testIntent("fp1"), queuedAt))
	assert.ErrorIs(t, q.Enqueue(testIntent("fp1"), queuedAt), ErrAlreadyQueued)
	assert.True(t, q.Contains("fp1"))
}

func TestApproveReturnsIntent(t *testing.T) {
	q, _ := newQueue(t)
	require.NoError(t, q.Enqueue(testIntent("fp1"), queuedAt))

	ti, err := q.Approve("fp1")
	require.NoError(t, err)
	assert.Equal(t, "ti-fp1", ti.ID)
	assert.False(t, q.Contains("fp1"))

	_, err = q.Approve("fp1")
	assert.ErrorIs(t, err, ErrNotQueued)
}

func TestRejectRecordsDedupeOutcome(t *testing.T) {
	q, _ := newQueue(t)
	dd, err := ledger.OpenDedupe(filepath.Join(t.TempDir(), "dedupe.jsonl"))
	require.NoError(t, err)
	defer dd.Close()

	require.NoError(t, q.Enqueue(testIntent("fp1"), queuedAt))
	require.NoError(t, q.Reject("fp1", "operator declined", dd))

	rec, ok := dd.Lookup("fp1")
	require.True(t, ok)
	assert.Equal(t, ledger.OutcomeRejected, rec.Outcome)
	assert.False(t, q.Contains("fp1"))
}

func TestQueueSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review.jsonl")
	q, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, q.Enqueue(testIntent("fp1"), queuedAt))
	require.NoError(t, q.Enqueue(testIntent("fp2"), queuedAt.Add(time.Minute)))
	_, err = q.Approve("fp1")
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q, err = Open(path)
	require.NoError(t, err)
	defer q.Close()

	pending := q.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "fp2", pending[0].Fingerprint)
}
