package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fetchedAt = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func TestSplitAlerts(t *testing.T) {
	text := "BTO GLD\n+1 415C -1 420C\n\nlimit 1.85-1.9\n\n\n\nSold my NVDA calls, taking profits\n\n\n"
	alerts := SplitAlerts(text, fetchedAt)
	require.Len(t, alerts, 2)
	assert.Contains(t, alerts[0].Text, "limit 1.85-1.9")
	assert.Contains(t, alerts[1].Text, "taking profits")
}

func TestFileSourceReadsOnlyNewAlerts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.txt")
	require.NoError(t, os.WriteFile(path, []byte("alert one stands alone here\n"), 0o644))

	fs := NewFileSource(path)
	alerts, err := fs.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	// no growth, no alerts
	alerts, err = fs.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)

	// append one more; only the new text comes back
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\n\n\nalert two arrives later on\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	alerts, err = fs.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Text, "alert two")
}

func TestFileSourceMissingFile(t *testing.T) {
	fs := NewFileSource(filepath.Join(t.TempDir(), "nope.txt"))
	alerts, err := fs.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestFileSourceHandlesTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.txt")
	require.NoError(t, os.WriteFile(path, []byte("a long first alert with plenty of text\n"), 0o644))

	fs := NewFileSource(path)
	_, err := fs.Fetch(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("fresh alert file\n"), 0o644))
	alerts, err := fs.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "fresh alert file", alerts[0].Text)
}
