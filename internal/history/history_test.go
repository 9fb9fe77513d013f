package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()

	l, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"), nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = l.Close() })

	return l
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "history.db")

	l, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	assert.FileExists(t, path)
}

func TestBeginFinishRecent(t *testing.T) {
	l := openTestLedger(t)

	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	rowID, err := l.Begin("export.json", started)
	require.NoError(t, err)
	require.NotZero(t, rowID)

	rows, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "export.json", rows[0].Descriptor)
	assert.Equal(t, "Processing", rows[0].Status)
	assert.Equal(t, started, rows[0].StartedAt)
	assert.True(t, rows[0].FinishedAt.IsZero())

	finished := started.Add(90 * time.Second)
	require.NoError(t, l.Finish(rowID, "J1", "Complete", "query_results.csv", "", finished))

	rows, err = l.Recent(10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "J1", rows[0].JobID)
	assert.Equal(t, "Complete", rows[0].Status)
	assert.Equal(t, "query_results.csv", rows[0].OutputFile)
	assert.Equal(t, finished, rows[0].FinishedAt)
}

func TestRecent_OrderAndLimit(t *testing.T) {
	l := openTestLedger(t)

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i, name := range []string{"a.json", "b.json", "c.json"} {
		_, err := l.Begin(name, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	rows, err := l.Recent(2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "c.json", rows[0].Descriptor)
	assert.Equal(t, "b.json", rows[1].Descriptor)
}

func TestFinish_RecordsFailureDetail(t *testing.T) {
	l := openTestLedger(t)

	rowID, err := l.Begin("broken.json", time.Now())
	require.NoError(t, err)

	require.NoError(t, l.Finish(rowID, "", "FAILED", "", "decoding descriptor: unexpected EOF", time.Now()))

	rows, err := l.Recent(1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "FAILED", rows[0].Status)
	assert.Equal(t, "decoding descriptor: unexpected EOF", rows[0].Error)
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	l, err := Open(context.Background(), path, nil)
	require.NoError(t, err)

	_, err = l.Begin("export.json", time.Now())
	require.NoError(t, err)
	require.NoError(t, l.Close())

	// Reopening applies no new migrations and keeps existing rows.
	l, err = Open(context.Background(), path, nil)
	require.NoError(t, err)

	defer l.Close()

	rows, err := l.Recent(10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
