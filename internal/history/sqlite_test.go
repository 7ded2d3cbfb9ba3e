package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAppendAndByTask(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	events := []Event{
		{Task: "counter-v1", Round: 1, Stage: "accepted", Status: "started"},
		{Task: "counter-v1", Round: 1, Stage: "generating", Status: "success"},
		{Task: "other-task", Round: 1, Stage: "accepted", Status: "started"},
	}
	for _, ev := range events {
		require.NoError(t, store.Append(ctx, ev))
	}

	got, err := store.ByTask(ctx, "counter-v1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "accepted", got[0].Stage)
	assert.Equal(t, "generating", got[1].Stage)
	assert.NotZero(t, got[0].ID)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestByTask_UnknownTaskIsEmpty(t *testing.T) {
	store := newTestStore(t)
	got, err := store.ByTask(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppend_PreservesDetailAndOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, Event{Task: "t", Round: 2, Stage: "failed", Status: "failed", Detail: "boom"}))
	got, err := store.ByTask(ctx, "t")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "boom", got[0].Detail)
	assert.Equal(t, 2, got[0].Round)
}

func TestPrune_RemovesOldEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Append(ctx, Event{Task: "t", Stage: "accepted", Status: "started", Timestamp: old}))
	require.NoError(t, store.Append(ctx, Event{Task: "t", Stage: "done", Status: "success"}))

	removed, err := store.Prune(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	got, err := store.ByTask(ctx, "t")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "done", got[0].Stage)
}

func TestFileBackedStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Append(context.Background(), Event{Task: "t", Stage: "accepted", Status: "started"}))
	require.NoError(t, store.Close())

	// Reopen: events persist across restarts.
	store, err = NewSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	got, err := store.ByTask(context.Background(), "t")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
