package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	return m
}

func TestCreate_ThenGet(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	info, ok := m.Get(ctx, id)
	require.True(t, ok)
	assert.Equal(t, StatusPending, info.Status)
}

func TestCreate_RejectsSecondWhileRunning(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)
	m.MarkRunning(ctx, id)

	_, err = m.Create(ctx)
	require.Error(t, err)

	var busy *ErrBusy
	require.ErrorAs(t, err, &busy)
	assert.Equal(t, id, busy.Current.TaskID)
	assert.GreaterOrEqual(t, busy.Elapsed(), time.Duration(0))
}

func TestCreate_AllowedAfterPriorCompletes(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)
	m.MarkRunning(ctx, id)
	m.Complete(ctx, id, map[string]any{"ok": true})

	id2, err := m.Create(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, id2)
}

func TestUpdateProgress(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)
	m.UpdateProgress(ctx, id, 2, 5, "Clinic A")

	info, ok := m.Get(ctx, id)
	require.True(t, ok)
	require.NotNil(t, info.Progress)
	assert.Equal(t, 2, info.Progress.Current)
	assert.Equal(t, 5, info.Progress.Total)
	assert.Equal(t, "Clinic A", info.Progress.CurrentClinic)
}

func TestFail_RecordsErrorAndClearsRunning(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)
	m.MarkRunning(ctx, id)
	m.Fail(ctx, id, "boom")

	info, ok := m.Get(ctx, id)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, info.Status)
	assert.Equal(t, "boom", info.Error)
	require.NotNil(t, info.CompletedAt)

	id2, err := m.Create(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, id2)
}

func TestGet_FallsBackToLocalFileAfterCacheEviction(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	id, err := m.Create(ctx)
	require.NoError(t, err)

	// simulate a process restart: drop the memory cache, keep the file
	m.tasks = make(map[string]Info)

	info, ok := m.Get(ctx, id)
	require.True(t, ok)
	assert.Equal(t, id, info.TaskID)
}

func TestGet_UnknownTaskReturnsFalse(t *testing.T) {
	m := newTestManager(t)
	_, ok := m.Get(context.Background(), "nonexistent")
	assert.False(t, ok)
}
