package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wpsteward/steward/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTaskCRUD(t *testing.T) {
	s := newTestStore(t)

	task := &types.Task{
		ID:        "task-1",
		Kind:      "backup_site",
		Site:      types.SiteRecord{Host: "203.0.113.7", User: "root", Password: "x"},
		State:     types.TaskStateQueued,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateTask(task))

	got, err := s.GetTask("task-1")
	require.NoError(t, err)
	assert.Equal(t, "backup_site", got.Kind)
	assert.Equal(t, types.TaskStateQueued, got.State)

	got.State = types.TaskStateInProgress
	require.NoError(t, s.UpdateTask(got))

	got, err = s.GetTask("task-1")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateInProgress, got.State)

	require.NoError(t, s.DeleteTask("task-1"))
	_, err = s.GetTask("task-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetTaskNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetTask("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPendingQueueFIFO(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.EnqueuePending("a"))
	require.NoError(t, s.EnqueuePending("b"))
	require.NoError(t, s.EnqueuePending("c"))

	depth, err := s.PendingDepth()
	require.NoError(t, err)
	assert.Equal(t, 3, depth)

	for _, want := range []string{"a", "b", "c"} {
		id, ok, err := s.DequeuePending()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, id)
	}

	_, ok, err := s.DequeuePending()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTrimTasksKeepsNonTerminal(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().UTC()
	for i, st := range []types.TaskState{
		types.TaskStateSucceeded,
		types.TaskStateFailed,
		types.TaskStateSucceeded,
		types.TaskStateInProgress,
		types.TaskStateQueued,
	} {
		task := &types.Task{
			ID:         string(rune('a' + i)),
			Kind:       "healthcheck",
			State:      st,
			FinishedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.CreateTask(task))
	}

	dropped, err := s.TrimTasks(1)
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)

	// Oldest two terminal tasks are gone, newest terminal survives.
	_, err = s.GetTask("a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetTask("b")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetTask("c")
	assert.NoError(t, err)

	// Non-terminal tasks are never trimmed.
	_, err = s.GetTask("d")
	assert.NoError(t, err)
	_, err = s.GetTask("e")
	assert.NoError(t, err)
}
