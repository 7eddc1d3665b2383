package storage

import (
	"errors"

	"github.com/wpsteward/steward/pkg/types"
)

// ErrNotFound is the distinguishable marker for unknown task ids.
var ErrNotFound = errors.New("task not found")

// Store defines the interface for task state and the durable pending queue.
// Implemented by the BoltDB-backed store.
type Store interface {
	// Tasks
	CreateTask(task *types.Task) error
	GetTask(id string) (*types.Task, error)
	ListTasks() ([]*types.Task, error)
	UpdateTask(task *types.Task) error
	DeleteTask(id string) error

	// Pending queue (FIFO)
	EnqueuePending(taskID string) error
	DequeuePending() (string, bool, error)
	PendingDepth() (int, error)

	// TrimTasks deletes the oldest terminal tasks beyond keep.
	TrimTasks(keep int) (int, error)

	// Utility
	Close() error
}
