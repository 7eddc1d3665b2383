package queue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wpsteward/steward/pkg/handlers"
	"github.com/wpsteward/steward/pkg/remote"
	"github.com/wpsteward/steward/pkg/storage"
	"github.com/wpsteward/steward/pkg/types"
)

// stubRunner answers every remote command with a canned result.
type stubRunner struct {
	site  *types.SiteRecord
	panic bool
}

func (s *stubRunner) Run(ctx context.Context, cmd string) (*remote.CommandResult, error) {
	if s.panic {
		panic("runner exploded")
	}
	return &remote.CommandResult{Stdout: "[]"}, nil
}

func (s *stubRunner) Sudo(ctx context.Context, cmd string) (*remote.CommandResult, error) {
	return s.Run(ctx, cmd)
}

func (s *stubRunner) Put(ctx context.Context, content []byte, remotePath string, mode os.FileMode) error {
	return nil
}

func (s *stubRunner) Fetch(ctx context.Context, remotePath string) ([]byte, error) {
	return nil, errors.New("no such file")
}

func (s *stubRunner) Site() *types.SiteRecord { return s.site }

type recordingSender struct {
	sent []string
	err  error
}

func (r *recordingSender) Send(to, subject string, result map[string]any) error {
	r.sent = append(r.sent, to)
	return r.err
}

func testSite() types.SiteRecord {
	return types.SiteRecord{
		Host:     "wp1.example.com",
		User:     "root",
		Password: "pw",
		WPPath:   "/var/www/html",
		DBName:   "wp_db",
		DBUser:   "wp_user",
		DBPass:   "wp_pass",
	}
}

func newTestQueue(t *testing.T, panicRunner bool, sender *recordingSender) (*Queue, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	q := New(Config{
		Store:    store,
		Handlers: handlers.NewRegistry(handlers.Deps{}),
		Sender:   sender,
		Workers:  2,
		Connect: func(ctx context.Context, site *types.SiteRecord, opts remote.ConnectOptions) (remote.Runner, func() error, error) {
			return &stubRunner{site: site, panic: panicRunner}, func() error { return nil }, nil
		},
	})
	return q, store
}

func waitFor(t *testing.T, q *Queue, taskID string) *types.Task {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task, err := q.WaitTerminal(ctx, taskID)
	require.NoError(t, err)
	return task
}

func TestSubmitAndExecute(t *testing.T) {
	q, _ := newTestQueue(t, false, nil)
	q.Start(context.Background())
	defer q.Stop()

	id, err := q.Submit("wp_status", testSite(), types.Args{}, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	task := waitFor(t, q, id)
	assert.Equal(t, types.TaskStateSucceeded, task.State)
	assert.NotNil(t, task.Result)
	assert.False(t, task.StartedAt.IsZero())
	assert.False(t, task.FinishedAt.IsZero())
}

func TestSubmitUnknownKind(t *testing.T) {
	q, _ := newTestQueue(t, false, nil)

	_, err := q.Submit("no_such_kind", testSite(), nil, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task kind")
}

func TestSubmitInvalidSite(t *testing.T) {
	q, _ := newTestQueue(t, false, nil)

	_, err := q.Submit("wp_status", types.SiteRecord{User: "root"}, nil, "")
	require.Error(t, err)
}

func TestSubmitPersistsBeforeReturn(t *testing.T) {
	// Workers are not running: the submitted task must still be
	// immediately visible in its queued state.
	q, store := newTestQueue(t, false, nil)

	id, err := q.Submit("wp_status", testSite(), types.Args{}, "")
	require.NoError(t, err)

	task, err := store.GetTask(id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStateQueued, task.State)

	depth, err := store.PendingDepth()
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestLookupUnknownTask(t *testing.T) {
	q, _ := newTestQueue(t, false, nil)

	_, err := q.Lookup("00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestHandlerPanicFailsTask(t *testing.T) {
	q, _ := newTestQueue(t, true, nil)
	q.Start(context.Background())
	defer q.Stop()

	id, err := q.Submit("wp_status", testSite(), types.Args{}, "")
	require.NoError(t, err)

	task := waitFor(t, q, id)
	assert.Equal(t, types.TaskStateFailed, task.State)
	assert.Contains(t, task.Info, "handler panic")
}

func TestReportEmailSent(t *testing.T) {
	sender := &recordingSender{}
	q, _ := newTestQueue(t, false, sender)
	q.Start(context.Background())
	defer q.Stop()

	id, err := q.Submit("wp_status", testSite(), types.Args{}, "ops@example.com")
	require.NoError(t, err)

	task := waitFor(t, q, id)
	assert.Equal(t, types.TaskStateSucceeded, task.State)
	assert.Equal(t, []string{"ops@example.com"}, sender.sent)
}

func TestReportEmailFailureWrapsResult(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	q, _ := newTestQueue(t, false, sender)
	q.Start(context.Background())
	defer q.Stop()

	id, err := q.Submit("wp_status", testSite(), types.Args{}, "ops@example.com")
	require.NoError(t, err)

	task := waitFor(t, q, id)
	assert.Equal(t, types.TaskStateSucceeded, task.State, "email failure must not fail the task")
	require.Contains(t, task.Result, "_email_error")
	assert.Equal(t, "smtp down", task.Result["_email_error"])
	assert.Contains(t, task.Result, "_original")
}

func TestTasksSurviveWithoutWorkers(t *testing.T) {
	q, store := newTestQueue(t, false, nil)

	for i := 0; i < 3; i++ {
		_, err := q.Submit("wp_status", testSite(), types.Args{}, "")
		require.NoError(t, err)
	}

	depth, err := store.PendingDepth()
	require.NoError(t, err)
	assert.Equal(t, 3, depth)

	// A freshly started pool drains the backlog.
	q.Start(context.Background())
	defer q.Stop()

	require.Eventually(t, func() bool {
		depth, err := store.PendingDepth()
		return err == nil && depth == 0
	}, 5*time.Second, 50*time.Millisecond)
}
