package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wpsteward/steward/pkg/events"
	"github.com/wpsteward/steward/pkg/handlers"
	"github.com/wpsteward/steward/pkg/log"
	"github.com/wpsteward/steward/pkg/metrics"
	"github.com/wpsteward/steward/pkg/remote"
	"github.com/wpsteward/steward/pkg/reporter"
	"github.com/wpsteward/steward/pkg/storage"
	"github.com/wpsteward/steward/pkg/types"
)

// pollInterval is how long an idle worker sleeps between queue reads
// when no submission wakes it first.
const pollInterval = 500 * time.Millisecond

// ConnectFunc opens a remote session for a task. Production wires
// remote.Connect; tests substitute fakes.
type ConnectFunc func(ctx context.Context, site *types.SiteRecord, opts remote.ConnectOptions) (remote.Runner, func() error, error)

// Config assembles a queue.
type Config struct {
	Store    storage.Store
	Handlers *handlers.Registry
	Broker   *events.Broker
	Sender   reporter.Sender
	Workers  int
	SSHOpts  remote.ConnectOptions
	Connect  ConnectFunc

	// Retain caps how many terminal tasks the store keeps. Zero keeps
	// everything.
	Retain int
}

// Queue delivers each persisted task to exactly one worker in FIFO
// order and records every state transition in the store.
type Queue struct {
	store    storage.Store
	handlers *handlers.Registry
	broker   *events.Broker
	sender   reporter.Sender
	workers  int
	sshOpts  remote.ConnectOptions
	connect  ConnectFunc
	retain   int

	notifyCh chan struct{}
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a queue. Workers do not run until Start.
func New(cfg Config) *Queue {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	connect := cfg.Connect
	if connect == nil {
		connect = func(ctx context.Context, site *types.SiteRecord, opts remote.ConnectOptions) (remote.Runner, func() error, error) {
			session, err := remote.Connect(ctx, site, opts)
			if err != nil {
				return nil, nil, err
			}
			return session, session.Close, nil
		}
	}
	return &Queue{
		store:    cfg.Store,
		handlers: cfg.Handlers,
		broker:   cfg.Broker,
		sender:   cfg.Sender,
		workers:  workers,
		sshOpts:  cfg.SSHOpts,
		connect:  connect,
		retain:   cfg.Retain,
		notifyCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	log.WithComponent("queue").Info().Int("workers", q.workers).Msg("worker pool started")
}

// Stop drains the pool. In-flight tasks finish; pending tasks stay in
// the store and survive restart.
func (q *Queue) Stop() {
	close(q.stopCh)
	q.wg.Wait()
}

// Submit validates and persists a task, then wakes the pool. The
// returned id is immediately resolvable via Lookup.
func (q *Queue) Submit(kind string, site types.SiteRecord, args types.Args, reportEmail string) (string, error) {
	handler, ok := q.handlers.Lookup(kind)
	if !ok {
		return "", fmt.Errorf("unknown task kind %q", kind)
	}
	if handler.NeedsSSH {
		if err := site.Validate(); err != nil {
			return "", err
		}
	}

	task := &types.Task{
		ID:          uuid.NewString(),
		Kind:        kind,
		Site:        site,
		Args:        args,
		ReportEmail: reportEmail,
		State:       types.TaskStateQueued,
		CreatedAt:   time.Now().UTC(),
	}
	if err := q.store.CreateTask(task); err != nil {
		return "", fmt.Errorf("persisting task: %w", err)
	}
	if err := q.store.EnqueuePending(task.ID); err != nil {
		return "", fmt.Errorf("enqueuing task: %w", err)
	}

	metrics.TasksSubmitted.WithLabelValues(kind).Inc()
	q.publish(events.EventTaskQueued, task, "task queued")

	select {
	case q.notifyCh <- struct{}{}:
	default:
	}
	return task.ID, nil
}

// Lookup returns the stored task. Unknown ids surface the store's
// storage.ErrNotFound.
func (q *Queue) Lookup(taskID string) (*types.Task, error) {
	return q.store.GetTask(taskID)
}

// WaitTerminal polls until the task reaches a terminal state or the
// context expires.
func (q *Queue) WaitTerminal(ctx context.Context, taskID string) (*types.Task, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		task, err := q.store.GetTask(taskID)
		if err != nil {
			return nil, err
		}
		if task.State.Terminal() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	logger := log.WithComponent("worker")

	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		taskID, found, err := q.store.DequeuePending()
		if err != nil {
			logger.Error().Err(err).Msg("dequeue failed")
			found = false
		}
		if !found {
			select {
			case <-q.stopCh:
				return
			case <-ctx.Done():
				return
			case <-q.notifyCh:
			case <-time.After(pollInterval):
			}
			continue
		}

		task, err := q.store.GetTask(taskID)
		if err != nil {
			logger.Error().Err(err).Str("task_id", taskID).Msg("dequeued unknown task")
			continue
		}
		q.execute(ctx, task)
	}
}

// execute runs one task through its full lifecycle. Panics in handlers
// are contained and fail only the task.
func (q *Queue) execute(ctx context.Context, task *types.Task) {
	logger := log.WithTaskID(task.ID)

	task.State = types.TaskStateInProgress
	task.StartedAt = time.Now().UTC()
	if err := q.store.UpdateTask(task); err != nil {
		logger.Error().Err(err).Msg("marking task in_progress failed")
	}
	q.publish(events.EventTaskStarted, task, "task started")
	logger.Info().Str("kind", task.Kind).Fields(map[string]any{"site": task.Site.Redacted()}).Msg("task started")

	timer := metrics.NewTimer()
	result, runErr := q.runHandler(ctx, task)

	if runErr == nil && task.ReportEmail != "" {
		result = reporter.Report(q.sender, task.ReportEmail, task.Kind, result)
	}

	task.FinishedAt = time.Now().UTC()
	if runErr != nil {
		task.State = types.TaskStateFailed
		task.Info = runErr.Error()
		logger.Error().Err(runErr).Str("kind", task.Kind).Msg("task failed")
		q.publish(events.EventTaskFailed, task, runErr.Error())
	} else {
		task.State = types.TaskStateSucceeded
		task.Result = result
		logger.Info().Str("kind", task.Kind).Msg("task succeeded")
		q.publish(events.EventTaskSucceeded, task, "task succeeded")
	}
	timer.ObserveDurationVec(metrics.TaskDuration, task.Kind)
	metrics.TasksCompleted.WithLabelValues(task.Kind, string(task.State)).Inc()

	if err := q.store.UpdateTask(task); err != nil {
		logger.Error().Err(err).Msg("persisting task result failed")
	}

	if q.retain > 0 {
		if n, err := q.store.TrimTasks(q.retain); err != nil {
			logger.Warn().Err(err).Msg("trimming old tasks failed")
		} else if n > 0 {
			logger.Debug().Int("trimmed", n).Msg("old task results trimmed")
		}
	}
}

// runHandler opens the SSH session when the kind needs one and invokes
// the handler. Session release and key cleanup are guaranteed on every
// exit path, panics included.
func (q *Queue) runHandler(ctx context.Context, task *types.Task) (result map[string]any, err error) {
	handler, ok := q.handlers.Lookup(task.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown task kind %q", task.Kind)
	}

	var runner remote.Runner
	if handler.NeedsSSH {
		r, release, cerr := q.connect(ctx, &task.Site, q.sshOpts)
		if cerr != nil {
			return nil, fmt.Errorf("ssh connect: %w", cerr)
		}
		defer func() {
			if rerr := release(); rerr != nil {
				log.WithTaskID(task.ID).Warn().Err(rerr).Msg("session release failed")
			}
		}()
		runner = r
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return handler.Fn(ctx, runner, task.Args)
}

func (q *Queue) publish(eventType events.EventType, task *types.Task, msg string) {
	if q.broker == nil {
		return
	}
	q.broker.Publish(&events.Event{
		ID:      task.ID,
		Type:    eventType,
		Message: msg,
		Metadata: map[string]string{
			"kind": task.Kind,
			"host": task.Site.Host,
		},
	})
}
