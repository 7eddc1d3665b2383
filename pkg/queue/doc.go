/*
Package queue executes tasks against managed hosts through a persistent
FIFO queue and a fixed worker pool.

Submissions are written to the store before the submitter gets an id,
so accepted work survives a process restart. Each task is delivered to
exactly one worker; state transitions are monotonic along
queued -> in_progress -> succeeded|failed and terminal states are never
revisited. Per-host ordering is not guaranteed: two tasks against the
same host may run concurrently.

Handler panics fail only their task. SSH sessions opened for a task are
released on every exit path.
*/
package queue
