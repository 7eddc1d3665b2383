/*
Package events implements a lightweight in-process publish/subscribe
broker for task lifecycle events.

The queue publishes task.queued, task.started, task.succeeded and
task.failed as tasks move through their state machine; the API publishes
session.opened after a successful SSH probe. Subscribers receive events
over buffered channels and slow subscribers are skipped rather than
blocking the broker. Delivery is best-effort; nothing
correctness-critical may depend on it.

Typical subscriber:

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	for ev := range sub {
		log.Info().Str("type", string(ev.Type)).Msg(ev.Message)
	}
*/
package events
