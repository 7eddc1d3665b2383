/*
Package metrics exposes Prometheus metrics and health endpoints for steward.

All metrics are registered on the default registry at package init and
served by Handler() at /metrics.

# Metrics

Task metrics:

	steward_tasks{state}                     stored tasks by state gauge
	steward_tasks_submitted_total{kind}      tasks accepted by the API
	steward_tasks_completed_total{kind,state} finished tasks by outcome
	steward_task_duration_seconds{kind}      handler execution duration

Queue metrics:

	steward_queue_depth                      tasks waiting in the pending queue

API metrics:

	steward_api_requests_total{method,status}
	steward_api_request_duration_seconds{method}

Remote execution metrics:

	steward_ssh_connect_duration_seconds
	steward_ssh_connect_failures_total

Reporter metrics:

	steward_reports_sent_total{outcome}      completion emails, outcome is
	                                         "sent" or "error"

# Collector

The Collector samples the task store every 15 seconds and refreshes the
steward_tasks and steward_queue_depth gauges:

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

# Health

The package also tracks component health for the /health, /ready and
/live endpoints. Components register at startup and update their status
as conditions change:

	metrics.RegisterComponent("store", true, "")
	metrics.UpdateComponent("queue", false, "worker pool stopped")

Readiness requires the store, queue and api components to be registered
and healthy.
*/
package metrics
