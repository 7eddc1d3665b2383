// Package reporter emails task completion summaries to operators.
//
// Delivery is strictly best-effort: a failed send wraps the task result
// as {_original, _email_error} rather than failing the task.
package reporter
