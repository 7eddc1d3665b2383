/*
Package handlers implements the task kinds the queue can execute.

Remote kinds (wp_status, the backups, update_with_rollback and the two
script runners) receive a live SSH session through the remote.Runner
interface. Local kinds (healthcheck, the expiry probes and the update
driver wrappers) run on the control plane itself.

Every handler decodes its argument bag into a typed record, returns a
JSON-ready map on success, and fails by returning an error whose text
becomes the task's info.
*/
package handlers
