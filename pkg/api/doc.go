/*
Package api exposes the HTTP submitter: one POST endpoint per task kind,
task lookup, SSH session management and the operational endpoints
(/health, /ready, /live, /metrics).

Submissions carry the site record and handler arguments in one flat JSON
body; the user field is always rewritten to root before enqueueing.
Destructive endpoints (wp-reset, wp-update/all) are gated behind the
configured reset token and answer 503 when none is set. The backup
endpoints accept download=true to block for the task and stream the
produced artefact back over a fresh SSH session.
*/
package api
