/*
Package types defines the shared data model of steward: the SiteRecord
connection descriptor, verified Sessions, Tasks with their monotonic
state machine, the Snapshot rollback pair, and the keyword-argument bag
handlers decode their argument records from.

Types here carry no behavior beyond validation, redaction and argument
decoding; all orchestration lives in the queue, handler and api packages.
*/
package types
