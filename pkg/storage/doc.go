/*
Package storage provides the persistent task-state store and the durable
pending queue backed by BoltDB.

Every task is serialized to JSON and written under its id in the tasks
bucket; the pending queue is a second bucket keyed by the bucket's
monotonic sequence number so that a forward cursor walk yields strict
FIFO order. Both live in a single database file under the configured
data directory, which makes a submitted task survive a process restart:
anything still in the pending bucket is picked up again by the worker
pool on boot.

The Store interface keeps the backend swappable; handlers and the API
only ever see task ids and types.Task values.

Concurrency is delegated to BoltDB's single-writer transaction model:
many workers may call DequeuePending concurrently and each pending id is
delivered to exactly one of them, because the pop happens inside one
Update transaction.
*/
package storage
