/*
Package store persists the job queue in an embedded bbolt database.

Jobs live in a single bucket keyed by id, serialized as JSON. The store
is the system of record: jobs submitted through the control interface
land here first, the queue layer pulls PENDING jobs from here into
memory, and terminal states are flushed back on completion. ResetQueue
implements the --reset startup flag by returning every non-terminal job
to PENDING after an unclean shutdown.
*/
package store
