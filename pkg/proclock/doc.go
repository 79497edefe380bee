/*
Package proclock enforces the singleton-instance discipline: at most
one fosched per machine.

The lock is a fixed-width, zero-padded pid written to a file under
/dev/shm, keyed by the process name. Acquire distinguishes the two
outcomes the caller must treat differently: this process became the
owner, or a live owner already exists (its pid is returned so --kill
and the startup error message can name it). Stale locks left by dead
pids are unlinked transparently.
*/
package proclock
