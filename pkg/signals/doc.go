/*
Package signals bridges OS signals into the event loop.

Signals never touch scheduler state directly: the bridge's goroutine
receives them from the runtime's signal channel and enqueues the
matching event, so ordering stays deterministic once events are in the
queue. SIGCHLD additionally reaps all currently-dead children with
non-blocking waitpid and ships the batch inside a single agent.death
event. A ticker stands in for the original's re-armed alarm, firing
the periodic agent and database checks; SIGALRM forces the same checks
immediately.
*/
package signals
