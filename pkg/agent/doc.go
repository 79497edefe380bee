/*
Package agent supervises the worker processes that execute jobs.

The supervisor owns every live agent: it spawns the child (directly for
local hosts, via ssh for remote ones), scans its stdout for the READY
and HEART protocol lines, and retires it when the signal bridge reaps
its pid. Job resolution happens here: exit status zero completes the
job, anything else fails it, and either way the host's agent counter
comes back down.

# Process lifecycle

	SPAWNING -> READY -> WORKING -> DYING -> DEAD

SPAWNING begins at fork; READY and WORKING follow the agent's own
stdout reports; DYING marks an agent that has been asked to terminate
(shutdown or missed heartbeat); DEAD is set when the pid is reaped.

Reaping is batched: one SIGCHLD triggers a WNOHANG waitpid loop that
collects every currently-dead child, and the whole batch retires in a
single event under the loop's single-threaded discipline. A death for
a pid the supervisor no longer knows is ignored silently.
*/
package agent
