/*
Package types defines the shared data model for the fosched scheduler.

The core entities mirror the moving parts of the system:

  - Host: a configured execution machine with a bounded agent capacity.
  - MetaAgent: the immutable template describing how agents of one type
    are launched (command, per-host cap, EXCLUSIVE flag).
  - Job: one unit of analysis work, persisted in the job store, executed
    by exactly one agent.
  - Agent: a live worker process, keyed by its OS pid and owned by the
    agent supervisor.

Jobs reference their agent weakly, by pid, so reaping an agent never has
to touch the job graph's lifetime. All mutation of these structures
happens on the event loop thread; the types themselves carry no locks.
*/
package types
