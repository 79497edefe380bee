/*
Package scheduler wires the registries, the job queue and the agent
supervisor into one event loop and implements the scheduling policy.

The policy runs as the loop's tick callback, after every event:

 1. When closing and the system has drained (no live agents, no active
    jobs), the loop terminates.
 2. When an exclusive job's lockout is in force and the system has
    drained, the lockout clears.
 3. Otherwise ready jobs are pulled from the queue. Non-exclusive jobs
    launch immediately, first-fit across hosts; the first exclusive job
    encountered is claimed and parked instead, stopping the pull.
 4. A parked exclusive job launches alone once the system drains, and
    lockout holds until it finishes.

The two-phase deferral in steps 3 and 4 is what gives exclusive jobs
(schema migrations, full re-indexes) a system with no other mutators:
the claim happens at decision time, so no non-exclusive job can be
admitted between "we will run exclusively" and "the system is empty".

Operator visibility goes through Query events: the control interface
enqueues a query, the loop thread renders the answer, and no reader
ever observes the core mid-mutation.
*/
package scheduler
