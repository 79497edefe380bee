/*
Package queue delivers ready jobs from the persistent store to the
scheduler policy.

The queue keeps a claim discipline: NextJob removes the best eligible
pending job and marks it claimed, Release puts a claimed job back when
launch placement fails, and MarkRunning/Resolve advance it through its
lifecycle, flushing state changes to the store. ActiveCount (claimed
plus running) is what the policy consults to decide whether the system
has drained. Priority ordering is numeric-descending with FIFO
tie-breaking on enqueue time.
*/
package queue
