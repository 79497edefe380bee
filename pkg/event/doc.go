/*
Package event implements the scheduler's single-consumer event loop.

Every state mutation in fosched happens on the one goroutine running
inside Loop.Enter. Producers on other goroutines (the signal bridge,
the control interface, agent pipe readers) enqueue typed events with
Signal; the loop drains them strictly in enqueue order and runs the
scheduler's tick callback between events.

# Ordering guarantees

  - Events are dispatched in enqueue order (FIFO).
  - The tick callback runs once at entry and after every event, never
    concurrently with a handler.
  - A handler completes before the next event or tick runs. Handlers
    may Signal further events; those are appended and processed in
    their turn.

Terminate is idempotent: it marks the loop as draining, already-queued
events are still processed, and Enter returns once the queue is empty.
Handler panics are caught at the dispatch boundary and logged; the only
ways out of the loop are a clean drain or a fatal startup failure long
before Enter.
*/
package event
