package event

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/fosstrack/fosched/pkg/log"
)

// Kind identifies the type of an event
type Kind string

const (
	KindAgentDeath     Kind = "agent.death"
	KindAgentNotify    Kind = "agent.notify"
	KindAgentUpdate    Kind = "agent.update"
	KindDatabaseUpdate Kind = "database.update"
	KindSchedulerClose Kind = "scheduler.close"
	KindConfigReload   Kind = "config.reload"

	// KindQuery carries read-only operator queries into the loop so
	// answers are rendered without racing the core state.
	KindQuery Kind = "query"
)

// Event is one unit of work for the loop: a tag plus an opaque payload
// interpreted by the handler registered for the tag.
type Event struct {
	Kind    Kind
	Payload interface{}
}

// Handler processes one event on the loop goroutine.
type Handler func(payload interface{})

// Loop is a single-consumer FIFO event dispatcher. All scheduler state
// mutation funnels through it: producers (signal bridge, control
// interface, agent pipe readers) only ever call Signal, and the one
// goroutine inside Enter owns every registry and counter in the system.
type Loop struct {
	mu         sync.Mutex
	cond       *sync.Cond
	queue      []Event
	handlers   map[Kind]Handler
	terminated bool
	entered    bool
}

// NewLoop creates an empty loop with no handlers registered.
func NewLoop() *Loop {
	l := &Loop{
		handlers: make(map[Kind]Handler),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Handle registers the handler for a kind. Registering twice replaces
// the previous handler. Must be called before Enter.
func (l *Loop) Handle(kind Kind, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[kind] = h
}

// Signal enqueues an event. It never blocks beyond the queue lock and
// is safe to call from any goroutine, including from handlers running
// on the loop itself (the event is appended and processed in its turn).
func (l *Loop) Signal(kind Kind, payload interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, Event{Kind: kind, Payload: payload})
	l.cond.Signal()
}

// Terminate sets the drain flag. Idempotent. Already-enqueued events
// are still processed; the loop exits once the queue is empty.
func (l *Loop) Terminate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.terminated = true
	l.cond.Broadcast()
}

// Pending returns the number of queued, not yet dispatched events.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Enter runs the loop until Terminate has been called and the queue is
// empty. The tick callback runs once immediately and then again after
// every dispatched event, never concurrently with a handler.
func (l *Loop) Enter(tick func()) error {
	l.mu.Lock()
	if l.entered {
		l.mu.Unlock()
		return fmt.Errorf("event loop entered twice")
	}
	l.entered = true
	l.mu.Unlock()

	if tick != nil {
		tick()
	}

	for {
		ev, ok := l.next()
		if !ok {
			return nil
		}
		l.dispatch(ev)
		if tick != nil {
			tick()
		}
	}
}

// next blocks until an event is available or the loop has drained.
func (l *Loop) next() (Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for len(l.queue) == 0 && !l.terminated {
		l.cond.Wait()
	}
	if len(l.queue) == 0 {
		return Event{}, false
	}
	ev := l.queue[0]
	l.queue = l.queue[1:]
	return ev, true
}

// dispatch runs the handler for one event. Handler panics are caught
// here so a bad event cannot kill the loop.
func (l *Loop) dispatch(ev Event) {
	l.mu.Lock()
	h := l.handlers[ev.Kind]
	l.mu.Unlock()

	if h == nil {
		log.Logger.Debug().Str("kind", string(ev.Kind)).Msg("event with no handler dropped")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			log.Logger.Error().
				Str("kind", string(ev.Kind)).
				Interface("panic", r).
				Str("stack", string(buf[:n])).
				Msg("event handler panicked")
		}
	}()
	h(ev.Payload)
}
