package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/fosstrack/fosched/pkg/agent"
	"github.com/fosstrack/fosched/pkg/event"
	"github.com/fosstrack/fosched/pkg/host"
	"github.com/fosstrack/fosched/pkg/log"
	"github.com/fosstrack/fosched/pkg/meta"
	"github.com/fosstrack/fosched/pkg/metrics"
	"github.com/fosstrack/fosched/pkg/queue"
	"github.com/fosstrack/fosched/pkg/store"
	"github.com/fosstrack/fosched/pkg/types"
)

// DefaultHeartbeatTimeout is how long an agent may stay silent before
// the AGENT_UPDATE pass starts terminating it.
const DefaultHeartbeatTimeout = 5 * time.Minute

// Query is a read-only request admitted into the loop by the control
// interface. The handler renders the answer on the loop thread and
// sends it on Reply, so operators never observe torn state.
type Query struct {
	What  string
	Reply chan string
}

// AgentSupervisor is the slice of the agent supervisor the policy and
// the event handlers consume. *agent.Supervisor implements it; tests
// substitute a fake so scenarios run without real child processes.
type AgentSupervisor interface {
	Launch(*types.Host, *types.MetaAgent, *types.Job) (*types.Agent, error)
	NumAgents() int
	CountByType(typeName string) int
	ForEach(fn func(*types.Agent))
	KillAll()
	CheckHeartbeats(timeout time.Duration)
	HandleDeaths(batch []agent.Death)
	HandleNotification(n agent.Notification)
}

// Scheduler owns all mutable core state and wires the registries, the
// queue, the supervisor and the policy into one event loop. Everything
// here is touched only by the loop goroutine once Run has been called.
type Scheduler struct {
	Loop  *event.Loop
	Hosts *host.Registry
	Metas *meta.Registry
	Queue *queue.Queue
	Sup   AgentSupervisor
	Store store.Store

	// policy state
	closing  bool
	lockout  bool
	deferred *types.Job

	HeartbeatTimeout time.Duration

	// reload re-reads configuration on CONFIG_RELOAD; injected by main
	// so the scheduler stays ignorant of file formats.
	reload func(*Scheduler) error
}

// New wires a scheduler around the given store.
func New(st store.Store) *Scheduler {
	s := &Scheduler{
		Loop:             event.NewLoop(),
		Hosts:            host.NewRegistry(),
		Metas:            meta.NewRegistry(),
		Store:            st,
		HeartbeatTimeout: DefaultHeartbeatTimeout,
	}
	s.Queue = queue.NewQueue(st, s.typeHasCapacity)
	s.Sup = agent.NewSupervisor(s.Loop, s.Queue)
	s.registerHandlers()
	return s
}

// SetReloadFunc installs the configuration reload callback.
func (s *Scheduler) SetReloadFunc(fn func(*Scheduler) error) {
	s.reload = fn
}

// typeHasCapacity is the queue's capacity check: a type has spare
// capacity while fewer agents of that type are live than its cap.
// Unknown types have no capacity and stay pending.
func (s *Scheduler) typeHasCapacity(typeName string) bool {
	m := s.Metas.Get(typeName)
	if m == nil {
		return false
	}
	return s.Sup.CountByType(typeName) < m.MaxPerHost
}

// Closing reports whether a shutdown is in progress.
func (s *Scheduler) Closing() bool {
	return s.closing
}

// Lockout reports whether an exclusive job holds the system.
func (s *Scheduler) Lockout() bool {
	return s.lockout
}

// registerHandlers binds the closed event set to the core.
func (s *Scheduler) registerHandlers() {
	s.Loop.Handle(event.KindAgentDeath, func(p interface{}) {
		s.countEvent(event.KindAgentDeath)
		if batch, ok := p.([]agent.Death); ok {
			s.Sup.HandleDeaths(batch)
		}
	})

	s.Loop.Handle(event.KindAgentNotify, func(p interface{}) {
		if n, ok := p.(agent.Notification); ok {
			s.Sup.HandleNotification(n)
		}
	})

	s.Loop.Handle(event.KindAgentUpdate, func(p interface{}) {
		s.countEvent(event.KindAgentUpdate)
		s.Sup.CheckHeartbeats(s.HeartbeatTimeout)
	})

	s.Loop.Handle(event.KindDatabaseUpdate, func(p interface{}) {
		s.countEvent(event.KindDatabaseUpdate)
		if err := s.Queue.Sync(); err != nil {
			log.WithComponent("scheduler").Error().Err(err).Msg("database update failed")
		}
	})

	s.Loop.Handle(event.KindSchedulerClose, func(p interface{}) {
		s.countEvent(event.KindSchedulerClose)
		s.handleClose()
	})

	s.Loop.Handle(event.KindConfigReload, func(p interface{}) {
		s.countEvent(event.KindConfigReload)
		if s.reload == nil {
			return
		}
		if err := s.reload(s); err != nil {
			log.WithComponent("scheduler").Error().Err(err).Msg("config reload failed")
		} else {
			log.WithComponent("scheduler").Info().Msg("configuration reloaded")
		}
	})

	s.Loop.Handle(event.KindQuery, func(p interface{}) {
		if q, ok := p.(Query); ok {
			q.Reply <- s.answer(q.What)
		}
	})
}

func (s *Scheduler) countEvent(k event.Kind) {
	metrics.EventsProcessed.WithLabelValues(string(k)).Inc()
}

// handleClose begins the drain: no new work is admitted, a deferred
// exclusive job goes back to pending for the next incarnation, and
// every live agent is asked to terminate. The loop exits from the tick
// once the system is empty.
func (s *Scheduler) handleClose() {
	if s.closing {
		return
	}
	s.closing = true
	if s.deferred != nil {
		s.Queue.Release(s.deferred)
		s.deferred = nil
	}
	s.Sup.KillAll()
	log.WithComponent("scheduler").Info().Msg("shutdown requested, draining")
}

// Run enters the event loop with the scheduling policy as the tick
// callback. It blocks until the system drains after a close event.
func (s *Scheduler) Run() error {
	// Prime the queue before the first tick so already-persisted jobs
	// are visible immediately.
	s.Loop.Signal(event.KindDatabaseUpdate, nil)
	return s.Loop.Enter(s.tick)
}

// Shutdown is the programmatic equivalent of SIGTERM.
func (s *Scheduler) Shutdown() {
	s.Loop.Signal(event.KindSchedulerClose, nil)
}

// answer renders a control-interface query on the loop thread.
func (s *Scheduler) answer(what string) string {
	switch what {
	case "status":
		return fmt.Sprintf("jobs: %d active, %d pending; agents: %d live; lockout: %t; closing: %t",
			s.Queue.ActiveCount(), s.Queue.PendingCount(), s.Sup.NumAgents(), s.lockout, s.closing)
	case "agents":
		var b strings.Builder
		s.Sup.ForEach(func(a *types.Agent) {
			fmt.Fprintf(&b, "agent %d type=%s host=%s job=%s state=%s progress=%d\n",
				a.PID, a.Type, a.HostID, a.JobID, a.State, a.Progress)
		})
		if b.Len() == 0 {
			return "no live agents"
		}
		return strings.TrimRight(b.String(), "\n")
	case "hosts":
		var b strings.Builder
		s.Hosts.ForEach(func(h *types.Host) {
			fmt.Fprintf(&b, "host %s address=%s agents=%d/%d\n",
				h.ID, h.Address, h.RunningAgents, h.MaxAgents)
		})
		if b.Len() == 0 {
			return "no hosts configured"
		}
		return strings.TrimRight(b.String(), "\n")
	default:
		return "unknown query: " + what
	}
}
