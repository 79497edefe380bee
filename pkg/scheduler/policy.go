package scheduler

import (
	"errors"
	"time"

	"github.com/fosstrack/fosched/pkg/agent"
	"github.com/fosstrack/fosched/pkg/log"
	"github.com/fosstrack/fosched/pkg/metrics"
	"github.com/fosstrack/fosched/pkg/types"
)

// tick is the scheduling policy, run by the event loop between events.
// It must stay lightweight: it fires after every single event.
func (s *Scheduler) tick() {
	start := time.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(start).Seconds())
		s.observeGauges()
	}()

	// A claimed-but-deferred exclusive job is active by the queue's
	// accounting; the drain conditions below care about everything
	// except it.
	drained := s.drainedNow()

	if s.closing && drained {
		log.WithComponent("scheduler").Info().Msg("system drained, terminating loop")
		s.Loop.Terminate()
		return
	}

	if s.lockout && drained {
		s.lockout = false
		log.WithComponent("scheduler").Info().Msg("exclusive job finished, lockout cleared")
	}

	if s.deferred == nil && !s.lockout && !s.closing {
		s.pullJobs()
	}

	// Re-check the drain: pullJobs above may have launched non-exclusive
	// agents in this same tick, and the exclusive job must not start
	// beside them.
	if s.deferred != nil && !s.closing && s.drainedNow() {
		s.launchDeferred()
	}
}

// drainedNow recomputes the drain condition from live state.
func (s *Scheduler) drainedNow() bool {
	return s.Sup.NumAgents() == 0 && s.Queue.ActiveCount() == s.deferredCount()
}

func (s *Scheduler) deferredCount() int {
	if s.deferred != nil {
		return 1
	}
	return 0
}

// pullJobs drains the ready queue: non-exclusive jobs launch
// immediately while hosts have room; the first exclusive job stops the
// pull and is parked until the system drains.
func (s *Scheduler) pullJobs() {
	for {
		j := s.Queue.NextJob()
		if j == nil {
			return
		}

		if s.Metas.IsExclusive(j.Type) {
			s.deferred = j
			log.WithJobID(j.ID).Info().Str("type", j.Type).Msg("exclusive job deferred until drain")
			return
		}

		h := s.Hosts.GetHost(1)
		if h == nil {
			// No capacity anywhere: put the job back and wait for a
			// death to free a slot.
			s.Queue.Release(j)
			metrics.LaunchErrors.WithLabelValues("no_host_capacity").Inc()
			return
		}

		if !s.launch(h, j) {
			return
		}
	}
}

// launch starts one job on one host. Returns false when the pull loop
// should stop.
func (s *Scheduler) launch(h *types.Host, j *types.Job) bool {
	_, err := s.Sup.Launch(h, s.Metas.Get(j.Type), j)
	switch {
	case err == nil:
		return true
	case errors.Is(err, agent.ErrSpawnFailed):
		// Job already failed by the supervisor; keep pulling.
		log.WithJobID(j.ID).Error().Err(err).Msg("agent spawn failed")
		return true
	case errors.Is(err, agent.ErrNoHostCapacity), errors.Is(err, agent.ErrNoMetaAgent):
		s.Queue.Release(j)
		metrics.LaunchErrors.WithLabelValues(reasonLabel(err)).Inc()
		log.WithJobID(j.ID).Warn().Err(err).Msg("launch deferred, job released")
		return false
	default:
		s.Queue.Release(j)
		log.WithJobID(j.ID).Error().Err(err).Msg("unexpected launch error, job released")
		return false
	}
}

// launchDeferred runs the parked exclusive job once the system has
// drained, entering lockout so nothing else is admitted beside it.
func (s *Scheduler) launchDeferred() {
	j := s.deferred

	h := s.Hosts.GetHost(1)
	if h == nil {
		// Keep the claim; releasing would let non-exclusive work slip
		// in ahead of the exclusive job.
		metrics.LaunchErrors.WithLabelValues("no_host_capacity").Inc()
		return
	}

	_, err := s.Sup.Launch(h, s.Metas.Get(j.Type), j)
	switch {
	case err == nil:
		s.lockout = true
		s.deferred = nil
		log.WithJobID(j.ID).Info().Msg("exclusive job launched, lockout engaged")
	case errors.Is(err, agent.ErrSpawnFailed):
		s.deferred = nil
	case errors.Is(err, agent.ErrNoMetaAgent):
		// Type vanished in a reload; back to pending until an operator
		// restores the agent config.
		s.Queue.Release(j)
		s.deferred = nil
		metrics.LaunchErrors.WithLabelValues("no_meta_agent").Inc()
		log.WithJobID(j.ID).Warn().Err(err).Msg("exclusive job released, meta agent missing")
	default:
		metrics.LaunchErrors.WithLabelValues(reasonLabel(err)).Inc()
	}
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, agent.ErrNoHostCapacity):
		return "no_host_capacity"
	case errors.Is(err, agent.ErrNoMetaAgent):
		return "no_meta_agent"
	case errors.Is(err, agent.ErrSpawnFailed):
		return "spawn_failed"
	default:
		return "other"
	}
}

// observeGauges refreshes the point-in-time metrics after each tick.
func (s *Scheduler) observeGauges() {
	metrics.JobsTotal.WithLabelValues(string(types.JobStatePending)).Set(float64(s.Queue.PendingCount()))
	metrics.JobsTotal.WithLabelValues(string(types.JobStateRunning)).Set(float64(s.Queue.ActiveCount()))
	metrics.AgentsLive.Set(float64(s.Sup.NumAgents()))
	if s.lockout {
		metrics.SchedulerLockout.Set(1)
	} else {
		metrics.SchedulerLockout.Set(0)
	}
	s.Hosts.ForEach(func(h *types.Host) {
		metrics.HostAgents.WithLabelValues(h.ID).Set(float64(h.RunningAgents))
		metrics.HostCapacity.WithLabelValues(h.ID).Set(float64(h.MaxAgents))
	})
}
