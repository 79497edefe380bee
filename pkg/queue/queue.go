package queue

import (
	"fmt"

	"github.com/fosstrack/fosched/pkg/log"
	"github.com/fosstrack/fosched/pkg/store"
	"github.com/fosstrack/fosched/pkg/types"
)

// CapacityFunc reports whether jobs of a type currently have spare
// capacity to run. Wired by the scheduler from the meta-agent registry
// and the supervisor's per-type counts.
type CapacityFunc func(typeName string) bool

// Queue delivers ready jobs from the persistent store to the scheduler
// policy. It tracks three in-memory populations: pending jobs waiting
// to be claimed, claimed jobs handed to the policy but not yet
// launched, and running jobs. Owned by the event loop goroutine.
type Queue struct {
	store    store.Store
	capacity CapacityFunc

	pending []*types.Job
	claimed map[string]*types.Job
	running map[string]*types.Job
	known   map[string]bool
}

// NewQueue creates a queue over the given store. Sync must be called
// before the first NextJob to populate the pending set.
func NewQueue(st store.Store, capacity CapacityFunc) *Queue {
	return &Queue{
		store:    st,
		capacity: capacity,
		claimed:  make(map[string]*types.Job),
		running:  make(map[string]*types.Job),
		known:    make(map[string]bool),
	}
}

// Sync pulls newly persisted PENDING jobs into the pending set. Jobs
// already known (in any population) are left alone. This is the
// DATABASE_UPDATE pass.
func (q *Queue) Sync() error {
	jobs, err := q.store.ListJobsByState(types.JobStatePending)
	if err != nil {
		return fmt.Errorf("failed to list pending jobs: %w", err)
	}
	added := 0
	for _, j := range jobs {
		if q.known[j.ID] {
			continue
		}
		q.known[j.ID] = true
		q.pending = append(q.pending, j)
		added++
	}
	if added > 0 {
		log.WithComponent("queue").Debug().Int("jobs", added).Msg("pulled new jobs from store")
	}
	return nil
}

// NextJob returns the highest-priority pending job whose type has
// spare capacity, claiming it, or nil when none qualifies. Higher
// Priority values win; ties break on oldest enqueue time. A nil return
// has no side effects.
func (q *Queue) NextJob() *types.Job {
	best := -1
	for i, j := range q.pending {
		if q.capacity != nil && !q.capacity(j.Type) {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := q.pending[best]
		if j.Priority > b.Priority ||
			(j.Priority == b.Priority && j.EnqueuedAt.Before(b.EnqueuedAt)) {
			best = i
		}
	}
	if best < 0 {
		return nil
	}
	j := q.pending[best]
	q.pending = append(q.pending[:best], q.pending[best+1:]...)
	q.claimed[j.ID] = j
	return j
}

// Release returns a claimed job to the pending set, used when a launch
// attempt could not place it.
func (q *Queue) Release(job *types.Job) {
	if _, ok := q.claimed[job.ID]; !ok {
		return
	}
	delete(q.claimed, job.ID)
	q.pending = append(q.pending, job)
}

// MarkRunning moves a claimed job to the running set and persists the
// transition. Called by the supervisor on a successful launch.
func (q *Queue) MarkRunning(job *types.Job) {
	delete(q.claimed, job.ID)
	q.running[job.ID] = job
	if err := q.store.UpdateJob(job); err != nil {
		log.WithComponent("queue").Error().Err(err).Str("job_id", job.ID).Msg("failed to persist running state")
	}
}

// Resolve moves a running (or claimed) job to a terminal state and
// flushes it to the store. The job leaves the queue's bookkeeping; the
// store keeps the record.
func (q *Queue) Resolve(job *types.Job) {
	delete(q.claimed, job.ID)
	delete(q.running, job.ID)
	delete(q.known, job.ID)
	if err := q.store.UpdateJob(job); err != nil {
		log.WithComponent("queue").Error().Err(err).Str("job_id", job.ID).Msg("failed to flush terminal state")
	}
}

// ActiveCount returns the number of claimed plus running jobs. Pending
// jobs do not count until NextJob has returned them.
func (q *Queue) ActiveCount() int {
	return len(q.claimed) + len(q.running)
}

// PendingCount returns the number of unclaimed jobs.
func (q *Queue) PendingCount() int {
	return len(q.pending)
}

// Running returns the job with the given id if it is currently in the
// claimed or running sets.
func (q *Queue) Running(id string) *types.Job {
	if j, ok := q.running[id]; ok {
		return j
	}
	return q.claimed[id]
}
