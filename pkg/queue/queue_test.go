package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fosstrack/fosched/pkg/store"
	"github.com/fosstrack/fosched/pkg/types"
)

func newTestQueue(t *testing.T, capacity CapacityFunc) (*Queue, *store.BoltStore) {
	t.Helper()
	st, err := store.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return NewQueue(st, capacity), st
}

func seed(t *testing.T, st *store.BoltStore, jobs ...*types.Job) {
	t.Helper()
	for _, j := range jobs {
		if j.State == "" {
			j.State = types.JobStatePending
		}
		require.NoError(t, st.CreateJob(j))
	}
}

func TestNextJobPriorityOrder(t *testing.T) {
	q, st := newTestQueue(t, nil)
	base := time.Now()
	seed(t, st,
		&types.Job{ID: "low", Type: "copyright", Priority: 1, EnqueuedAt: base},
		&types.Job{ID: "high", Type: "copyright", Priority: 9, EnqueuedAt: base.Add(time.Second)},
		&types.Job{ID: "mid", Type: "copyright", Priority: 5, EnqueuedAt: base.Add(2 * time.Second)},
	)
	require.NoError(t, q.Sync())

	assert.Equal(t, "high", q.NextJob().ID)
	assert.Equal(t, "mid", q.NextJob().ID)
	assert.Equal(t, "low", q.NextJob().ID)
	assert.Nil(t, q.NextJob())
}

func TestNextJobFIFOTieBreak(t *testing.T) {
	q, st := newTestQueue(t, nil)
	base := time.Now()
	seed(t, st,
		&types.Job{ID: "second", Type: "copyright", Priority: 5, EnqueuedAt: base.Add(time.Minute)},
		&types.Job{ID: "first", Type: "copyright", Priority: 5, EnqueuedAt: base},
	)
	require.NoError(t, q.Sync())

	assert.Equal(t, "first", q.NextJob().ID)
	assert.Equal(t, "second", q.NextJob().ID)
}

func TestNextJobHonorsCapacity(t *testing.T) {
	allowed := map[string]bool{"copyright": false, "nomos": true}
	q, st := newTestQueue(t, func(typeName string) bool { return allowed[typeName] })
	seed(t, st,
		&types.Job{ID: "c1", Type: "copyright", Priority: 9},
		&types.Job{ID: "n1", Type: "nomos", Priority: 1},
	)
	require.NoError(t, q.Sync())

	// The higher-priority copyright job is skipped: its type is full.
	j := q.NextJob()
	require.NotNil(t, j)
	assert.Equal(t, "n1", j.ID)

	// Nothing eligible left; nil return is side-effect-free.
	assert.Nil(t, q.NextJob())
	assert.Equal(t, 1, q.PendingCount())

	allowed["copyright"] = true
	j = q.NextJob()
	require.NotNil(t, j)
	assert.Equal(t, "c1", j.ID)
}

func TestClaimReleaseActiveCount(t *testing.T) {
	q, st := newTestQueue(t, nil)
	seed(t, st, &types.Job{ID: "a", Type: "copyright"})
	require.NoError(t, q.Sync())

	assert.Equal(t, 0, q.ActiveCount(), "pending jobs are not active")

	j := q.NextJob()
	require.NotNil(t, j)
	assert.Equal(t, 1, q.ActiveCount(), "claimed jobs are active")

	q.Release(j)
	assert.Equal(t, 0, q.ActiveCount())
	assert.Equal(t, 1, q.PendingCount())

	// A released job can be claimed again.
	j = q.NextJob()
	require.NotNil(t, j)
	q.MarkRunning(j)
	assert.Equal(t, 1, q.ActiveCount(), "running jobs are active")
}

func TestMarkRunningPersists(t *testing.T) {
	q, st := newTestQueue(t, nil)
	seed(t, st, &types.Job{ID: "a", Type: "copyright"})
	require.NoError(t, q.Sync())

	j := q.NextJob()
	require.NotNil(t, j)
	j.State = types.JobStateRunning
	j.AssignedAgent = 4242
	q.MarkRunning(j)

	got, err := st.GetJob("a")
	require.NoError(t, err)
	assert.Equal(t, types.JobStateRunning, got.State)
	assert.Equal(t, 4242, got.AssignedAgent)
}

func TestResolveFlushesTerminalState(t *testing.T) {
	q, st := newTestQueue(t, nil)
	seed(t, st, &types.Job{ID: "a", Type: "copyright"})
	require.NoError(t, q.Sync())

	j := q.NextJob()
	require.NotNil(t, j)
	q.MarkRunning(j)

	j.State = types.JobStateComplete
	q.Resolve(j)

	assert.Equal(t, 0, q.ActiveCount())
	got, err := st.GetJob("a")
	require.NoError(t, err)
	assert.Equal(t, types.JobStateComplete, got.State)
}

func TestSyncIsIdempotent(t *testing.T) {
	q, st := newTestQueue(t, nil)
	seed(t, st, &types.Job{ID: "a", Type: "copyright"})

	require.NoError(t, q.Sync())
	require.NoError(t, q.Sync())
	assert.Equal(t, 1, q.PendingCount(), "second sync must not duplicate jobs")

	// A claimed job does not come back on sync either, even though the
	// store still shows it pending.
	j := q.NextJob()
	require.NotNil(t, j)
	require.NoError(t, q.Sync())
	assert.Equal(t, 0, q.PendingCount())
}

func TestSyncPicksUpNewJobs(t *testing.T) {
	q, st := newTestQueue(t, nil)
	require.NoError(t, q.Sync())
	assert.Nil(t, q.NextJob())

	seed(t, st, &types.Job{ID: "late", Type: "copyright"})
	require.NoError(t, q.Sync())
	j := q.NextJob()
	require.NotNil(t, j)
	assert.Equal(t, "late", j.ID)
}
