package store

import (
	"github.com/fosstrack/fosched/pkg/types"
)

// Store is the persistent job storage consumed by the queue layer.
// Implemented by BoltStore.
type Store interface {
	CreateJob(job *types.Job) error
	GetJob(id string) (*types.Job, error)
	ListJobs() ([]*types.Job, error)
	ListJobsByState(state types.JobState) ([]*types.Job, error)
	UpdateJob(job *types.Job) error
	DeleteJob(id string) error

	ResetQueue() error
	Verify() error
	Close() error
}
