package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/fosstrack/fosched/pkg/types"
)

var (
	bucketJobs = []byte("jobs")
)

// BoltStore implements Store using a bbolt file in the data directory.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the job database.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "fosched.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketJobs); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketJobs, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Verify checks that the database is readable and the schema exists.
// Used by --db-init, which opens, verifies and exits.
func (s *BoltStore) Verify() error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketJobs) == nil {
			return fmt.Errorf("jobs bucket missing")
		}
		return nil
	})
}

// CreateJob persists a job keyed by its id (upsert).
func (s *BoltStore) CreateJob(job *types.Job) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		return b.Put([]byte(job.ID), data)
	})
}

// GetJob loads a job by id.
func (s *BoltStore) GetJob(id string) (*types.Job, error) {
	var job types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("job not found: %s", id)
		}
		return json.Unmarshal(data, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns every persisted job.
func (s *BoltStore) ListJobs() ([]*types.Job, error) {
	var jobs []*types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		return b.ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			jobs = append(jobs, &job)
			return nil
		})
	})
	return jobs, err
}

// ListJobsByState returns every persisted job in the given state.
func (s *BoltStore) ListJobsByState(state types.JobState) ([]*types.Job, error) {
	all, err := s.ListJobs()
	if err != nil {
		return nil, err
	}
	var jobs []*types.Job
	for _, j := range all {
		if j.State == state {
			jobs = append(jobs, j)
		}
	}
	return jobs, nil
}

// UpdateJob persists the current state of a job.
func (s *BoltStore) UpdateJob(job *types.Job) error {
	return s.CreateJob(job) // upsert
}

// DeleteJob removes a job record.
func (s *BoltStore) DeleteJob(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		return b.Delete([]byte(id))
	})
}

// ResetQueue returns every non-terminal job to PENDING and detaches any
// recorded agent. Invoked at startup with --reset, after an unclean
// shutdown left jobs marked running.
func (s *BoltStore) ResetQueue() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		return b.ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if job.State.Terminal() {
				return nil
			}
			job.State = types.JobStatePending
			job.AssignedAgent = 0
			data, err := json.Marshal(&job)
			if err != nil {
				return err
			}
			return b.Put(k, data)
		})
	})
}
