package types

import (
	"time"
)

// Host represents a machine on which agents may be launched
type Host struct {
	ID        string
	Address   string
	AgentDir  string
	MaxAgents int

	// RunningAgents is mutated only by the agent supervisor,
	// under the event loop's single-threaded discipline.
	RunningAgents int
}

// FreeSlots returns the remaining agent capacity on the host.
func (h *Host) FreeSlots() int {
	return h.MaxAgents - h.RunningAgents
}

// IsLocal reports whether agents on this host run without an ssh wrapper.
func (h *Host) IsLocal() bool {
	return h.Address == "localhost" || h.Address == "127.0.0.1"
}

// MetaAgentFlag marks special behavior of an agent type
type MetaAgentFlag int

const (
	// FlagExclusive demands that no other agents run while one of this type is live
	FlagExclusive MetaAgentFlag = 1 << iota
)

// MetaAgent is the template describing how to launch agents of one type.
// Immutable after registration.
type MetaAgent struct {
	Name       string
	Command    string
	MaxPerHost int
	Flags      MetaAgentFlag
}

// IsExclusive reports whether jobs of this type demand a drained system.
func (m *MetaAgent) IsExclusive() bool {
	return m.Flags&FlagExclusive != 0
}

// JobState represents the lifecycle state of a job
type JobState string

const (
	JobStatePending  JobState = "pending"
	JobStateRunning  JobState = "running"
	JobStateComplete JobState = "complete"
	JobStateFailed   JobState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobStateComplete || s == JobStateFailed
}

// Job is one unit of analysis work pulled from the persistent queue
type Job struct {
	ID      string
	Type    string
	Payload string // reference into the repository, opaque to the scheduler
	State   JobState

	Priority int

	// AssignedAgent is a weak reference: the pid of the live agent
	// executing this job, resolved through the supervisor. Zero when
	// no agent is attached.
	AssignedAgent int

	// FailReason records why a job ended up failed, if it did.
	FailReason string

	EnqueuedAt time.Time
	FinishedAt time.Time
}

// AgentState represents the lifecycle state of an agent process
type AgentState string

const (
	AgentStateSpawning AgentState = "spawning"
	AgentStateReady    AgentState = "ready"
	AgentStateWorking  AgentState = "working"
	AgentStateDying    AgentState = "dying"
	AgentStateDead     AgentState = "dead"
)

// Agent is a live worker process bound to exactly one job.
// Owned by the supervisor; its lifetime is bounded by the OS process.
type Agent struct {
	PID       int
	HostID    string
	Type      string
	JobID     string
	State     AgentState
	StartedAt time.Time

	// LastHeard is the time of the most recent line read from the
	// agent's stdout, used by the heartbeat check.
	LastHeard time.Time

	// Progress is the item count last reported by a HEART line.
	Progress int
}
