package agent

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fosstrack/fosched/pkg/event"
	"github.com/fosstrack/fosched/pkg/log"
	"github.com/fosstrack/fosched/pkg/metrics"
	"github.com/fosstrack/fosched/pkg/queue"
	"github.com/fosstrack/fosched/pkg/types"
)

// Launch errors. The policy releases the job on the first two and the
// supervisor itself fails the job on the third.
var (
	ErrNoHostCapacity = errors.New("no host capacity")
	ErrNoMetaAgent    = errors.New("no meta agent for job type")
	ErrSpawnFailed    = errors.New("agent spawn failed")
)

// Notification is one line read from an agent's stdout, delivered to
// the loop as an agent.notify event and parsed on the loop thread.
type Notification struct {
	PID  int
	Line string
}

// record binds a live agent to everything the supervisor needs to
// manage it. The host pointer is retained even if a config reload
// removes the host from the registry, so the death path can still
// decrement the right counter.
type record struct {
	agent  *types.Agent
	job    *types.Job
	host   *types.Host
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

// Supervisor spawns, tracks and reaps agent processes. All methods
// except ReapBatch and the internal pipe readers run on the event loop
// goroutine.
type Supervisor struct {
	loop   *event.Loop
	queue  *queue.Queue
	agents map[int]*record
}

// NewSupervisor creates a supervisor delivering job resolutions to the
// given queue and notifications to the given loop.
func NewSupervisor(loop *event.Loop, q *queue.Queue) *Supervisor {
	return &Supervisor{
		loop:   loop,
		queue:  q,
		agents: make(map[int]*record),
	}
}

// NumAgents returns the number of live agents.
func (s *Supervisor) NumAgents() int {
	return len(s.agents)
}

// CountByType returns the number of live agents of one type.
func (s *Supervisor) CountByType(typeName string) int {
	n := 0
	for _, r := range s.agents {
		if r.agent.Type == typeName {
			n++
		}
	}
	return n
}

// ForEach iterates live agents in unspecified order.
func (s *Supervisor) ForEach(fn func(*types.Agent)) {
	for _, r := range s.agents {
		fn(r.agent)
	}
}

// Launch spawns an agent for the job on the host. On success the host
// counter is incremented, the job transitions PENDING to RUNNING with
// the agent attached, and the agent starts in SPAWNING.
func (s *Supervisor) Launch(h *types.Host, m *types.MetaAgent, job *types.Job) (*types.Agent, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMetaAgent, job.Type)
	}
	if h == nil || h.FreeSlots() < 1 {
		return nil, fmt.Errorf("%w: job %s", ErrNoHostCapacity, job.ID)
	}

	cmd := buildCommand(h, m, job)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, s.failSpawn(job, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, s.failSpawn(job, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, s.failSpawn(job, err)
	}

	a := &types.Agent{
		PID:       cmd.Process.Pid,
		HostID:    h.ID,
		Type:      m.Name,
		JobID:     job.ID,
		State:     types.AgentStateSpawning,
		StartedAt: time.Now(),
		LastHeard: time.Now(),
	}
	s.agents[a.PID] = &record{agent: a, job: job, host: h, cmd: cmd, stdin: stdin, stdout: stdout}

	h.RunningAgents++
	job.State = types.JobStateRunning
	job.AssignedAgent = a.PID
	s.queue.MarkRunning(job)

	go s.readPipe(a.PID, stdout)

	metrics.AgentsSpawned.WithLabelValues(m.Name).Inc()
	metrics.AgentsLive.Set(float64(len(s.agents)))
	log.WithComponent("supervisor").Info().
		Int("pid", a.PID).
		Str("job_id", job.ID).
		Str("type", m.Name).
		Str("host", h.ID).
		Msg("agent launched")
	return a, nil
}

// failSpawn marks the job failed with the spawn error. Spawn failures
// are not retried here; retry policy lives in the queue layer.
func (s *Supervisor) failSpawn(job *types.Job, cause error) error {
	job.State = types.JobStateFailed
	job.FailReason = cause.Error()
	job.FinishedAt = time.Now()
	s.queue.Resolve(job)
	metrics.LaunchErrors.WithLabelValues("spawn_failed").Inc()
	metrics.JobsResolved.WithLabelValues("failed").Inc()
	return fmt.Errorf("%w: %v", ErrSpawnFailed, cause)
}

// buildCommand resolves the meta-agent command against the host. Local
// hosts run the binary from the host's agent directory; remote hosts
// get an ssh wrapper with the same working directory.
func buildCommand(h *types.Host, m *types.MetaAgent, job *types.Job) *exec.Cmd {
	args := strings.Fields(m.Command)
	args = append(args, "--job", job.ID)
	if job.Payload != "" {
		args = append(args, "--payload", job.Payload)
	}

	if h.IsLocal() {
		bin := args[0]
		if !strings.HasPrefix(bin, "/") {
			bin = h.AgentDir + "/" + m.Name + "/" + bin
		}
		return exec.Command(bin, args[1:]...)
	}

	remote := h.AgentDir + "/" + m.Name + "/" + strings.Join(args, " ")
	return exec.Command("ssh", h.Address, remote)
}

// readPipe scans one agent's stdout and turns each line into an
// agent.notify event. Runs on its own goroutine per agent; exits on
// pipe EOF when the process dies.
func (s *Supervisor) readPipe(pid int, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		s.loop.Signal(event.KindAgentNotify, Notification{PID: pid, Line: line})
	}
}

// HandleNotification parses one stdout line on the loop thread:
//
//	READY        agent initialized and waiting for work
//	HEART <n>    heartbeat with cumulative items processed
//
// Unknown lines refresh the heartbeat clock and are otherwise logged
// at debug.
func (s *Supervisor) HandleNotification(n Notification) {
	r, ok := s.agents[n.PID]
	if !ok {
		// Death may already have retired the record.
		return
	}
	r.agent.LastHeard = time.Now()

	switch {
	case n.Line == "READY":
		s.notifyReady(r)
	case strings.HasPrefix(n.Line, "HEART"):
		progress := 0
		if f := strings.Fields(n.Line); len(f) > 1 {
			progress, _ = strconv.Atoi(f[1])
		}
		s.notifyWorking(r, progress)
	default:
		log.WithComponent("supervisor").Debug().
			Int("pid", n.PID).Str("line", n.Line).Msg("unrecognized agent output")
	}
}

// notifyReady transitions SPAWNING to READY.
func (s *Supervisor) notifyReady(r *record) {
	if r.agent.State != types.AgentStateSpawning {
		return
	}
	r.agent.State = types.AgentStateReady
	log.WithComponent("supervisor").Debug().Int("pid", r.agent.PID).Msg("agent ready")
}

// notifyWorking transitions READY to WORKING and refreshes progress on
// an agent already working.
func (s *Supervisor) notifyWorking(r *record, progress int) {
	switch r.agent.State {
	case types.AgentStateReady, types.AgentStateSpawning:
		r.agent.State = types.AgentStateWorking
	case types.AgentStateWorking:
	default:
		return
	}
	r.agent.Progress = progress
}

// HandleDeaths retires a batch of reaped pids: each agent goes to DEAD,
// its host counter is decremented, and its job resolves to COMPLETE on
// exit status zero or FAILED otherwise. Unknown pids are ignored; the
// death may arrive after a teardown already retired the record.
func (s *Supervisor) HandleDeaths(batch []Death) {
	for _, d := range batch {
		r, ok := s.agents[d.PID]
		if !ok {
			log.WithComponent("supervisor").Debug().Int("pid", d.PID).Msg("death for unknown pid ignored")
			continue
		}
		delete(s.agents, d.PID)

		r.agent.State = types.AgentStateDead
		r.host.RunningAgents--
		// cmd.Wait is never called (reaping goes through wait4), so both
		// pipe ends must be closed here or they live until the GC.
		r.stdin.Close()
		r.stdout.Close()

		job := r.job
		job.AssignedAgent = 0
		job.FinishedAt = time.Now()
		if d.ExitCode == 0 && !d.Signaled {
			job.State = types.JobStateComplete
			metrics.JobsResolved.WithLabelValues("complete").Inc()
		} else {
			job.State = types.JobStateFailed
			job.FailReason = d.String()
			metrics.JobsResolved.WithLabelValues("failed").Inc()
		}
		s.queue.Resolve(job)

		metrics.AgentsLive.Set(float64(len(s.agents)))
		log.WithComponent("supervisor").Info().
			Int("pid", d.PID).
			Str("job_id", job.ID).
			Str("outcome", string(job.State)).
			Msg("agent retired")
	}
}

// KillAll sends graceful termination to every live agent. It does not
// block; deaths arrive later as agent.death events.
func (s *Supervisor) KillAll() {
	for pid, r := range s.agents {
		if r.agent.State == types.AgentStateDying {
			continue
		}
		r.agent.State = types.AgentStateDying
		fmt.Fprintln(r.stdin, "CLOSE")
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			log.WithComponent("supervisor").Warn().Err(err).Int("pid", pid).Msg("failed to signal agent")
		}
	}
}

// CheckHeartbeats enforces the two-strike rule on the AGENT_UPDATE
// pass: a silent agent is first asked to die gracefully; one already
// dying gets SIGKILL.
func (s *Supervisor) CheckHeartbeats(timeout time.Duration) {
	now := time.Now()
	for pid, r := range s.agents {
		if now.Sub(r.agent.LastHeard) < timeout {
			continue
		}
		if r.agent.State == types.AgentStateDying {
			log.WithComponent("supervisor").Warn().Int("pid", pid).Msg("agent unresponsive, killing")
			syscall.Kill(pid, syscall.SIGKILL)
			continue
		}
		log.WithComponent("supervisor").Warn().
			Int("pid", pid).
			Dur("silent_for", now.Sub(r.agent.LastHeard)).
			Msg("agent heartbeat missed, terminating")
		r.agent.State = types.AgentStateDying
		fmt.Fprintln(r.stdin, "CLOSE")
		syscall.Kill(pid, syscall.SIGTERM)
	}
}
