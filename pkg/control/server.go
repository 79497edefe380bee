package control

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fosstrack/fosched/pkg/event"
	"github.com/fosstrack/fosched/pkg/log"
	"github.com/fosstrack/fosched/pkg/metrics"
	"github.com/fosstrack/fosched/pkg/scheduler"
	"github.com/fosstrack/fosched/pkg/types"
)

// queryTimeout bounds how long a connection waits for the loop to
// answer a read-only query.
const queryTimeout = 5 * time.Second

// Server is the operator-facing TCP interface. The protocol is
// newline-delimited text, usable from telnet or nc. Mutating commands
// are admitted into the core only as events; reads go through Query
// events so they render on the loop thread.
type Server struct {
	sched *scheduler.Scheduler

	ln      net.Listener
	httpSrv *http.Server

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer creates a control server for the scheduler.
func NewServer(sched *scheduler.Scheduler) *Server {
	return &Server{
		sched: sched,
		conns: make(map[net.Conn]struct{}),
	}
}

// Start listens on the control port and, one port above it, serves the
// Prometheus /metrics endpoint.
func (s *Server) Start(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to listen on control port %d: %w", port, err)
	}
	s.ln = ln

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	s.httpSrv = &http.Server{Addr: fmt.Sprintf(":%d", port+1), Handler: mux}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithComponent("control").Warn().Err(err).Msg("metrics endpoint failed")
		}
	}()

	log.WithComponent("control").Info().Int("port", port).Msg("control interface listening")
	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every open connection.
func (s *Server) Stop() {
	if s.ln != nil {
		s.ln.Close()
	}
	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		reply, bye := s.command(line)
		fmt.Fprintln(conn, reply)
		if bye {
			return
		}
	}
}

// command executes one protocol line and returns the reply plus
// whether the connection should close.
func (s *Server) command(line string) (string, bool) {
	fields := strings.Fields(line)
	verb := strings.ToLower(fields[0])

	switch verb {
	case "status", "agents", "hosts":
		return s.query(verb), false

	case "close", "stop":
		s.sched.Loop.Signal(event.KindSchedulerClose, nil)
		return "CLOSING", true

	case "reload":
		s.sched.Loop.Signal(event.KindConfigReload, nil)
		return "OK", false

	case "database":
		s.sched.Loop.Signal(event.KindDatabaseUpdate, nil)
		return "OK", false

	case "verbose":
		if len(fields) < 2 {
			return "ERR usage: verbose <level>", false
		}
		v, err := strconv.Atoi(fields[1])
		if err != nil {
			return "ERR verbose level must be an integer", false
		}
		log.SetVerbose(v)
		return "OK", false

	case "submit":
		return s.submit(fields[1:]), false

	case "quit", "exit":
		return "BYE", true

	default:
		return "ERR unknown command: " + verb, false
	}
}

// query admits a read-only query into the loop and waits for the
// rendered answer.
func (s *Server) query(what string) string {
	reply := make(chan string, 1)
	s.sched.Loop.Signal(event.KindQuery, scheduler.Query{What: what, Reply: reply})
	select {
	case answer := <-reply:
		return answer
	case <-time.After(queryTimeout):
		return "ERR query timed out"
	}
}

// submit persists a new job and nudges the queue. Usage:
//
//	submit <type> [priority] [payload]
func (s *Server) submit(args []string) string {
	if len(args) < 1 {
		return "ERR usage: submit <type> [priority] [payload]"
	}
	job := &types.Job{
		ID:         uuid.New().String(),
		Type:       args[0],
		State:      types.JobStatePending,
		EnqueuedAt: time.Now(),
	}
	if len(args) > 1 {
		p, err := strconv.Atoi(args[1])
		if err != nil {
			return "ERR priority must be an integer"
		}
		job.Priority = p
	}
	if len(args) > 2 {
		job.Payload = strings.Join(args[2:], " ")
	}

	if err := s.sched.Store.CreateJob(job); err != nil {
		return "ERR " + err.Error()
	}
	s.sched.Loop.Signal(event.KindDatabaseUpdate, nil)
	return "OK " + job.ID
}
