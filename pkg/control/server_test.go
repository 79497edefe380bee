package control

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fosstrack/fosched/pkg/scheduler"
	"github.com/fosstrack/fosched/pkg/store"
	"github.com/fosstrack/fosched/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *scheduler.Scheduler) {
	t.Helper()
	st, err := store.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	sched := scheduler.New(st)
	return NewServer(sched), sched
}

func TestSubmitPersistsJob(t *testing.T) {
	srv, sched := newTestServer(t)

	reply, bye := srv.command("submit copyright 7 /srv/upload/42")
	assert.False(t, bye)
	require.True(t, strings.HasPrefix(reply, "OK "), "got %q", reply)

	id := strings.TrimPrefix(reply, "OK ")
	job, err := sched.Store.GetJob(id)
	require.NoError(t, err)
	assert.Equal(t, "copyright", job.Type)
	assert.Equal(t, 7, job.Priority)
	assert.Equal(t, "/srv/upload/42", job.Payload)
	assert.Equal(t, types.JobStatePending, job.State)

	// The submit also nudged the queue.
	assert.Greater(t, sched.Loop.Pending(), 0)
}

func TestSubmitValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	reply, _ := srv.command("submit")
	assert.Contains(t, reply, "usage")

	reply, _ = srv.command("submit copyright nine")
	assert.Contains(t, reply, "priority")
}

func TestVerboseValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	reply, bye := srv.command("verbose 2")
	assert.Equal(t, "OK", reply)
	assert.False(t, bye)

	reply, _ = srv.command("verbose")
	assert.Contains(t, reply, "usage")

	reply, _ = srv.command("verbose loud")
	assert.Contains(t, reply, "integer")
}

func TestUnknownCommand(t *testing.T) {
	srv, _ := newTestServer(t)
	reply, bye := srv.command("frobnicate")
	assert.Contains(t, reply, "unknown command")
	assert.False(t, bye)
}

func TestQuitAndCloseEndConnection(t *testing.T) {
	srv, sched := newTestServer(t)

	reply, bye := srv.command("quit")
	assert.Equal(t, "BYE", reply)
	assert.True(t, bye)

	reply, bye = srv.command("close")
	assert.Equal(t, "CLOSING", reply)
	assert.True(t, bye)
	assert.Greater(t, sched.Loop.Pending(), 0, "close must enqueue the shutdown event")
}

// session wraps a live TCP connection to the control port.
type session struct {
	conn net.Conn
	sc   *bufio.Scanner
}

func (s *session) send(t *testing.T, line string) string {
	t.Helper()
	_, err := fmt.Fprintln(s.conn, line)
	require.NoError(t, err)
	require.True(t, s.sc.Scan(), "no reply to %q", line)
	return s.sc.Text()
}

func TestOverTheWireSession(t *testing.T) {
	srv, sched := newTestServer(t)

	done := make(chan error, 1)
	go func() { done <- sched.Run() }()

	require.NoError(t, srv.Start(0))
	defer srv.Stop()

	port := srv.ln.Addr().(*net.TCPAddr).Port
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	defer conn.Close()
	sess := &session{conn: conn, sc: bufio.NewScanner(conn)}

	status := sess.send(t, "status")
	assert.Contains(t, status, "0 active")
	assert.Contains(t, status, "closing: false")

	assert.Equal(t, "no live agents", sess.send(t, "agents"))
	assert.Equal(t, "no hosts configured", sess.send(t, "hosts"))
	assert.Equal(t, "OK", sess.send(t, "database"))

	assert.Equal(t, "CLOSING", sess.send(t, "close"))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not drain after close")
	}
}
