package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func initBuffer(verbose int) *bytes.Buffer {
	var buf bytes.Buffer
	Init(Config{Verbose: verbose, JSONOutput: true, Output: &buf})
	return &buf
}

func TestChildLoggersChainDirectly(t *testing.T) {
	buf := initBuffer(2)

	WithComponent("queue").Debug().Int("jobs", 3).Msg("pulled new jobs")
	WithJobID("job-7").Info().Msg("launched")
	WithAgentPID(4242).Warn().Msg("silent")

	out := buf.String()
	assert.Contains(t, out, `"component":"queue"`)
	assert.Contains(t, out, `"job_id":"job-7"`)
	assert.Contains(t, out, `"agent_pid":4242`)
}

func TestVerboseLevels(t *testing.T) {
	buf := initBuffer(0)

	Info("not at warn level")
	assert.Empty(t, buf.String())

	SetVerbose(1)
	Info("now visible")
	assert.Contains(t, buf.String(), "now visible")

	SetVerbose(2)
	Debug("debug visible")
	assert.Contains(t, buf.String(), "debug visible")
}
