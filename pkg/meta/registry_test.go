package meta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fosstrack/fosched/pkg/types"
)

func TestAddAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add("copyright", "copyright", 2, 0))

	m := r.Get("copyright")
	require.NotNil(t, m)
	assert.Equal(t, "copyright", m.Command)
	assert.Equal(t, 2, m.MaxPerHost)
	assert.False(t, m.IsExclusive())
}

func TestAddValidation(t *testing.T) {
	tests := []struct {
		name    string
		agent   string
		command string
		max     int
	}{
		{"empty name", "", "cmd", 1},
		{"empty command", "n", "", 1},
		{"zero max", "n", "cmd", 0},
		{"negative max", "n", "cmd", -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			assert.Error(t, r.Add(tt.agent, tt.command, tt.max, 0))
		})
	}
}

func TestDuplicateRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add("nomos", "nomos", 1, 0))
	assert.Error(t, r.Add("nomos", "other", 5, 0))
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, "nomos", r.Get("nomos").Command)
}

func TestIsExclusive(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add("reindex", "reindex", 1, types.FlagExclusive))
	require.NoError(t, r.Add("copyright", "copyright", 2, 0))

	assert.True(t, r.IsExclusive("reindex"))
	assert.False(t, r.IsExclusive("copyright"))
	assert.False(t, r.IsExclusive("unknown"))
}

func TestClearForReload(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Add("nomos", "nomos", 1, 0))
	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Get("nomos"))
	assert.NoError(t, r.Add("nomos", "nomos", 1, 0))
}
