package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fosstrack/fosched/pkg/host"
	"github.com/fosstrack/fosched/pkg/log"
	"github.com/fosstrack/fosched/pkg/meta"
	"github.com/fosstrack/fosched/pkg/types"
)

const (
	// MainFile is the main configuration file under the setup root.
	MainFile = "fosched.yaml"

	// AgentConfDir holds one directory per enabled agent type.
	AgentConfDir = "mods-enabled"
)

// Main is the parsed main configuration file.
type Main struct {
	Port     int    `yaml:"port"`
	AgentDir string `yaml:"agent_dir"`
	DataDir  string `yaml:"data_dir"`
	User     string `yaml:"user"`
	Group    string `yaml:"group"`

	// CheckIntervalSeconds drives the periodic agent/database checks.
	CheckIntervalSeconds int `yaml:"check_interval"`

	// HeartbeatTimeoutSeconds is how long an agent may stay silent.
	HeartbeatTimeoutSeconds int `yaml:"heartbeat_timeout"`

	// Hosts maps host id to "<address> <dir> <max>". The id
	// "localhost" has its dir overridden by AgentDir.
	Hosts map[string]string `yaml:"hosts"`
}

// agentConf is the schema of one mods-enabled/<name>/<name>.conf file.
type agentConf struct {
	Default struct {
		Name    string   `yaml:"name"`
		Command string   `yaml:"command"`
		Max     int      `yaml:"max"`
		Special []string `yaml:"special"`
	} `yaml:"default"`
}

// LoadMain parses the main configuration file under the setup root.
// A missing file is fatal to startup; the caller decides.
func LoadMain(setupDir string) (*Main, error) {
	path := filepath.Join(setupDir, MainFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read main config %s: %w", path, err)
	}
	var m Main
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse main config %s: %w", path, err)
	}
	return &m, nil
}

// ApplyHosts populates the host registry from the main config's host
// entries. Malformed entries are logged and skipped; the number of
// admitted hosts is returned so startup can insist on at least one.
func ApplyHosts(m *Main, reg *host.Registry) int {
	logger := log.WithComponent("config")
	admitted := 0
	for id, spec := range m.Hosts {
		fields := strings.Fields(spec)
		if len(fields) != 3 {
			logger.Error().Str("host", id).Str("entry", spec).
				Msg("host entry must be \"<address> <dir> <max>\", skipped")
			continue
		}
		address, dir := fields[0], fields[1]
		var max int
		if _, err := fmt.Sscanf(fields[2], "%d", &max); err != nil {
			logger.Error().Str("host", id).Str("entry", spec).Msg("host max is not a number, skipped")
			continue
		}
		if id == "localhost" {
			dir = m.AgentDir
		}
		if err := reg.Add(id, address, dir, max); err != nil {
			logger.Error().Err(err).Str("host", id).Msg("host rejected, skipped")
			continue
		}
		logger.Debug().
			Str("host", id).Str("address", address).Str("dir", dir).Int("max", max).
			Msg("host added")
		admitted++
	}
	return admitted
}

// LoadAgents populates the meta-agent registry from the per-agent
// config files under <setup>/mods-enabled/<name>/<name>.conf. A file
// that fails to parse or validate is logged and skipped.
func LoadAgents(setupDir string, reg *meta.Registry) (int, error) {
	logger := log.WithComponent("config")
	confDir := filepath.Join(setupDir, AgentConfDir)

	entries, err := os.ReadDir(confDir)
	if err != nil {
		return 0, fmt.Errorf("could not open agent config directory %s: %w", confDir, err)
	}

	admitted := 0
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || !e.IsDir() {
			continue
		}
		path := filepath.Join(confDir, name, name+".conf")

		data, err := os.ReadFile(path)
		if err != nil {
			logger.Debug().Str("path", path).Msg("agent config missing, skipped")
			continue
		}

		var ac agentConf
		if err := yaml.Unmarshal(data, &ac); err != nil {
			logger.Error().Err(err).Str("path", path).Msg("agent config unparsable, skipped")
			continue
		}
		if ac.Default.Name == "" || ac.Default.Command == "" || ac.Default.Max == 0 {
			logger.Error().Str("path", path).
				Msg("agent config needs default.name, default.command and default.max, skipped")
			continue
		}

		var flags types.MetaAgentFlag
		for _, sp := range ac.Default.Special {
			if sp == "EXCLUSIVE" {
				flags |= types.FlagExclusive
			}
		}

		if err := reg.Add(ac.Default.Name, ac.Default.Command, ac.Default.Max, flags); err != nil {
			logger.Error().Err(err).Str("path", path).Msg("agent rejected, skipped")
			continue
		}
		logger.Debug().
			Str("name", ac.Default.Name).
			Str("command", ac.Default.Command).
			Int("max", ac.Default.Max).
			Bool("exclusive", flags&types.FlagExclusive != 0).
			Msg("meta agent added")
		admitted++
	}
	return admitted, nil
}
