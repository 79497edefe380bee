package main

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fosstrack/fosched/pkg/config"
	"github.com/fosstrack/fosched/pkg/control"
	"github.com/fosstrack/fosched/pkg/log"
	"github.com/fosstrack/fosched/pkg/proclock"
	"github.com/fosstrack/fosched/pkg/scheduler"
	"github.com/fosstrack/fosched/pkg/signals"
	"github.com/fosstrack/fosched/pkg/store"
)

const processName = "fosched"

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	flagDaemon  bool
	flagDBInit  bool
	flagKill    bool
	flagLog     string
	flagPort    int
	flagReset   bool
	flagTest    bool
	flagVerbose int
	flagSetup   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "fosched",
	Short: "fosched - job scheduler for the fosstrack analysis platform",
	Long: `fosched accepts analysis jobs from a persistent queue, selects
eligible execution hosts from the configured fleet, launches per-job
agent processes on those hosts and supervises them to completion.

Operators interact with a running scheduler through signals (SIGTERM to
drain and stop, SIGHUP to reload configuration) or the TCP control
interface on the configured port.`,
	Version:       Version,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"fosched version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	f := rootCmd.Flags()
	f.BoolVarP(&flagDaemon, "daemon", "d", false, "run the scheduler as a daemon")
	f.BoolVarP(&flagDBInit, "db-init", "i", false, "open and verify the job database, then exit")
	f.BoolVarP(&flagKill, "kill", "k", false, "gracefully stop the running scheduler and exit")
	f.StringVarP(&flagLog, "log", "L", "", "write log output to this file instead of stdout")
	f.IntVarP(&flagPort, "port", "p", -1, "override the control interface port")
	f.BoolVarP(&flagReset, "reset", "R", false, "reset the persistent job queue at startup")
	f.BoolVarP(&flagTest, "test", "t", false, "run initializations then immediately begin shutdown")
	f.IntVarP(&flagVerbose, "verbose", "v", 1, "set the scheduler verbosity level")
	f.StringVarP(&flagSetup, "config", "c", "/etc/fosched", "setup root holding fosched.yaml and mods-enabled/")
}

// fatal reports an unrecoverable startup failure. Matches the
// contract that fatal startup failures exit negative.
func fatal(format string, args ...interface{}) {
	log.Logger.Error().Msgf(format, args...)
	fmt.Fprintf(os.Stderr, "FATAL: "+format+"\n", args...)
	os.Exit(-1)
}

func run() error {
	initLogging()

	// --kill only needs the lock, not the config.
	if flagKill {
		lock := proclock.New(processName)
		pid, err := lock.KillRunning(syscall.SIGQUIT)
		if err != nil {
			return err
		}
		if pid == 0 {
			fmt.Println("no running scheduler found")
			return nil
		}
		fmt.Printf("stopping %s pid %d\n", processName, pid)
		return nil
	}

	// Main config is loaded exactly once; SIGHUP re-applies it later.
	cfg, err := config.LoadMain(flagSetup)
	if err != nil {
		fatal("missing or invalid config root: %v", err)
	}
	if flagPort >= 0 {
		cfg.Port = flagPort
	}

	// Privileges drop before any collaborator is initialized.
	if err := dropPrivileges(cfg.User, cfg.Group); err != nil {
		fatal("unable to drop privileges: %v", err)
	}

	if flagDBInit {
		st, err := store.NewBoltStore(cfg.DataDir)
		if err != nil {
			fatal("unable to open database: %v", err)
		}
		defer st.Close()
		if err := st.Verify(); err != nil {
			fatal("database verification failed: %v", err)
		}
		fmt.Println("database ok")
		return nil
	}

	if flagDaemon {
		if forked, err := daemonize(); err != nil {
			fatal("unable to daemonize: %v", err)
		} else if forked {
			return nil // parent exits, child carries on
		}
	}

	lock := proclock.New(processName)
	acquired, other, err := lock.Acquire()
	if err != nil {
		fatal("scheduler lock error: %v", err)
	}
	if !acquired {
		fatal("another scheduler is already running as pid %d", other)
	}
	defer lock.Release()

	st, err := store.NewBoltStore(cfg.DataDir)
	if err != nil {
		fatal("unable to open database: %v", err)
	}
	defer st.Close()

	if flagReset {
		if err := st.ResetQueue(); err != nil {
			fatal("unable to reset job queue: %v", err)
		}
		log.Info("job queue reset")
	}

	sched := scheduler.New(st)
	if cfg.HeartbeatTimeoutSeconds > 0 {
		sched.HeartbeatTimeout = time.Duration(cfg.HeartbeatTimeoutSeconds) * time.Second
	}
	sched.SetReloadFunc(reloadFunc(flagSetup, cfg))

	if n := config.ApplyHosts(cfg, sched.Hosts); n == 0 {
		fatal("no usable hosts configured")
	}
	if n, err := config.LoadAgents(flagSetup, sched.Metas); err != nil {
		fatal("%v", err)
	} else if n == 0 {
		fatal("no usable meta agents configured")
	}

	ctl := control.NewServer(sched)
	if err := ctl.Start(cfg.Port); err != nil {
		fatal("%v", err)
	}
	defer ctl.Stop()

	bridge := signals.NewBridge(sched.Loop, time.Duration(cfg.CheckIntervalSeconds)*time.Second)
	bridge.Start()
	defer bridge.Stop()

	watcher, err := config.NewWatcher(flagSetup, sched.Loop)
	if err != nil {
		log.Logger.Warn().Err(err).Msg("config watcher unavailable, reload by SIGHUP only")
	} else {
		defer watcher.Stop()
	}

	if flagTest {
		sched.Shutdown()
	}

	log.Logger.Info().
		Int("pid", os.Getpid()).
		Int("port", cfg.Port).
		Str("version", Version).
		Msg("scheduler started")

	return sched.Run()
}

func initLogging() {
	out := os.Stdout
	if flagLog != "" {
		f, err := os.OpenFile(flagLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: cannot open log file %s: %v\n", flagLog, err)
			os.Exit(-1)
		}
		out = f
	}
	log.Init(log.Config{
		Verbose:    flagVerbose,
		JSONOutput: flagLog != "" || flagDaemon,
		Output:     out,
	})
}

// reloadFunc re-applies the host fleet and the agent catalog on
// CONFIG_RELOAD. The port and privilege settings are startup-only.
func reloadFunc(setupDir string, old *config.Main) func(*scheduler.Scheduler) error {
	return func(s *scheduler.Scheduler) error {
		cfg, err := config.LoadMain(setupDir)
		if err != nil {
			return err
		}
		cfg.Port = old.Port

		s.Hosts.Clear()
		s.Metas.Clear()
		if n := config.ApplyHosts(cfg, s.Hosts); n == 0 {
			return fmt.Errorf("reload admitted no hosts, registry left empty")
		}
		n, err := config.LoadAgents(setupDir, s.Metas)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("reload admitted no meta agents, registry left empty")
		}
		return nil
	}
}
