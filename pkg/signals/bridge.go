package signals

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fosstrack/fosched/pkg/agent"
	"github.com/fosstrack/fosched/pkg/event"
	"github.com/fosstrack/fosched/pkg/log"
)

// DefaultCheckInterval matches the original scheduler's periodic
// alarm: agent and database checks every two minutes.
const DefaultCheckInterval = 120 * time.Second

// Bridge translates OS signals and the periodic check timer into
// events. No real work happens here; handlers only ever enqueue onto
// the loop, and the loop thread does the rest.
type Bridge struct {
	loop          *event.Loop
	checkInterval time.Duration

	sigCh  chan os.Signal
	stopCh chan struct{}
}

// NewBridge creates a bridge for the given loop. A non-positive
// interval falls back to DefaultCheckInterval.
func NewBridge(loop *event.Loop, checkInterval time.Duration) *Bridge {
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	return &Bridge{
		loop:          loop,
		checkInterval: checkInterval,
		sigCh:         make(chan os.Signal, 16),
		stopCh:        make(chan struct{}),
	}
}

// Start installs the signal handlers and begins the periodic check
// ticker.
func (b *Bridge) Start() {
	signal.Notify(b.sigCh,
		syscall.SIGCHLD,
		syscall.SIGALRM,
		syscall.SIGTERM,
		syscall.SIGQUIT,
		syscall.SIGINT,
		syscall.SIGHUP,
	)
	go b.run()
}

// Stop uninstalls the handlers and stops the ticker.
func (b *Bridge) Stop() {
	signal.Stop(b.sigCh)
	close(b.stopCh)
}

func (b *Bridge) run() {
	ticker := time.NewTicker(b.checkInterval)
	defer ticker.Stop()

	logger := log.WithComponent("signals")
	for {
		select {
		case sig := <-b.sigCh:
			b.translate(sig)
		case <-ticker.C:
			b.loop.Signal(event.KindAgentUpdate, nil)
			b.loop.Signal(event.KindDatabaseUpdate, nil)
		case <-b.stopCh:
			logger.Debug().Msg("signal bridge stopped")
			return
		}
	}
}

// translate maps one OS signal onto the event set.
func (b *Bridge) translate(sig os.Signal) {
	logger := log.WithComponent("signals")
	switch sig {
	case syscall.SIGCHLD:
		// Reap everything that is currently dead and retire the whole
		// batch in one event.
		if batch := agent.ReapBatch(); len(batch) > 0 {
			logger.Debug().Int("reaped", len(batch)).Msg("child deaths reaped")
			b.loop.Signal(event.KindAgentDeath, batch)
		}
	case syscall.SIGALRM:
		logger.Info().Msg("alarm received, forcing agent and database checks")
		b.loop.Signal(event.KindAgentUpdate, nil)
		b.loop.Signal(event.KindDatabaseUpdate, nil)
	case syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT:
		logger.Info().Str("signal", sig.String()).Msg("termination signal, shutting down")
		b.loop.Signal(event.KindSchedulerClose, nil)
	case syscall.SIGHUP:
		logger.Info().Msg("hangup received, reloading configuration")
		b.loop.Signal(event.KindConfigReload, nil)
	}
}
