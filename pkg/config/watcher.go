package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fosstrack/fosched/pkg/event"
	"github.com/fosstrack/fosched/pkg/log"
)

// debounce absorbs editor write bursts into one reload.
const debounce = 2 * time.Second

// Watcher watches the setup root and enqueues a CONFIG_RELOAD event
// when configuration files change, the filesystem equivalent of
// sending SIGHUP.
type Watcher struct {
	loop    *event.Loop
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewWatcher starts watching the main config file and the agent config
// tree under the setup root.
func NewWatcher(setupDir string, loop *event.Loop) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(setupDir); err != nil {
		fw.Close()
		return nil, err
	}
	// Per-agent conf files live one directory down; watch those too.
	confDir := filepath.Join(setupDir, AgentConfDir)
	if entries, err := walkAgentDirs(confDir); err == nil {
		for _, d := range entries {
			fw.Add(d)
		}
	}

	w := &Watcher{loop: loop, watcher: fw, stopCh: make(chan struct{})}
	go w.run()
	return w, nil
}

// Stop ends the watch.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
}

func (w *Watcher) run() {
	logger := log.WithComponent("config")
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			logger.Info().Msg("configuration changed on disk, reloading")
			w.loop.Signal(event.KindConfigReload, nil)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("config watcher error")
		case <-w.stopCh:
			return
		}
	}
}

func walkAgentDirs(confDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(confDir, "*"))
	if err != nil {
		return nil, err
	}
	return append([]string{confDir}, matches...), nil
}
