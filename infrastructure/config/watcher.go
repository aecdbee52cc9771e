package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	domainconfig "github.com/woragis/woragis-sub002/domain/config"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher reloads the domain section of the config file when it changes
// and publishes it to a Holder. Other sections need a restart.
type Watcher struct {
	path        string
	environment string
	holder      *domainconfig.Holder
	logger      *zap.Logger
	debounce    time.Duration
	onReload    func(*domainconfig.DomainConfig)
}

// NewWatcher creates a watcher for path. Nothing is watched until Run.
func NewWatcher(path, environment string, holder *domainconfig.Holder, logger *zap.Logger) *Watcher {
	return &Watcher{
		path:        path,
		environment: environment,
		holder:      holder,
		logger:      logger,
		debounce:    defaultDebounce,
	}
}

// OnReload registers a callback run after each successful reload.
func (w *Watcher) OnReload(fn func(*domainconfig.DomainConfig)) {
	w.onReload = fn
}

// Run watches until ctx is done. The directory is watched rather than the
// file so that editors that save by rename are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsWatcher.Close()

	if err := fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}
	w.logger.Info("Configuration hot reloading enabled", zap.String("file", w.path))

	target := filepath.Clean(w.path)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping configuration watcher")
			return nil

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	next, err := LoadDomainFile(w.path, w.environment)
	if err != nil {
		w.logger.Error("Invalid configuration after reload, keeping previous", zap.Error(err))
		return
	}
	prev := w.holder.Current()
	if prev != nil && *prev == *next {
		w.logger.Debug("Configuration unchanged after reload")
		return
	}
	w.holder.Store(next)
	w.logger.Info("Domain configuration reloaded",
		zap.Bool("dedupe_connections", next.DedupeConnections),
		zap.Bool("scrub_dangling_on_delete", next.ScrubDanglingOnDelete),
		zap.Bool("validate_connection_targets", next.ValidateConnectionTargets),
		zap.Int("max_connections_per_node", next.MaxConnectionsPerNode),
	)
	if w.onReload != nil {
		w.onReload(w.holder.Current())
	}
}
