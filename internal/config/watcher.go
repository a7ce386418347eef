package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/stewardhq/steward/internal/bus"
)

// ReloadEvent describes a config-relevant file change on disk.
type ReloadEvent struct {
	Path string
	Op   fsnotify.Op
}

// Watcher watches config.yaml and the bootstrap markdown files for changes
// and republishes a config.reloaded bus event on every write.
type Watcher struct {
	homeDir string
	logger  *slog.Logger
	bus     *bus.Bus
	events  chan ReloadEvent
}

// NewWatcher creates a Watcher. b may be nil to skip bus publication.
func NewWatcher(homeDir string, logger *slog.Logger, b *bus.Bus) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		homeDir: homeDir,
		logger:  logger,
		bus:     b,
		events:  make(chan ReloadEvent, 16),
	}
}

// Events returns the channel of raw filesystem change events.
func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

const topicConfigReloaded = "config.reloaded"

// BootstrapFiles lists the root-level markdown files that make up the
// concatenated BootstrapContext (spec §3), plus one legacy alias.
var BootstrapFiles = []string{"AGENTS.md", "SOUL.md", "USER.md", "TOOLS.md", "IDENTITY.md", "CLAUDE.md"}

// Start begins watching config.yaml and the bootstrap files in the
// background. It respects ctx for shutdown.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	files := []string{filepath.Join(w.homeDir, "config.yaml")}
	for _, name := range BootstrapFiles {
		files = append(files, filepath.Join(w.homeDir, name))
	}
	for _, file := range files {
		_ = fsw.Add(file)
	}

	go func() {
		defer fsw.Close()
		defer close(w.events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case w.events <- ReloadEvent{Path: ev.Name, Op: ev.Op}:
				default:
				}
				w.logger.Info("config file changed", "path", ev.Name, "op", ev.Op.String())
				if w.bus != nil {
					w.bus.Publish(topicConfigReloaded, ReloadEvent{Path: ev.Name, Op: ev.Op})
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Error("config watcher error", "error", err)
			}
		}
	}()
	return nil
}
