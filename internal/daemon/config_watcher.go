package daemon

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/appforge/internal/config"
	"git.home.luguber.info/inful/appforge/internal/logfields"
)

// configWatcher monitors the config file and hot-reloads the log level.
// Only logging is reloadable; everything else needs a restart because
// clients and retry executors are wired once at startup.
type configWatcher struct {
	configPath string
	level      *slog.LevelVar
	watcher    *fsnotify.Watcher
	stopChan   chan struct{}
	debounce   time.Duration
}

func newConfigWatcher(configPath string, level *slog.LevelVar) (*configWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		watcher.Close()
		return nil, err
	}

	return &configWatcher{
		configPath: absPath,
		level:      level,
		watcher:    watcher,
		stopChan:   make(chan struct{}),
		debounce:   2 * time.Second,
	}, nil
}

// Start begins monitoring. Watching the directory is more reliable than
// watching the file: editors replace files on save.
func (cw *configWatcher) Start(ctx context.Context) error {
	if err := cw.watcher.Add(filepath.Dir(cw.configPath)); err != nil {
		return err
	}
	slog.Info("watching config file", "path", cw.configPath)
	go cw.watchLoop(ctx)
	return nil
}

func (cw *configWatcher) Stop() {
	close(cw.stopChan)
	if err := cw.watcher.Close(); err != nil {
		slog.Warn("error closing config watcher", logfields.Error(err))
	}
}

func (cw *configWatcher) watchLoop(ctx context.Context) {
	var timer *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Name != cw.configPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(cw.debounce, cw.reload)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", logfields.Error(err))
		case <-cw.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cw *configWatcher) reload() {
	cfg, err := config.Load(cw.configPath)
	if err != nil {
		slog.Error("config reload failed, keeping current settings", logfields.Error(err))
		return
	}
	if cw.level == nil {
		return
	}
	newLevel := cfg.Logging.SlogLevel()
	if cw.level.Level() != newLevel {
		slog.Info("log level changed", "level", newLevel.String())
		cw.level.Set(newLevel)
	}
}
