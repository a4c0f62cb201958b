package keys

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
)

// RefresherConfig configures a Refresher.
type RefresherConfig struct {
	// Schedule is a cron expression (standard or descriptor such as
	// "@every 30s") for periodic staleness checks. Empty disables it.
	Schedule string

	// WatchPath, when set, is a file whose changes trigger a staleness
	// check. Its directory is watched so atomic renames are seen.
	WatchPath string

	// Debounce coalesces bursts of file events.
	// Default: 100ms
	Debounce time.Duration
}

// Refresher keeps a Registry in sync with its store in the background.
// Both triggers call Registry.RefreshIfStale, so a reload happens only when
// the store actually changed.
type Refresher struct {
	registry *Registry
	config   RefresherConfig
	logger   *slog.Logger

	mu       sync.Mutex
	cron     *cron.Cron
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	watchWG  sync.WaitGroup
	running  bool
	onReload func()
}

// NewRefresher creates a refresher for reg.
func NewRefresher(reg *Registry, cfg RefresherConfig) *Refresher {
	if cfg.Debounce == 0 {
		cfg.Debounce = 100 * time.Millisecond
	}
	return &Refresher{
		registry: reg,
		config:   cfg,
		logger:   slog.Default().With("component", "keys.refresher"),
	}
}

// OnReload registers a callback invoked after each reload. Must be called
// before Start.
func (r *Refresher) OnReload(fn func()) {
	r.onReload = fn
}

// Start begins the scheduled and file-triggered refreshes. It returns once
// both are set up; Stop (or cancelling ctx) ends them.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("refresher already running")
	}

	if r.config.Schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(r.config.Schedule, func() {
			r.refresh(ctx, "schedule")
		}); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", r.config.Schedule, err)
		}
		r.cron = c
	}

	if r.config.WatchPath != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		dir := filepath.Dir(r.config.WatchPath)
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch directory %q: %w", dir, err)
		}
		r.watcher = watcher
	}

	r.stopCh = make(chan struct{})
	if r.cron != nil {
		r.cron.Start()
	}
	if r.watcher != nil {
		r.watchWG.Add(1)
		go r.watchLoop(ctx)
	}
	r.running = true

	r.logger.Info("key refresher started",
		"schedule", r.config.Schedule,
		"watch", r.config.WatchPath,
	)

	go func() {
		select {
		case <-ctx.Done():
			r.Stop()
		case <-r.stopCh:
		}
	}()

	return nil
}

// Stop stops both triggers and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}

	close(r.stopCh)
	if r.cron != nil {
		ctx := r.cron.Stop()
		<-ctx.Done()
	}
	if r.watcher != nil {
		_ = r.watcher.Close()
		r.watchWG.Wait()
	}
	r.running = false

	r.logger.Info("key refresher stopped")
}

// refresh runs one staleness check.
func (r *Refresher) refresh(ctx context.Context, trigger string) {
	reloaded, err := r.registry.RefreshIfStale(ctx)
	if err != nil {
		r.logger.Error("api key refresh failed",
			"trigger", trigger,
			"error", err,
		)
		return
	}
	if reloaded {
		r.logger.Info("api keys reloaded", "trigger", trigger)
		if r.onReload != nil {
			r.onReload()
		}
	}
}

// watchLoop reacts to changes of the watched file.
func (r *Refresher) watchLoop(ctx context.Context) {
	defer r.watchWG.Done()

	target := filepath.Clean(r.config.WatchPath)
	var pending <-chan time.Time

	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Chmod) == 0 {
				continue
			}
			r.logger.Debug("key file change detected",
				"file", filepath.Base(event.Name),
				"op", event.Op.String(),
			)
			pending = time.After(r.config.Debounce)

		case <-pending:
			pending = nil
			r.refresh(ctx, "watch")

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error("file watcher error", "error", err)

		case <-r.stopCh:
			return
		}
	}
}
