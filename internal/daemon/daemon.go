// internal/daemon/daemon.go
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/colebrumley/supportanon/internal/config"
	"github.com/colebrumley/supportanon/internal/logging"
	"github.com/colebrumley/supportanon/internal/service"
	"github.com/colebrumley/supportanon/internal/trigger"
)

// Trigger names. The event loop dispatches on them.
const (
	triggerRefresh   = "refresh"
	triggerConfig    = "config"
	triggerInventory = "inventory"
	triggerWords     = "words"
	triggerManual    = "manual"
)

// Daemon keeps the anonymization service current: it refreshes mappings on
// a schedule and when the inventory changes, and reloads when the
// configuration or one of the word files changes.
type Daemon struct {
	configPath string
	config     *config.Global
	svc        *service.Service
	logger     *slog.Logger
	logWriter  *logging.RotatingWriter
	triggers   map[string]trigger.Trigger
	manual     *trigger.Manual
	events     chan trigger.Event
	httpServer *http.Server
	startTime  time.Time
	lastEvent  map[string]time.Time // last handled event per trigger
	mu         sync.RWMutex
	wg         sync.WaitGroup // running triggers
}

// New creates a new daemon instance
func New(configPath string) *Daemon {
	return &Daemon{
		configPath: configPath,
		triggers:   make(map[string]trigger.Trigger),
		manual:     trigger.NewManual(triggerManual),
		events:     make(chan trigger.Event, 100),
		lastEvent:  make(map[string]time.Time),
	}
}

// Run starts the daemon and blocks until context is cancelled
func (d *Daemon) Run(ctx context.Context) error {
	d.startTime = time.Now()

	cfg, err := config.LoadGlobal(d.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	d.config = cfg
	d.logger = d.initLogger(cfg)

	d.logger.Info("starting daemon", "config", d.configPath, "data_root", cfg.DataRoot)

	svc := service.New(cfg, d.logger)
	if err := svc.Init(ctx); err != nil {
		d.closeLog()
		return fmt.Errorf("initializing anonymization: %w", err)
	}
	d.mu.Lock()
	d.svc = svc
	d.mu.Unlock()

	if err := d.initTriggers(ctx); err != nil {
		d.shutdown()
		return fmt.Errorf("initializing triggers: %w", err)
	}

	if cfg.HTTP.ListenAddress != "" {
		go d.startHTTPServer(ctx, cfg.HTTP.ListenAddress)
	}

	d.logger.Info("daemon started",
		"mappings", svc.Store().Len(),
		"anonymization_enabled", cfg.Anonymization.Enabled,
	)

	// Events are handled one at a time; the service serializes refreshes anyway.
	for {
		select {
		case event := <-d.events:
			d.handleEvent(ctx, event)
		case <-ctx.Done():
			d.logger.Info("daemon stopping")
			return d.shutdown()
		}
	}
}

// Service returns the anonymization service, nil until Run has initialized it.
func (d *Daemon) Service() *service.Service {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.svc
}

// Refresh queues a manual refresh. It reports false if one is already queued.
func (d *Daemon) Refresh() bool {
	return d.manual.Fire(d.events)
}

// initLogger writes to a rotating file when one is configured and falls back
// to stdout when it cannot be opened.
func (d *Daemon) initLogger(cfg *config.Global) *slog.Logger {
	if cfg.Logging.File == "" {
		return logging.NewLogger(cfg.Logging.Format, cfg.Logging.Level, os.Stdout)
	}

	path := cfg.Resolve(cfg.Logging.File)
	maxSize := uint64(cfg.Logging.MaxSizeMB) * humanize.MiByte
	w, err := logging.NewRotatingWriter(path, int64(maxSize), cfg.Logging.MaxBackups)
	if err != nil {
		logger := logging.NewLogger(cfg.Logging.Format, cfg.Logging.Level, os.Stdout)
		logger.Warn("failed to initialize rotating log writer, using stdout", "error", err)
		return logger
	}
	d.logWriter = w
	logger := logging.NewLogger(cfg.Logging.Format, cfg.Logging.Level, w)
	logger.Debug("logging to file", "path", path,
		"rotate_at", humanize.IBytes(maxSize), "max_backups", cfg.Logging.MaxBackups)
	return logger
}

// triggerConfigs derives the triggers from the configuration.
func triggerConfigs(configPath string, cfg *config.Global, logger *slog.Logger) map[string]trigger.Config {
	debounce := cfg.Refresh.WatchDebounce
	return map[string]trigger.Config{
		triggerRefresh: {
			Type:           "scheduled",
			CronExpression: cfg.Refresh.CronExpression,
		},
		triggerConfig: {
			Type:       "filesystem",
			WatchPaths: []string{configPath},
			Debounce:   debounce,
			Logger:     logger,
		},
		triggerInventory: {
			Type:       "filesystem",
			WatchPaths: []string{cfg.Resolve(cfg.Inventory.Path)},
			Debounce:   debounce,
			Logger:     logger,
		},
		triggerWords: {
			Type: "filesystem",
			WatchPaths: []string{
				cfg.Resolve(cfg.Anonymization.AdditionalStopWordsFile),
				cfg.Resolve(cfg.Anonymization.SecurityWordsFile),
			},
			Debounce: debounce,
			Logger:   logger,
		},
	}
}

func (d *Daemon) initTriggers(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name, tc := range triggerConfigs(d.configPath, d.config, d.logger) {
		t, err := trigger.New(name, tc)
		if err != nil {
			for _, started := range d.triggers {
				started.Stop()
			}
			return fmt.Errorf("trigger %s: %w", name, err)
		}
		d.triggers[name] = t
	}
	d.triggers[triggerManual] = d.manual

	for _, t := range d.triggers {
		d.wg.Add(1)
		go func(t trigger.Trigger) {
			defer d.wg.Done()
			if err := t.Start(ctx, d.events); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("trigger error", "trigger", t.Name(), "error", err)
			}
		}(t)
	}
	return nil
}

func (d *Daemon) handleEvent(ctx context.Context, event trigger.Event) {
	logger := d.logger.With("trigger", event.Source, "event", event.Type)
	if event.Path != "" {
		logger = logger.With("path", event.Path)
	}
	logger.Debug("handling event")

	d.mu.Lock()
	d.lastEvent[event.Source] = event.Timestamp
	d.mu.Unlock()

	switch event.Source {
	case triggerRefresh:
		if _, err := d.svc.RefreshIfStale(ctx, service.TriggerScheduled); err != nil {
			logger.Error("scheduled refresh failed", "error", err)
		}
	case triggerInventory:
		if event.Type == trigger.TypeFileDeleted {
			logger.Warn("inventory file removed, keeping current mappings")
			return
		}
		if _, err := d.svc.Refresh(ctx, service.TriggerFilesystem); err != nil {
			logger.Error("refresh after inventory change failed", "error", err)
		}
	case triggerManual:
		if _, err := d.svc.Refresh(ctx, service.TriggerManual); err != nil {
			logger.Error("manual refresh failed", "error", err)
		}
	case triggerConfig:
		if event.Type == trigger.TypeFileDeleted {
			logger.Warn("config file removed, keeping current configuration")
			return
		}
		d.reloadConfig(ctx, logger)
	case triggerWords:
		d.mu.RLock()
		cfg := d.config
		d.mu.RUnlock()
		logger.Info("word list changed, reloading")
		if err := d.svc.Reload(ctx, cfg); err != nil {
			logger.Error("reload failed", "error", err)
		}
	default:
		logger.Error("no handler for trigger")
	}
}

// reloadConfig applies a changed config file. Settings that shape the
// daemon itself (triggers, logging, HTTP) only take effect on restart.
func (d *Daemon) reloadConfig(ctx context.Context, logger *slog.Logger) {
	cfg, err := config.LoadGlobal(d.configPath)
	if err != nil {
		logger.Error("failed to reload config, keeping current configuration", "error", err)
		return
	}

	d.mu.Lock()
	old := d.config
	d.config = cfg
	d.mu.Unlock()

	if old.Refresh.CronExpression != cfg.Refresh.CronExpression ||
		old.Inventory.Path != cfg.Inventory.Path ||
		old.Anonymization.AdditionalStopWordsFile != cfg.Anonymization.AdditionalStopWordsFile ||
		old.Anonymization.SecurityWordsFile != cfg.Anonymization.SecurityWordsFile ||
		old.Logging != cfg.Logging ||
		old.HTTP != cfg.HTTP {
		logger.Warn("trigger, logging or HTTP settings changed; restart the daemon to apply them")
	}

	logger.Info("reloading configuration")
	if err := d.svc.Reload(ctx, cfg); err != nil {
		logger.Error("reload failed", "error", err)
	}
}

func (d *Daemon) shutdown() error {
	d.mu.RLock()
	for name, t := range d.triggers {
		if err := t.Stop(); err != nil {
			d.logger.Warn("failed to stop trigger", "trigger", name, "error", err)
		}
	}
	d.mu.RUnlock()
	d.wg.Wait()

	err := d.svc.Close()
	if err != nil {
		d.logger.Error("failed to save mappings", "error", err)
	}
	d.logger.Info("daemon stopped", "uptime", time.Since(d.startTime).Truncate(time.Second))
	d.closeLog()
	return err
}

func (d *Daemon) closeLog() {
	if d.logWriter != nil {
		d.logWriter.Close()
	}
}
