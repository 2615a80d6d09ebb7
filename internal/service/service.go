// internal/service/service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/colebrumley/supportanon/internal/anonymizer"
	"github.com/colebrumley/supportanon/internal/config"
	"github.com/colebrumley/supportanon/internal/content"
	"github.com/colebrumley/supportanon/internal/filter"
	"github.com/colebrumley/supportanon/internal/inventory"
	"github.com/colebrumley/supportanon/internal/logging"
	"github.com/colebrumley/supportanon/internal/mapping"
	"github.com/colebrumley/supportanon/internal/security"
	"github.com/colebrumley/supportanon/internal/state"
	"github.com/colebrumley/supportanon/internal/stopwords"
)

// Trigger types recorded in refresh history.
const (
	TriggerStartup    = "startup"
	TriggerScheduled  = "scheduled"
	TriggerFilesystem = "filesystem"
	TriggerManual     = "manual"
	TriggerReload     = "reload"
)

// historyRetentionDays bounds how long refresh history is kept.
const historyRetentionDays = 90

// ErrNotInitialized is returned by operations that need Init first.
var ErrNotInitialized = errors.New("service not initialized")

// Service owns the mapping store, the stop words and the filter chain, and
// is the only place they are created, reconfigured and persisted.
type Service struct {
	mu     sync.RWMutex
	cfg    *config.Global
	logger *slog.Logger

	db       *state.DB // nil unless the sqlite backend is used
	stops    *stopwords.Registry
	store    *mapping.Store
	anon     *anonymizer.Anonymizer
	names    *filter.NameFilter
	redactor *filter.DictionaryRedactor
	chain    *filter.Chain
	writer   *content.Writer
}

// Options tune a Service for tests and embedding.
type Options struct {
	Generator mapping.Generator
	Now       func() time.Time
}

// New creates an uninitialized service.
func New(cfg *config.Global, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, logger: logging.WithComponent(logger, "service")}
}

// Init opens the mapping store and builds the filters. A mapping file that
// cannot be read is fatal: continuing would overwrite it.
func (s *Service) Init(ctx context.Context) error {
	return s.InitWithOptions(ctx, Options{})
}

// InitWithOptions is Init with a custom replacement generator and clock.
func (s *Service) InitWithOptions(ctx context.Context, opts Options) error {
	s.mu.Lock()
	cfg := s.cfg
	storePath := cfg.Resolve(cfg.Storage.Path)

	if err := security.EnsureSecretsDir(filepath.Dir(storePath)); err != nil {
		if !errors.Is(err, security.ErrUnsafePermissions) {
			s.mu.Unlock()
			return fmt.Errorf("preparing secrets directory: %w", err)
		}
		s.logger.Error("CRITICAL: secrets directory has unsafe permissions", "error", err)
	}
	if err := security.ValidateSecretFile(storePath); err != nil {
		s.logger.Error("CRITICAL: mapping file is readable by others", "error", err)
	}

	var persister mapping.Persister
	switch cfg.Storage.Backend {
	case "sqlite":
		db, err := state.Open(storePath)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("opening mapping database: %w", err)
		}
		s.db = db
		persister = db
	default:
		fp, err := mapping.NewFilePersister(storePath)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("opening mapping file: %w", err)
		}
		persister = fp
	}

	an := cfg.Anonymization
	s.stops = stopwords.New(cfg.Identity, an.ExcludedWords, cfg.Resolve(an.AdditionalStopWordsFile),
		logging.WithComponent(s.logger, "stopwords"))

	store, err := mapping.Open(persister, s.stops, mapping.Options{
		Generator: opts.Generator,
		Logger:    logging.WithComponent(s.logger, "mappings"),
	})
	if err != nil {
		s.closeDBLocked()
		s.mu.Unlock()
		return fmt.Errorf("opening mapping store: %w", err)
	}
	s.store = store

	s.anon = anonymizer.New(store, s.stops, inventorySource{s}, anonymizer.Options{
		Categories:  an.Categories(),
		MinInterval: cfg.Refresh.MinInterval,
		Logger:      logging.WithComponent(s.logger, "anonymizer"),
		Now:         opts.Now,
	})

	redactor, err := filter.NewDictionaryRedactor(s.dictionary(cfg))
	if err != nil {
		s.logger.Warn("could not load security words, using defaults", "error", err)
	}
	s.redactor = redactor
	s.names = filter.NewNameFilter(store, s.stops, filter.NameFilterOptions{
		CaseSensitive: an.CaseSensitiveNames,
		Logger:        logging.WithComponent(s.logger, "names"),
	})
	s.chain = filter.NewChain(logging.WithComponent(s.logger, "filter"),
		s.redactor,
		filter.ScrubberFilter{},
		filter.NewInetAddressFilter(store),
		s.names,
	)
	s.chain.SetEnabled(an.Enabled)
	s.writer = &content.Writer{
		Filter:   s.chain,
		Redactor: s.redactor,
		Logger:   logging.WithComponent(s.logger, "content"),
	}

	if s.db != nil {
		if last, err := s.db.LastRefresh("success"); err != nil {
			s.logger.Warn("could not read refresh history", "error", err)
		} else {
			s.anon.MarkRefreshed(last)
		}
		if deleted, err := s.db.Cleanup(historyRetentionDays); err != nil {
			s.logger.Warn("refresh history cleanup failed", "error", err)
		} else if deleted > 0 {
			s.logger.Info("cleaned up old refresh records", "deleted", deleted)
		}
	}
	s.mu.Unlock()

	s.logger.Info("anonymization service initialized",
		"backend", cfg.Storage.Backend,
		"mappings", store.Len(),
		"stop_words", s.stops.Len(),
		"enabled", an.Enabled,
	)

	if _, err := s.RefreshIfStale(ctx, TriggerStartup); err != nil {
		s.logger.Warn("initial refresh failed", "error", err)
	}
	return nil
}

// Reload applies a new configuration. A changed identity invalidates every
// mapping; storage settings only take effect after a restart.
func (s *Service) Reload(ctx context.Context, cfg *config.Global) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	if s.store == nil {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	old := s.cfg
	s.cfg = cfg
	if old.Storage != cfg.Storage {
		s.logger.Warn("storage settings changed, restart to apply", "backend", cfg.Storage.Backend, "path", cfg.Storage.Path)
	}

	an := cfg.Anonymization
	s.stops.SetExtraFile(cfg.Resolve(an.AdditionalStopWordsFile))
	s.stops.Recompute(cfg.Identity, an.ExcludedWords)
	if old.Identity != cfg.Identity {
		s.logger.Info("identity changed, clearing anonymized names",
			"old_version", old.Identity.Version, "new_version", cfg.Identity.Version)
		s.store.Clear()
	}
	s.anon.Configure(an.Categories(), cfg.Refresh.MinInterval)
	if err := s.redactor.SetDictionary(ctx, s.dictionary(cfg)); err != nil {
		s.logger.Warn("could not reload security words", "error", err)
	}
	s.chain.SetEnabled(an.Enabled)
	s.mu.Unlock()

	if err := s.chain.Reload(ctx); err != nil {
		s.logger.Warn("filter reload failed", "error", err)
	}
	_, err := s.Refresh(ctx, TriggerReload)
	return err
}

// Refresh rebuilds mappings from the inventory and records the outcome.
func (s *Service) Refresh(ctx context.Context, triggerType string) (anonymizer.Result, error) {
	s.mu.RLock()
	anon, db := s.anon, s.db
	s.mu.RUnlock()
	if anon == nil {
		return anonymizer.Result{}, ErrNotInitialized
	}

	started := time.Now()
	res, err := anon.Refresh(ctx)
	finished := time.Now()

	rec := state.RefreshRecord{
		TriggerType:    triggerType,
		State:          "success",
		StartedAt:      started,
		FinishedAt:     finished,
		DurationMs:     finished.Sub(started).Milliseconds(),
		MappingsBefore: res.Before,
		MappingsAfter:  res.After,
	}
	if err != nil {
		rec.State = "failure"
		rec.Error = err.Error()
		s.logger.Error("refresh failed", "trigger", triggerType, "error", err)
	} else {
		s.logger.Info("refresh complete", "trigger", triggerType,
			"added", res.After-res.Before, "total", res.After, "duration", finished.Sub(started))
	}
	if db != nil {
		if _, rerr := db.RecordRefresh(rec); rerr != nil {
			s.logger.Warn("could not record refresh", "error", rerr)
		}
	}
	return res, err
}

// RefreshIfStale refreshes unless the last refresh is recent enough.
func (s *Service) RefreshIfStale(ctx context.Context, triggerType string) (bool, error) {
	s.mu.RLock()
	anon := s.anon
	s.mu.RUnlock()
	if anon == nil {
		return false, ErrNotInitialized
	}
	if !anon.Stale() {
		return false, nil
	}
	_, err := s.Refresh(ctx, triggerType)
	return true, err
}

// Clear forgets every mapping and resets the stop words to the configured set.
func (s *Service) Clear(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store == nil {
		return ErrNotInitialized
	}
	s.stops.Recompute(s.cfg.Identity, s.cfg.Anonymization.ExcludedWords)
	s.store.Clear()
	s.logger.Info("cleared anonymized names")
	return s.chain.Reload(ctx)
}

// Filter runs text through the filter chain.
func (s *Service) Filter(text string) string {
	return s.Chain().Filter(text)
}

// SafeFilter is Filter that reports a failing filter instead of panicking.
func (s *Service) SafeFilter(text string) (string, error) {
	return s.Chain().SafeFilter(text)
}

// Chain returns the active filter chain. Before Init it is an empty chain.
func (s *Service) Chain() *filter.Chain {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.chain == nil {
		return filter.NewChain(s.logger)
	}
	return s.chain
}

// ContentWriter renders content items through the chain.
func (s *Service) ContentWriter() *content.Writer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.writer == nil {
		return &content.Writer{Filter: filter.Identity, Logger: s.logger}
	}
	return s.writer
}

// Store returns the mapping store, nil before Init.
func (s *Service) Store() *mapping.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// StopWords returns the stop word registry, nil before Init.
func (s *Service) StopWords() *stopwords.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stops
}

// Redactor returns the password redactor, nil before Init.
func (s *Service) Redactor() *filter.DictionaryRedactor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.redactor
}

// Mappings returns the displayed name mappings, optionally of one category.
func (s *Service) Mappings(category mapping.Category) []mapping.Mapping {
	s.mu.RLock()
	anon := s.anon
	s.mu.RUnlock()
	if anon == nil {
		return nil
	}
	all := anon.Displayed()
	if category == "" {
		return all
	}
	var out []mapping.Mapping
	for _, m := range all {
		if m.Category == category {
			out = append(out, m)
		}
	}
	return out
}

// Lookup finds a mapping by original or by replacement.
func (s *Service) Lookup(term string) (mapping.Mapping, bool) {
	store := s.Store()
	if store == nil {
		return mapping.Mapping{}, false
	}
	if m, ok := store.Lookup(term); ok {
		return m, true
	}
	return store.Reverse(term)
}

// History returns recent refreshes. It is empty unless the sqlite backend is used.
func (s *Service) History(triggerType, state string, limit int) ([]state.RefreshRecord, error) {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db == nil {
		return nil, nil
	}
	return db.GetHistory(triggerType, state, limit)
}

// Config returns the active configuration.
func (s *Service) Config() *config.Global {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Close persists the mappings and releases the database.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.store != nil {
		if err := s.store.Save(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.closeDBLocked(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Service) closeDBLocked() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Service) dictionary(cfg *config.Global) filter.Dictionary {
	return filter.Dictionary{
		Patterns: cfg.Anonymization.PasswordKeyPatterns,
		File:     cfg.Resolve(cfg.Anonymization.SecurityWordsFile),
		Logger:   logging.WithComponent(s.logger, "redactor"),
	}
}

// inventorySource reads the inventory file named by the current configuration.
type inventorySource struct{ s *Service }

func (i inventorySource) Snapshot(ctx context.Context) (*inventory.Snapshot, error) {
	i.s.mu.RLock()
	path := i.s.cfg.Resolve(i.s.cfg.Inventory.Path)
	i.s.mu.RUnlock()
	return inventory.FileSource{Path: path}.Snapshot(ctx)
}
