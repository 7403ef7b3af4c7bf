package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/robfig/cron/v3"

	"mercator-hq/sluice/pkg/control"
)

// ChangeNotifier is implemented by stores that announce document changes.
type ChangeNotifier interface {
	Changes(ctx context.Context) (<-chan string, error)
}

// StoreConfig configures a StoreSource.
type StoreConfig struct {
	// Store serves the root document.
	Store control.ConfigStore

	// Name is the name of the root document in the store.
	Name string

	// Schedule is a cron spec for periodic refresh (default: "@every 30s").
	Schedule string

	// Attempts bounds fetch retries on store failure (default: 3).
	Attempts uint

	// RetryDelay is the base backoff delay between attempts (default: 200ms).
	RetryDelay time.Duration

	// Loader decodes documents. Defaults to control.DefaultLoader().
	Loader *control.Loader

	// OnReload is notified after every reload attempt triggered by Run.
	OnReload ReloadFunc
}

// StoreSource loads the root policy from a configuration store, refreshing
// it on a cron schedule and, when the store implements ChangeNotifier, as
// soon as the document changes.
type StoreSource struct {
	holder

	config StoreConfig
	logger *slog.Logger
	mu     sync.Mutex
}

var _ Source = (*StoreSource)(nil)

// NewStoreSource creates a store-backed source. Call Load before serving.
func NewStoreSource(config StoreConfig, logger *slog.Logger) (*StoreSource, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("store source: store is required")
	}
	if config.Name == "" {
		return nil, fmt.Errorf("store source: document name is required")
	}
	if config.Schedule == "" {
		config.Schedule = "@every 30s"
	}
	if _, err := cron.ParseStandard(config.Schedule); err != nil {
		return nil, fmt.Errorf("store source: invalid schedule %q: %w", config.Schedule, err)
	}
	if config.Attempts == 0 {
		config.Attempts = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 200 * time.Millisecond
	}
	if config.Loader == nil {
		config.Loader = control.DefaultLoader()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSource{
		config: config,
		logger: logger.With("policy_source", "store:"+config.Name),
	}, nil
}

// Load fetches and installs the document now. Store failures are retried
// with exponential backoff; a missing document or one that fails to load is
// not.
func (s *StoreSource) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc control.Document
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(s.config.Attempts),
		retry.Delay(s.config.RetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, control.ErrConfigNotFound)
		}),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			return retry.BackOffDelay(n, err, config)
		}),
	)
	err := r.Do(func() error {
		var fetchErr error
		doc, fetchErr = s.config.Store.Fetch(ctx, s.config.Name)
		return fetchErr
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch policy document %q: %w", s.config.Name, err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode policy document %q: %w", s.config.Name, err)
	}
	revision := revisionOf(data)
	if prev, ok := s.Snapshot(); ok && prev.Revision == revision {
		return prev, nil
	}

	p, err := s.config.Loader.Load(doc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("policy document %q: %w", s.config.Name, err)
	}
	snap, _ := s.install(p, revision)
	s.logger.Info("root policy loaded",
		"revision", snap.Revision,
		"policy", p.Name(),
	)
	return snap, nil
}

// Run refreshes the policy until ctx is cancelled.
func (s *StoreSource) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.config.Schedule, func() { s.reload(ctx, "schedule") }); err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}
	c.Start()
	defer func() {
		<-c.Stop().Done()
	}()

	var changes <-chan string
	if notifier, ok := s.config.Store.(ChangeNotifier); ok {
		ch, err := notifier.Changes(ctx)
		if err != nil {
			s.logger.Warn("change notifications unavailable, relying on schedule", "error", err)
		} else {
			changes = ch
		}
	}

	s.logger.Info("policy refresh started", "schedule", s.config.Schedule, "notifications", changes != nil)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("policy refresh stopped")
			return nil
		case name, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if name == s.config.Name {
				s.reload(ctx, "notification")
			}
		}
	}
}

func (s *StoreSource) reload(ctx context.Context, trigger string) {
	if ctx.Err() != nil {
		return
	}
	snap, err := s.Load(ctx)
	if err != nil {
		s.logger.Error("policy reload failed, keeping previous policy",
			"trigger", trigger,
			"error", err,
		)
	}
	if s.config.OnReload != nil {
		s.config.OnReload(snap, err)
	}
}
