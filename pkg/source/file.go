package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mercator-hq/sluice/pkg/control"
)

// FileConfig configures a FileSource.
type FileConfig struct {
	// Path is the policy document (.json, .yaml or .yml).
	Path string

	// Debounce is the quiet period after the last file event before a
	// reload (default: 100ms).
	Debounce time.Duration

	// Loader decodes documents. Defaults to control.DefaultLoader().
	Loader *control.Loader

	// OnReload is notified after every reload attempt triggered by Watch.
	OnReload ReloadFunc
}

// FileSource loads the root policy from a file and, while Watch runs,
// reloads it whenever the file changes. A document that fails to load is
// logged and the previous policy stays installed.
type FileSource struct {
	holder

	config FileConfig
	logger *slog.Logger
	mu     sync.Mutex // serializes loads
}

var _ Source = (*FileSource)(nil)

// NewFileSource creates a file-backed source. Call Load before serving.
func NewFileSource(config FileConfig, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Debounce == 0 {
		config.Debounce = 100 * time.Millisecond
	}
	if config.Loader == nil {
		config.Loader = control.DefaultLoader()
	}
	return &FileSource{
		config: config,
		logger: logger.With("policy_source", config.Path),
	}
}

// Load reads and installs the document now.
func (s *FileSource) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	data, err := os.ReadFile(s.config.Path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read policy file %q: %w", s.config.Path, err)
	}

	p, err := DecodeDocument(s.config.Loader, s.config.Path, data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("policy file %q: %w", s.config.Path, err)
	}

	snap, swapped := s.install(p, revisionOf(data))
	if swapped {
		s.logger.Info("root policy loaded",
			"revision", snap.Revision,
			"policy", p.Name(),
		)
	}
	return snap, nil
}

// DecodeDocument loads a policy from file content, choosing the decoder by
// extension. YAML is the default since it also accepts JSON.
func DecodeDocument(loader *control.Loader, path string, data []byte) (control.Policy, error) {
	if loader == nil {
		loader = control.DefaultLoader()
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return loader.LoadJSON(data)
	}
	return loader.LoadYAML(data)
}

// Watch reloads the document on change until ctx is cancelled. It watches
// the parent directory so that editors replacing the file by rename are
// seen.
func (s *FileSource) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.config.Path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", dir, err)
	}
	target := filepath.Clean(s.config.Path)

	s.logger.Info("policy watcher started",
		"debounce_ms", s.config.Debounce.Milliseconds(),
	)

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	reload := func() {
		if ctx.Err() != nil {
			return
		}
		snap, err := s.Load(ctx)
		if err != nil {
			s.logger.Error("policy reload failed, keeping previous policy", "error", err)
		}
		if s.config.OnReload != nil {
			s.config.OnReload(snap, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("policy watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			s.logger.Debug("policy file event", "op", event.Op.String())

			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.config.Debounce, reload)
			timerMu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			s.logger.Error("policy watcher error", "error", err)
		}
	}
}
