package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader holds the serving certificate and reloads it from disk.
type Reloader struct {
	certFile string
	keyFile  string
	logger   *slog.Logger

	// Debounce is the quiet period after a file event before reloading.
	Debounce time.Duration

	cert atomic.Pointer[tls.Certificate]
	mu   sync.Mutex // serializes loads
}

// NewReloader creates a reloader for the given PEM files. Call Load before
// serving.
func NewReloader(certFile, keyFile string, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{
		certFile: certFile,
		keyFile:  keyFile,
		logger:   logger.With("cert_file", certFile),
		Debounce: 200 * time.Millisecond,
	}
}

// Load reads the key pair now. On failure the current certificate is kept.
func (r *Reloader) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cert, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}
	if err := ValidateCertificate(leaf, time.Now()); err != nil {
		return err
	}
	cert.Leaf = leaf
	r.cert.Store(&cert)

	r.logger.Info("certificate loaded",
		"subject", leaf.Subject.CommonName,
		"not_after", leaf.NotAfter.Format(time.RFC3339),
	)
	return nil
}

// GetCertificate implements tls.Config.GetCertificate.
func (r *Reloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert := r.cert.Load()
	if cert == nil {
		return nil, errors.New("no certificate loaded")
	}
	return cert, nil
}

// Leaf returns the parsed serving certificate, or nil before Load.
func (r *Reloader) Leaf() *x509.Certificate {
	if cert := r.cert.Load(); cert != nil {
		return cert.Leaf
	}
	return nil
}

// Watch reloads the certificate when either file changes, until ctx is
// cancelled. Parent directories are watched so that renames into place are
// seen.
func (r *Reloader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	targets := map[string]bool{
		filepath.Clean(r.certFile): true,
		filepath.Clean(r.keyFile):  true,
	}
	dirs := map[string]bool{}
	for path := range targets {
		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %q: %w", dir, err)
		}
		dirs[dir] = true
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	reload := func() {
		if err := r.Load(); err != nil {
			r.logger.Error("certificate reload failed, keeping previous certificate", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !targets[filepath.Clean(event.Name)] || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(r.Debounce, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("certificate watcher error", "error", err)
		}
	}
}

// Check reports the serving certificate for the health endpoint. It fails
// once the certificate is within ExpiryWarning of expiring.
func (r *Reloader) Check(_ context.Context) (map[string]string, error) {
	leaf := r.Leaf()
	if leaf == nil {
		return nil, errors.New("no certificate loaded")
	}
	now := time.Now()
	days := DaysUntilExpiry(leaf, now)
	details := map[string]string{
		"subject":        leaf.Subject.CommonName,
		"not_after":      leaf.NotAfter.UTC().Format(time.RFC3339),
		"days_remaining": strconv.Itoa(days),
	}
	if err := ValidateCertificate(leaf, now); err != nil {
		return details, err
	}
	if leaf.NotAfter.Sub(now) < ExpiryWarning {
		return details, fmt.Errorf("certificate expires in %d days", days)
	}
	return details, nil
}
