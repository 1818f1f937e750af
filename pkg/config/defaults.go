// Package config serves the service-principal defaults used when an
// authentication request omits fields. Defaults come from the process
// environment and an optional dotenv file that is re-read when it changes.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kubestellar/aks-console/pkg/session"
)

const (
	EnvClientID       = "AZURE_CLIENT_ID"
	EnvClientSecret   = "AZURE_CLIENT_SECRET"
	EnvTenantID       = "AZURE_TENANT_ID"
	EnvSubscriptionID = "AZURE_SUBSCRIPTION_ID"

	defaultDebounce     = 500 * time.Millisecond
	defaultPollInterval = 5 * time.Second
)

var credentialKeys = []string{EnvClientID, EnvClientSecret, EnvTenantID, EnvSubscriptionID}

// Defaults are fallback credential fields.
type Defaults struct {
	ClientID       string
	ClientSecret   string
	TenantID       string
	SubscriptionID string
}

// Apply fills the empty fields of p from d.
func (d Defaults) Apply(p session.Principal) session.Principal {
	if p.ClientID == "" {
		p.ClientID = d.ClientID
	}
	if p.ClientSecret == "" {
		p.ClientSecret = d.ClientSecret
	}
	if p.TenantID == "" {
		p.TenantID = d.TenantID
	}
	if p.SubscriptionID == "" {
		p.SubscriptionID = d.SubscriptionID
	}
	return p
}

// DefaultsWatcher keeps Defaults current. Process environment values win over
// the file; they are captured when the watcher is created, so later dotenv
// loading into the process does not shadow file edits.
type DefaultsWatcher struct {
	path   string
	logger *zap.Logger
	env    map[string]string

	mu       sync.RWMutex
	current  Defaults
	onReload func(Defaults)

	debounce     time.Duration
	pollInterval time.Duration
}

// NewDefaultsWatcher captures the process environment and loads path, which
// may be empty or missing.
func NewDefaultsWatcher(path string, logger *zap.Logger) (*DefaultsWatcher, error) {
	return newDefaultsWatcher(path, logger, os.LookupEnv)
}

func newDefaultsWatcher(path string, logger *zap.Logger, lookup func(string) (string, bool)) (*DefaultsWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	env := make(map[string]string)
	for _, k := range credentialKeys {
		if v, ok := lookup(k); ok && v != "" {
			env[k] = v
		}
	}
	w := &DefaultsWatcher{
		path:         path,
		logger:       logger,
		env:          env,
		debounce:     defaultDebounce,
		pollInterval: defaultPollInterval,
	}
	if err := w.Load(); err != nil {
		return nil, err
	}
	return w, nil
}

// Current returns the latest defaults.
func (w *DefaultsWatcher) Current() Defaults {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnReload registers a callback invoked after each successful reload.
func (w *DefaultsWatcher) OnReload(fn func(Defaults)) {
	w.mu.Lock()
	w.onReload = fn
	w.mu.Unlock()
}

// Load re-reads the file and merges it under the captured environment.
func (w *DefaultsWatcher) Load() error {
	values := map[string]string{}
	if w.path != "" {
		fileValues, err := godotenv.Read(w.path)
		switch {
		case err == nil:
			values = fileValues
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("read env file %s: %w", w.path, err)
		}
	}
	for k, v := range w.env {
		values[k] = v
	}

	d := Defaults{
		ClientID:       values[EnvClientID],
		ClientSecret:   values[EnvClientSecret],
		TenantID:       values[EnvTenantID],
		SubscriptionID: values[EnvSubscriptionID],
	}

	w.mu.Lock()
	w.current = d
	cb := w.onReload
	w.mu.Unlock()
	if cb != nil {
		cb(d)
	}
	return nil
}

func (w *DefaultsWatcher) reload() {
	if err := w.Load(); err != nil {
		w.logger.Warn("failed to reload credential defaults", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("credential defaults reloaded", zap.String("path", w.path))
}

// Watch follows the env file until ctx is done. Editors that save atomically
// replace the file, so the parent directory is watched and a poll of the
// file's mtime catches events the watcher misses.
func (w *DefaultsWatcher) Watch(ctx context.Context) error {
	if w.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}
	go w.watchLoop(ctx, watcher)
	w.logger.Info("watching env file for changes", zap.String("path", w.path))
	return nil
}

func (w *DefaultsWatcher) modTime() time.Time {
	if info, err := os.Stat(w.path); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}

func (w *DefaultsWatcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var debounceTimer *time.Timer
	pollTicker := time.NewTicker(w.pollInterval)
	defer pollTicker.Stop()
	lastModTime := w.modTime()

	triggerReload := func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(w.debounce, w.reload)
	}

	base := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				lastModTime = w.modTime()
				triggerReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("env file watcher error", zap.Error(err))
		case <-pollTicker.C:
			if mt := w.modTime(); !mt.Equal(lastModTime) {
				lastModTime = mt
				w.logger.Debug("env file change detected by poll")
				triggerReload()
			}
		}
	}
}
