package rbac

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/quartermaster/pkg/observability"
)

// PolicyWatcher serves the policy loaded from a file and reloads it when the
// file changes. A reload that fails to parse keeps the previous policy.
type PolicyWatcher struct {
	path    string
	current atomic.Pointer[Policy]
	watcher *fsnotify.Watcher
	logger  *observability.Logger
}

// NewPolicyWatcher loads path and starts watching its directory
func NewPolicyWatcher(path string, logger *observability.Logger) (*PolicyWatcher, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	policy, err := LoadPolicyFile(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// watch the directory so atomic renames by editors are seen
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch policy directory: %w", err)
	}

	w := &PolicyWatcher{
		path:    filepath.Clean(path),
		watcher: watcher,
		logger:  logger.WithField("policy_file", path),
	}
	w.current.Store(&policy)
	return w, nil
}

// Policy implements PolicySource
func (w *PolicyWatcher) Policy() Policy {
	return *w.current.Load()
}

// Run processes file events until ctx is done
func (w *PolicyWatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.Reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Policy watcher error")
		}
	}
}

// Reload re-reads the policy file and reports whether it was applied
func (w *PolicyWatcher) Reload() bool {
	policy, err := LoadPolicyFile(w.path)
	if err != nil {
		w.logger.WithError(err).Warn("Keeping previous policy")
		return false
	}
	w.current.Store(&policy)
	w.logger.WithField("capabilities", len(policy)).Info("Policy reloaded")
	return true
}

// Close stops watching
func (w *PolicyWatcher) Close() error {
	return w.watcher.Close()
}
