package textrules

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 200 * time.Millisecond

// Watch reloads the rule set whenever the file at path is written or replaced.
//
// The parent directory is watched so atomic rename-based saves are observed.
// Watch blocks until ctx is done.
func (s *RuleSet) Watch(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch rules resolve path %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch rules new watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("watch rules directory %s: %w", filepath.Dir(absPath), err)
	}

	debounce := time.NewTimer(defaultWatchDebounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			debounce.Reset(defaultWatchDebounce)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("rules watcher error", "path", absPath, "error", watchErr)
		case <-debounce.C:
			found, err := s.Load(absPath)
			if err != nil {
				s.logger.Error("reload rules failed", "path", absPath, "error", err)
				continue
			}
			s.logger.Info("rules reloaded", "path", absPath, "found", found)
		}
	}
}
