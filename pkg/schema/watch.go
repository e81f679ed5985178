package schema

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watch reloads the registry whenever a schema file in the loaded directory
// changes. It blocks until ctx is cancelled; run it in its own goroutine.
// A registry that never called LoadDir has nothing to watch and returns nil.
func (r *Registry) Watch(ctx context.Context, log *logrus.Logger) error {
	r.mu.RLock()
	dir := r.dir
	r.mu.RUnlock()
	if dir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".yaml") && !strings.HasSuffix(event.Name, ".yml") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.LoadDir(dir); err != nil {
				log.WithError(err).WithField("file", event.Name).Warn("schema reload failed, keeping previous schemas")
				continue
			}
			log.WithField("file", event.Name).Info("schemas reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("schema watcher error")
		}
	}
}
