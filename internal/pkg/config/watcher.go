package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher re-reads the config file whenever it changes on disk and hands
// the fresh settings to the callback. Editors often replace files instead
// of writing them in place, so the parent directory is watched and events
// are filtered by name.
type Watcher struct {
	watcher *fsnotify.Watcher
	quit    chan struct{}
}

func Watch(path string, onChange func(cfg map[string]any), logger *zap.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := w.Add(filepath.Dir(path)); err != nil {
		_ = w.Close()
		return nil, err
	}

	cw := &Watcher{
		watcher: w,
		quit:    make(chan struct{}),
	}

	go func() {
		for {
			select {
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(e.Name) != filepath.Clean(path) {
					continue
				}
				if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
					continue
				}

				logger.Info("config file changed; reloading",
					zap.String("config", path),
				)

				_, data, err := Load(path)
				if err != nil {
					logger.Error("failed to reload config",
						zap.Error(err),
						zap.String("config", path),
					)
					continue
				}
				onChange(data)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("config watcher failure",
					zap.Error(err),
				)
			case <-cw.quit:
				return
			}
		}
	}()

	return cw, nil
}

func (cw *Watcher) Close() error {
	close(cw.quit)
	return cw.watcher.Close()
}
