package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/wayneeseguin/spool/pkg/spool"
)

// DefaultDebounce is how long a watcher waits for a burst of file events to
// settle before reloading.
const DefaultDebounce = 100 * time.Millisecond

// WatchCallback receives the reloaded configuration, or the error that
// prevented loading it.
type WatchCallback func(cfg spool.Config, err error)

// Watcher reloads a configuration file whenever it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	callback WatchCallback
	watcher  *fsnotify.Watcher
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// Watch starts watching path. The directory is watched rather than the file
// so that editors replacing the file atomically are noticed. A debounce of
// zero uses DefaultDebounce.
func Watch(path string, callback WatchCallback, debounce time.Duration) (*Watcher, error) {
	if callback == nil {
		return nil, errors.New("config: watch callback is required")
	}
	if _, err := FormatFromPath(path); err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating file watcher")
	}
	cleanPath := filepath.Clean(path)
	if err := fsWatcher.Add(filepath.Dir(cleanPath)); err != nil {
		_ = fsWatcher.Close()
		return nil, errors.Wrap(err, "watching config directory")
	}

	w := &Watcher{
		path:     cleanPath,
		debounce: debounce,
		callback: callback,
		watcher:  fsWatcher,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Close stops watching and waits for a running callback to return.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) run() {
	defer w.wg.Done()

	name := filepath.Base(w.path)
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.callback(spool.Config{}, errors.Wrap(err, "config: watch error"))

		case <-fire:
			fire = nil
			cfg, err := Load(w.path)
			w.callback(cfg, err)
		}
	}
}
