package config

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/karma/engine/core"
)

// Watcher reloads a configuration file whenever it is written or replaced.
// Only successfully validated configurations are delivered, newest wins.
type Watcher struct {
	path     string
	fsnotify *fsnotify.Watcher
	changes  chan *Config
	done     chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors usually replace the file on save.
	if err := fsWatch.Add(filepath.Dir(abs)); err != nil {
		fsWatch.Close()
		return nil, err
	}
	return &Watcher{
		path:     abs,
		fsnotify: fsWatch,
		changes:  make(chan *Config, 1),
		done:     make(chan struct{}),
	}, nil
}

func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.start()
}

// Changes delivers reloaded configurations.
func (w *Watcher) Changes() <-chan *Config {
	return w.changes
}

func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		err = w.fsnotify.Close()
	})
	return err
}

func (w *Watcher) start() {
	defer w.wg.Done()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != w.path {
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.reload()

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			if !errors.Is(err, fsnotify.ErrEventOverflow) {
				core.LogError("configuration watcher: %s", err.Error())
			}

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		// Saves are often observed half written; the next write event retries.
		core.LogWarn("ignoring configuration change: %s", err.Error())
		return
	}
	core.LogInfo("configuration %s reloaded", w.path)
	for {
		select {
		case w.changes <- cfg:
			return
		default:
		}
		select {
		case <-w.changes:
		default:
		}
	}
}
