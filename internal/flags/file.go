// SPDX-License-Identifier: MIT

package flags

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/log"
)

// fileFormat is the YAML shape of a flag file.
type fileFormat struct {
	Flags map[string]bool `yaml:"flags"`
}

// File is a Provider backed by a YAML file, hot-reloaded on change. A
// reload that fails to parse keeps the previous flag set; flags swap
// atomically, never partially.
type File struct {
	path    string
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	mu      sync.RWMutex
	current map[string]bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewFile loads the flag file and starts watching it for changes.
func NewFile(path string) (*File, error) {
	f := &File{
		path:   path,
		logger: log.WithComponent("flags"),
		done:   make(chan struct{}),
	}
	if err := f.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	f.watcher = watcher
	go f.watch()
	return f, nil
}

// IsEnabled reports whether the flag is currently set.
func (f *File) IsEnabled(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current[name]
}

// Close stops the watcher.
func (f *File) Close() error {
	var err error
	f.closeOnce.Do(func() {
		close(f.done)
		if f.watcher != nil {
			err = f.watcher.Close()
		}
	})
	return err
}

func (f *File) reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read flag file: %w", err)
	}
	var parsed fileFormat
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse flag file: %w", err)
	}

	f.mu.Lock()
	f.current = parsed.Flags
	f.mu.Unlock()
	return nil
}

func (f *File) watch() {
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := f.reload(); err != nil {
				f.logger.Warn().
					Err(err).
					Str("path", f.path).
					Msg("flag reload failed, keeping previous flags")
				continue
			}
			f.logger.Info().
				Str("path", f.path).
				Msg("flags reloaded")
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Warn().Err(err).Msg("flag watcher error")
		case <-f.done:
			return
		}
	}
}

var (
	_ Provider = Static(nil)
	_ Provider = (*File)(nil)
)
