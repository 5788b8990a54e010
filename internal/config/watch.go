package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	path     string
	fs       *fsnotify.Watcher
	Debounce time.Duration
}

// NewWatcher starts watching the directory holding path. The directory is
// watched instead of the file so editors that replace the file by rename
// keep triggering reloads.
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{path: abs, fs: fs, Debounce: defaultDebounce}, nil
}

// Run delivers every valid reloaded config to onChange until ctx ends.
// Invalid edits are logged and skipped.
func (w *Watcher) Run(ctx context.Context, onChange func(*Config)) error {
	defer w.fs.Close()

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.Debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			cfg, err := Load(w.path)
			if err != nil {
				log.Printf("warning: config reload: %v", err)
				continue
			}
			log.Printf("config reloaded from %s", w.path)
			onChange(cfg)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			log.Printf("warning: config watcher: %v", err)
		}
	}
}
