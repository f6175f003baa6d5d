package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher signals on [Watcher.Events] when the content of config.toml
// changes. Bursts of filesystem events are coalesced and a rewrite with
// identical bytes is not reported.
//
// The containing directory is watched instead of the file: [Config.Save]
// and most editors replace the file by rename, which would silently drop a
// watch on the old inode. If fsnotify cannot be set up, or reports an
// error later, the watcher switches to stat polling.
type Watcher struct {
	path string
	log  *slog.Logger

	changes  chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	native  *fsnotify.Watcher
	polling atomic.Bool

	// interval is the stat period in polling mode.
	interval time.Duration
	// settle is how long the fsnotify loop waits for quiet before it
	// reads the file.
	settle time.Duration

	// sum is the digest of the last content reported. Only the goroutine
	// currently watching touches it.
	sum [sha256.Size]byte
}

type watchOptions struct {
	interval time.Duration
	settle   time.Duration
	pollOnly bool
}

// NewWatcher starts watching the config file at path. The file itself may
// be missing; its directory must exist.
func NewWatcher(path string, log *slog.Logger) (*Watcher, error) {
	return newWatcher(path, log, watchOptions{interval: 2 * time.Second, settle: 100 * time.Millisecond})
}

func newWatcher(path string, log *slog.Logger, opts watchOptions) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("config directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("config directory %s is not a directory", dir)
	}

	w := &Watcher{
		path:     path,
		log:      log.With("component", "config-watcher"),
		changes:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		interval: opts.interval,
		settle:   opts.settle,
	}
	w.sum, _ = w.digest()

	if opts.pollOnly {
		w.startPolling()
		return w, nil
	}
	if err := w.startNative(dir); err != nil {
		w.log.Info("fsnotify unavailable, polling config", "error", err)
		w.startPolling()
	}
	return w, nil
}

// Events receives one value per detected change. Changes that happen while
// a value is still pending are folded into it.
func (w *Watcher) Events() <-chan struct{} {
	return w.changes
}

// Polling reports whether the watcher fell back to stat polling.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Close stops the watcher. No value is sent on Events after it returns.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		if w.native != nil {
			err = w.native.Close()
		}
		w.wg.Wait()
	})
	if err != nil {
		return fmt.Errorf("closing fsnotify watcher: %w", err)
	}
	return nil
}

// ///////////////////////////////////////////////
// fsnotify
// ///////////////////////////////////////////////

func (w *Watcher) startNative(dir string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.native = fsw
	w.wg.Add(1)
	go w.watchNative()
	return nil
}

func (w *Watcher) watchNative() {
	defer w.wg.Done()

	target := filepath.Clean(w.path)
	var settled <-chan time.Time
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.native.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) == target && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				settled = time.After(w.settle)
			}
		case <-settled:
			settled = nil
			w.check()
		case err, ok := <-w.native.Errors:
			if !ok {
				return
			}
			w.log.Info("fsnotify error, polling config", "error", err)
			w.startPolling()
			return
		}
	}
}

// ///////////////////////////////////////////////
// Polling
// ///////////////////////////////////////////////

func (w *Watcher) startPolling() {
	w.polling.Store(true)
	w.wg.Add(1)
	go w.poll()
}

// poll reads the file only when its size or modification time moved.
func (w *Watcher) poll() {
	defer w.wg.Done()

	prev := w.stat()
	tick := time.NewTicker(w.interval)
	defer tick.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-tick.C:
			cur := w.stat()
			if cur == prev {
				continue
			}
			prev = cur
			w.check()
		}
	}
}

type fileStamp struct {
	size int64
	mod  int64
}

func (w *Watcher) stat() fileStamp {
	info, err := os.Stat(w.path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{size: info.Size(), mod: info.ModTime().UnixNano()}
}

// ///////////////////////////////////////////////
// Change Detection
// ///////////////////////////////////////////////

// check signals when the file content differs from the last report. A
// missing file is ignored: it is usually the middle of a replace.
func (w *Watcher) check() {
	sum, err := w.digest()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.log.Debug("read config for change check", "error", err)
		}
		return
	}
	if sum == w.sum {
		return
	}
	w.sum = sum
	select {
	case w.changes <- struct{}{}:
	default:
	}
}

func (w *Watcher) digest() ([sha256.Size]byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(data), nil
}
