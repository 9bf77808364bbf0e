package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long file changes must settle before a
// reload fires.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a configuration file when it changes on disk.
//
// It watches the file's directory rather than the file itself, so
// editors that replace the file on save (write a temp file, rename it
// over the original) are still observed.
type Watcher struct {
	path     string
	debounce time.Duration

	fsw *fsnotify.Watcher

	onReload func(Config)
	onError  func(error)

	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets how long changes must settle before a reload.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithErrorHandler routes watch and reload errors to fn. Without it
// errors are dropped.
func WithErrorHandler(fn func(error)) WatchOption {
	return func(w *Watcher) {
		if fn != nil {
			w.onError = fn
		}
	}
}

// WatchFile starts watching path and calls onReload with the freshly
// loaded configuration after each settled change. Callbacks run on
// the watcher goroutine.
func WatchFile(path string, onReload func(Config), opts ...WatchOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		debounce: DefaultDebounce,
		fsw:      fsw,
		onReload: onReload,
		closeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Close stops the watcher. No callbacks run after Close returns.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closeCh)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.closeCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			// Create covers rename-over saves. Removal alone does
			// not reload; recreation will.
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
				continue
			}
			if !timer.Stop() {
				select {
				case <-fire:
				default:
				}
			}
			timer.Reset(w.debounce)

		case <-fire:
			timer = nil
			fire = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.fail(err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.fail(err)
		return
	}
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

func (w *Watcher) fail(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}
