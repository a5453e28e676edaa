package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce coalesces the burst of events an editor save produces.
const DefaultReloadDebounce = 100 * time.Millisecond

// Loader keeps the current configuration of one file and, once Watch is
// called, swaps it whenever the file changes on disk and still validates.
type Loader struct {
	path     string
	debounce time.Duration

	mu       sync.RWMutex
	config   *Config
	onChange []func(*Config)

	watcher *fsnotify.Watcher
	done    chan struct{}
	errs    chan error
	wg      sync.WaitGroup
	closed  sync.Once
}

// NewLoader creates a loader for path, or for ConfigPath when path is empty.
func NewLoader(path string) *Loader {
	if path == "" {
		path = ConfigPath()
	}
	return &Loader{
		path:     path,
		debounce: DefaultReloadDebounce,
		done:     make(chan struct{}),
		errs:     make(chan error, 1),
	}
}

func (l *Loader) Path() string {
	return l.path
}

// Load reads the file and makes it current. A config that fails validation
// is rejected and the current one is kept.
func (l *Loader) Load() (*Config, error) {
	cfg, err := l.read()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.config = cfg
	l.mu.Unlock()
	return cfg, nil
}

func (l *Loader) read() (*Config, error) {
	cfg, err := Load(l.path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Config returns the current configuration, or nil before the first Load.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// OnChange registers cb to run after every reload that changed the
// configuration. Callbacks run on the watcher goroutine.
func (l *Loader) OnChange(cb func(*Config)) {
	l.mu.Lock()
	l.onChange = append(l.onChange, cb)
	l.mu.Unlock()
}

// Errors reports reload failures. Only the oldest unread error is kept.
func (l *Loader) Errors() <-chan error {
	return l.errs
}

// Watch starts following the file. The parent directory is watched so that
// editors which save by renaming a temp file are still seen.
func (l *Loader) Watch() error {
	if l.watcher != nil {
		return errors.New("config loader already watching")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(l.path), err)
	}
	l.watcher = watcher

	l.wg.Add(1)
	go l.watch()
	return nil
}

func (l *Loader) watch() {
	defer l.wg.Done()

	name := filepath.Base(l.path)
	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-l.done:
			return

		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(l.debounce, l.reload)

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.report(err)
		}
	}
}

func (l *Loader) report(err error) {
	select {
	case l.errs <- err:
	default:
	}
}

// reload swaps in the file's new contents. Saves that leave the effective
// configuration unchanged do not notify callbacks.
func (l *Loader) reload() {
	select {
	case <-l.done:
		return
	default:
	}

	cfg, err := l.read()
	if err != nil {
		l.report(fmt.Errorf("reload %s: %w", l.path, err))
		return
	}

	l.mu.Lock()
	if l.config != nil && reflect.DeepEqual(l.config, cfg) {
		l.mu.Unlock()
		return
	}
	l.config = cfg
	callbacks := slices.Clone(l.onChange)
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
}

// Close stops watching. It is safe to call more than once.
func (l *Loader) Close() error {
	var err error
	l.closed.Do(func() {
		close(l.done)
		if l.watcher != nil {
			err = l.watcher.Close()
		}
		l.wg.Wait()
	})
	return err
}
