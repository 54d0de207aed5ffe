// Package watcher re-validates template files when they change on disk.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benjaminschreck/go-clause/pkg/clause"
	"github.com/fsnotify/fsnotify"
)

// Result is the outcome of re-validating one changed file.
type Result struct {
	Path     string
	Template *clause.Template
	Err      error
	// Removed is set when the file disappeared; Template and Err are nil.
	Removed bool
}

// Valid reports whether the file parsed into a template.
func (r Result) Valid() bool {
	return r.Template != nil && r.Err == nil
}

// Handler receives results in path order after each debounce window.
type Handler func(Result)

// Filter determines if a path should be considered.
type Filter func(path string) bool

// Watcher watches directories for template changes with debouncing.
type Watcher struct {
	fs       *fsnotify.Watcher
	engine   *clause.Engine
	debounce time.Duration

	mu       sync.RWMutex
	filters  []Filter
	handlers []Handler

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op
	timer     *time.Timer
	flush     chan struct{}

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a watcher that parses changed files with engine (nil means
// clause.DefaultEngine). Template and hidden-file filters are installed.
func New(engine *clause.Engine, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if engine == nil {
		engine = clause.DefaultEngine
	}
	return &Watcher{
		fs:       fw,
		engine:   engine,
		debounce: debounce,
		filters:  []Filter{TemplateFilter, NoHiddenFilter},
		pending:  make(map[string]fsnotify.Op),
		flush:    make(chan struct{}, 1),
	}, nil
}

// AddFilter adds a path filter. All filters must accept a path.
func (w *Watcher) AddFilter(filter Filter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.filters = append(w.filters, filter)
}

// AddHandler registers a result handler.
func (w *Watcher) AddHandler(handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Watch adds dir and all of its subdirectories. Directories created later
// under a watched one are added as they appear.
func (w *Watcher) Watch(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("invalid watch path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("invalid watch path: %s is not a directory", dir)
	}

	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

// Start launches the event and flush loops. They run until ctx is done or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(2)
	go w.watchLoop(ctx)
	go w.processLoop(ctx)
	return nil
}

// Stop stops the loops, waits for them to exit and releases the fsnotify
// watcher. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		if w.cancel != nil {
			w.cancel()
		}
		w.pendingMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.pendingMu.Unlock()

		err = w.fs.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			clause.Warn("File watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	if event.Op&fsnotify.Create != 0 && NoHiddenFilter(event.Name) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.watchCreated(event.Name)
			return
		}
	}
	if !w.accept(event.Name) {
		return
	}
	w.queue(event.Name, event.Op)
}

// watchCreated adds a directory created after Watch. Files may land in it
// before its watch is in place, so the ones already there are queued too.
func (w *Watcher) watchCreated(dir string) {
	if err := w.Watch(dir); err != nil {
		clause.WithField("path", dir).Warn("Failed to watch new directory: %v", err)
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if w.accept(path) {
			w.queue(path, fsnotify.Create)
		}
		return nil
	})
}

func (w *Watcher) queue(path string, op fsnotify.Op) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[path] |= op
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.flush <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) accept(path string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, filter := range w.filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

func (w *Watcher) processLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.flush:
			w.process()
		}
	}
}

func (w *Watcher) process() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	sort.Strings(paths)

	w.mu.RLock()
	handlers := append([]Handler(nil), w.handlers...)
	w.mu.RUnlock()

	for _, path := range paths {
		result := Check(w.engine, path)
		logResult(result)
		for _, handler := range handlers {
			handler(result)
		}
	}
}

// Check parses the file at path with engine. A missing file yields a
// Removed result.
func Check(engine *clause.Engine, path string) Result {
	tmpl, err := engine.ParseFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{Path: path, Removed: true}
		}
		return Result{Path: path, Err: err}
	}
	return Result{Path: path, Template: tmpl}
}

func logResult(r Result) {
	logger := clause.WithField("path", r.Path)
	switch {
	case r.Removed:
		logger.Info("Template removed")
	case r.Err != nil:
		logger.Warn("Template invalid: %v", r.Err)
	default:
		logger.WithFields(clause.Fields{
			"fields": len(r.Template.Fields()),
			"blocks": len(r.Template.Blocks()),
		}).Info("Template valid")
	}
}

// TemplateFilter accepts plain-text and DOCX template files.
func TemplateFilter(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".tmpl", ".docx":
		return true
	}
	return false
}

// NoHiddenFilter rejects dot files and Office lock files ("~$name.docx").
func NoHiddenFilter(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") && !strings.HasPrefix(base, "~$")
}
