// Package watcher re-ingests documents when files change under watched directories.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/models"
)

const defaultDebounce = 400 * time.Millisecond

// Ingester ingests one file.
type Ingester interface {
	IngestFile(ctx context.Context, path string, params models.ChunkParams) (*models.IngestResult, error)
}

// ResultFunc receives the outcome of every ingestion the watcher triggers.
type ResultFunc func(path string, res *models.IngestResult, err error)

// Watcher watches directories and ingests files after writes settle.
// Removed files are logged only; their points stay in the collection.
type Watcher struct {
	roots      []string
	extensions []string
	recursive  bool
	debounce   time.Duration
	params     models.ChunkParams
	ingester   Ingester
	onResult   ResultFunc
	logger     *zap.Logger

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	pending  map[string]*time.Timer
	ctx      context.Context
	started  bool
	done     chan struct{}
	stopOnce sync.Once

	// ingestMu serializes ingestions so one file is never ingested twice at once.
	ingestMu sync.Mutex
	inflight sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides the configured debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithResultFunc sets a callback invoked after each ingestion.
func WithResultFunc(fn ResultFunc) Option {
	return func(w *Watcher) { w.onResult = fn }
}

// New creates a watcher over cfg.Directories. Every changed file with an allowed
// extension is ingested with params.
func New(cfg config.WatchConfig, ingester Ingester, params models.ChunkParams, opts ...Option) *Watcher {
	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = models.AllowedExtensions
	}
	w := &Watcher{
		roots:      cleanRoots(cfg.Directories),
		extensions: exts,
		recursive:  cfg.RecursiveOrDefault(),
		debounce:   defaultDebounce,
		params:     params,
		ingester:   ingester,
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	if cfg.DebounceMillis > 0 {
		w.debounce = time.Duration(cfg.DebounceMillis) * time.Millisecond
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func cleanRoots(dirs []string) []string {
	roots := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if abs, err := filepath.Abs(d); err == nil {
			roots = append(roots, filepath.Clean(abs))
		}
	}
	return roots
}

// Start begins watching. It returns once every root is registered and runs until
// ctx is cancelled or Stop is called. Roots must exist.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if len(w.roots) == 0 {
		return errors.New("no directories to watch")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, root := range w.roots {
		if err := w.addTree(fsw, root); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	w.fsw = fsw
	w.ctx = ctx
	w.started = true
	w.logger.Info("watching directories",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive),
		zap.Duration("debounce", w.debounce))
	go w.run(ctx, fsw)
	return nil
}

// addTree watches dir, and its subdirectories when recursive.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "watch", Path: dir, Err: errors.New("not a directory")}
	}
	if !w.recursive {
		return fsw.Add(dir)
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.handleNewDirectory(fsw, path)
			return
		}
		if w.matches(path) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.cancel(path)
		if w.matches(path) {
			w.logger.Info("watched file removed; its points are kept", zap.String("path", path))
		}
	}
}

// handleNewDirectory watches a directory created or moved under a root and
// schedules the files already inside it.
func (w *Watcher) handleNewDirectory(fsw *fsnotify.Watcher, dir string) {
	if !w.recursive {
		return
	}
	if err := w.addTree(fsw, dir); err != nil {
		w.logger.Warn("failed to watch new directory", zap.String("path", dir), zap.Error(err))
		return
	}
	for _, path := range w.collect(dir) {
		w.schedule(path)
	}
}

func (w *Watcher) matches(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) collect(dir string) []string {
	var files []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && !w.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && w.matches(path) {
			files = append(files, path)
		}
		return nil
	})
	return files
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		ctx, ok := w.claim(path, t)
		w.mu.Unlock()
		if !ok {
			return
		}
		defer w.inflight.Done()
		w.ingest(ctx, path)
	})
	w.pending[path] = t
}

// claim takes the pending slot for path if t still owns it. A stale timer that
// fired while schedule replaced it leaves the newer timer in place. w.mu must be
// held. On success the caller owes one inflight.Done.
func (w *Watcher) claim(path string, t *time.Timer) (context.Context, bool) {
	if cur, ok := w.pending[path]; !ok || cur != t {
		return nil, false
	}
	delete(w.pending, path)
	if !w.started {
		return nil, false
	}
	w.inflight.Add(1)
	return w.ctx, true
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	w.ingestMu.Lock()
	defer w.ingestMu.Unlock()
	res, err := w.ingester.IngestFile(ctx, path, w.params)
	switch {
	case err != nil:
		w.logger.Warn("watched file ingestion failed", zap.String("path", path), zap.Error(err))
	case !res.Success:
		w.logger.Warn("watched file ingestion failed", zap.String("path", path), zap.String("error", res.Error))
	default:
		w.logger.Info("watched file ingested", zap.String("path", path), zap.Int("chunks", res.ChunksCreated))
	}
	if w.onResult != nil {
		w.onResult(path, res, err)
	}
}

// SyncExisting ingests, synchronously and in lexical order, every matching file
// already present under the roots.
func (w *Watcher) SyncExisting(ctx context.Context) {
	for _, root := range w.roots {
		for _, path := range w.collect(root) {
			if ctx.Err() != nil {
				return
			}
			w.ingest(ctx, path)
		}
	}
}

// Directories returns the watched roots.
func (w *Watcher) Directories() []string {
	return append([]string(nil), w.roots...)
}

// Stop stops watching, drops pending ingestions, and waits for running ones.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	_ = w.fsw.Close()
	w.fsw = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
	w.inflight.Wait()
}
