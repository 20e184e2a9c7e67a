// Package watch turns every photo dropped into a directory into a game.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/tatianab/photo-game/internal/engine"
	"github.com/tatianab/photo-game/internal/models"
)

// Generator turns a photo on disk into a saved run.
type Generator interface {
	GenerateFile(ctx context.Context, path string, report engine.Reporter) (*models.Run, error)
}

// ResultFunc is called once per processed photo.
type ResultFunc func(path string, run *models.Run, err error)

type Options struct {
	// Settle is how long a file must go without events before it is read,
	// so half-copied photos are not picked up.
	Settle time.Duration
	// Existing also queues photos already in the directory at start.
	Existing bool
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// IsImage reports whether path has a photo extension.
func IsImage(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

type Watcher struct {
	dir      string
	gen      Generator
	logger   *zap.Logger
	opts     Options
	onResult ResultFunc

	mu      sync.Mutex
	pending map[string]time.Time
}

func New(dir string, gen Generator, logger *zap.Logger, opts Options, onResult ResultFunc) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Settle <= 0 {
		opts.Settle = 500 * time.Millisecond
	}
	if onResult == nil {
		onResult = func(string, *models.Run, error) {}
	}
	return &Watcher{
		dir:      dir,
		gen:      gen,
		logger:   logger,
		opts:     opts,
		onResult: onResult,
		pending:  make(map[string]time.Time),
	}
}

// Run watches until ctx is cancelled. Photos are generated one at a time in
// the order they settle.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching for photos", zap.String("dir", w.dir))

	queue := make(chan string, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.work(ctx, queue)
	}()
	defer func() {
		close(queue)
		wg.Wait()
	}()

	if w.opts.Existing {
		existing, err := w.existing()
		if err != nil {
			return err
		}
		for _, path := range existing {
			w.mark(path, time.Time{})
		}
	}

	ticker := time.NewTicker(w.opts.Settle / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !IsImage(event.Name) {
				continue
			}
			w.logger.Debug("photo event", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			w.mark(event.Name, time.Now())

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", zap.Error(err))

		case now := <-ticker.C:
			for _, path := range w.settled(now) {
				select {
				case queue <- path:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

func (w *Watcher) mark(path string, at time.Time) {
	w.mu.Lock()
	w.pending[path] = at
	w.mu.Unlock()
}

// settled removes and returns the pending paths quiet for at least Settle.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var ready []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.opts.Settle {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	sort.Strings(ready)
	return ready
}

func (w *Watcher) existing() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && IsImage(e.Name()) {
			paths = append(paths, filepath.Join(w.dir, e.Name()))
		}
	}
	return paths, nil
}

func (w *Watcher) work(ctx context.Context, queue <-chan string) {
	for path := range queue {
		if ctx.Err() != nil {
			continue
		}
		w.logger.Info("generating game", zap.String("photo", path))
		run, err := w.gen.GenerateFile(ctx, path, nil)
		if err != nil {
			w.logger.Error("generation failed", zap.String("photo", path), zap.Error(err))
		} else {
			w.logger.Info("game ready",
				zap.String("photo", path),
				zap.String("run", run.ID),
				zap.Int("issues", run.Issues.Total()))
		}
		w.onResult(path, run, err)
	}
}
