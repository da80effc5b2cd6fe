package plugin

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/specialistvlad/opcalc/internal/ctxlog"
)

// Watch re-runs discovery whenever a manifest in dir is created or written.
// Bursts of events are debounced into one reload. onReload receives the
// result of every completed reload; it is never called after Watch returns.
// Watch blocks until ctx is cancelled.
func (d *Discoverer) Watch(ctx context.Context, dir string, onReload func(*Report, error)) error {
	logger := ctxlog.FromContext(ctx)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch plugin directory %s: %w", dir, err)
	}
	logger.Info("Watching plugin directory.", "dir", dir)

	// Reloads run one at a time on this goroutine. pending coalesces requests
	// that arrive while one is running.
	ctx, cancel := context.WithCancel(ctx)
	pending := make(chan struct{}, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-pending:
			}
			if ctx.Err() != nil {
				return
			}
			report, err := d.Discover(ctx, dir)
			if ctx.Err() != nil {
				return
			}
			if onReload != nil {
				onReload(report, err)
			}
		}
	}()
	request := func() {
		select {
		case pending <- struct{}{}:
		default:
		}
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
		cancel()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name := filepath.Base(event.Name)
			if !strings.HasSuffix(name, ManifestExtension) || IsInternal(name) {
				continue
			}
			logger.Debug("Plugin manifest changed.", "path", event.Name, "op", event.Op.String())

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(d.opts.Debounce, request)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("Plugin watcher error.", "error", err)
		}
	}
}
