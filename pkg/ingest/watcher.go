package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/bastiangx/suggestserve/pkg/item"
)

// Upserter receives loaded seed items.
type Upserter interface {
	Upsert(ctx context.Context, items []item.Item, refresh bool) ([]item.Item, error)
}

// Seed loads path and upserts its items with an index refresh.
// Items missing from the file are left in place.
func Seed(ctx context.Context, path string, sink Upserter) (int, error) {
	items, err := Load(path)
	if err != nil {
		return 0, err
	}
	stored, err := sink.Upsert(ctx, items, true)
	if err != nil {
		return len(stored), fmt.Errorf("seed %s: %w", path, err)
	}
	return len(stored), nil
}

// DefaultQuietPeriod is how long a seed file must stay unchanged before it is
// reloaded.
const DefaultQuietPeriod = 250 * time.Millisecond

// Watcher reloads a seed file when it changes. Bursts of events, such as an
// editor's write-then-rename, are coalesced into one reload.
type Watcher struct {
	path  string
	sink  Upserter
	quiet time.Duration
	fsw   *fsnotify.Watcher

	// reloaded is signalled after every reload attempt; used by tests
	reloaded chan error
}

// NewWatcher watches the directory holding path, so replacing the file
// through a rename is seen as well as in-place writes.
func NewWatcher(path string, sink Upserter, quiet time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{path: abs, sink: sink, quiet: quiet, fsw: fsw}, nil
}

// Run processes events until ctx ends or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	log.Infof("Watching seed file %s", w.path)

	timer := time.NewTimer(w.quiet)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			log.Debug("Seed file event", "op", ev.Op.String())
			timer.Reset(w.quiet)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Warnf("Seed watcher error: %v", err)

		case <-timer.C:
			err := w.reload(ctx)
			if w.reloaded != nil {
				select {
				case w.reloaded <- err:
				default:
				}
			}
		}
	}
}

func (w *Watcher) reload(ctx context.Context) error {
	n, err := Seed(ctx, w.path, w.sink)
	if err != nil {
		log.Errorf("Reloading seed file failed: %v", err)
		return err
	}
	log.Infof("Reloaded %d items from %s", n, w.path)
	return nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
