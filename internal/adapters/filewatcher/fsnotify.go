// Package filewatcher reports changes to ledger files so the assistant can
// reload and reindex them. It implements ports.FileWatcher on fsnotify.
package filewatcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/0xcro3dile/ledgerrag-go/internal/domain/ports"
	"github.com/fsnotify/fsnotify"
)

// eventBuffer absorbs the burst a spreadsheet save produces.
const eventBuffer = 32

// FSNotifyWatcher watches a directory for ledger file changes.
type FSNotifyWatcher struct {
	watcher    *fsnotify.Watcher
	extensions map[string]struct{} // lowercased, with the leading dot
	logger     *slog.Logger
}

// NewFSNotifyWatcher creates a watcher for files with the given extensions,
// ".csv" when none are given. A nil logger uses slog.Default.
func NewFSNotifyWatcher(extensions []string, logger *slog.Logger) (*FSNotifyWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(extensions) == 0 {
		extensions = []string{".csv"}
	}

	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		set[strings.ToLower(ext)] = struct{}{}
	}
	return &FSNotifyWatcher{watcher: fw, extensions: set, logger: logger}, nil
}

// Watch reports ledger file events in dir until ctx is done or the watcher
// is stopped, then closes the returned channel.
func (w *FSNotifyWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}
	out := make(chan ports.FileEvent, eventBuffer)
	go w.forward(ctx, dir, out)
	return out, nil
}

func (w *FSNotifyWatcher) forward(ctx context.Context, dir string, out chan<- ports.FileEvent) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			ev, ok := w.translate(raw)
			if !ok {
				continue
			}
			w.logger.Debug("ledger file event", "path", ev.Path, "op", raw.Op.String())
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("ledger watch error", "dir", dir, "error", err)
		}
	}
}

// translate maps an fsnotify event on a ledger file to a port event.
// Chmod-only events and other file types are dropped. Spreadsheet tools
// often save by renaming over the ledger, so a rename reads as a removal
// followed by the create of the replacement.
func (w *FSNotifyWatcher) translate(raw fsnotify.Event) (ports.FileEvent, bool) {
	if !w.isLedgerFile(raw.Name) {
		return ports.FileEvent{}, false
	}
	ev := ports.FileEvent{Path: raw.Name}
	switch {
	case raw.Has(fsnotify.Create):
		ev.Operation = ports.FileCreated
	case raw.Has(fsnotify.Write):
		ev.Operation = ports.FileModified
	case raw.Has(fsnotify.Remove), raw.Has(fsnotify.Rename):
		ev.Operation = ports.FileDeleted
	default:
		return ports.FileEvent{}, false
	}
	return ev, true
}

func (w *FSNotifyWatcher) isLedgerFile(path string) bool {
	_, ok := w.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Stop releases the underlying watcher and ends any running Watch.
func (w *FSNotifyWatcher) Stop() error {
	return w.watcher.Close()
}
