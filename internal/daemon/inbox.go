package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceDefault is how long the inbox waits after the last create event
// before handing packages over.
const debounceDefault = 300 * time.Millisecond

// InboxWatcher watches a directory for new package files.
// Copies should be written under a partial name and renamed into place.
type InboxWatcher struct {
	inbox    string
	handler  func(path string)
	debounce time.Duration
	logger   *zap.Logger
}

// NewInboxWatcher creates a watcher for the inbox directory.
func NewInboxWatcher(inbox string, handler func(path string), logger *zap.Logger) *InboxWatcher {
	return &InboxWatcher{
		inbox:    inbox,
		handler:  handler,
		debounce: debounceDefault,
		logger:   logger,
	}
}

// Run watches the inbox until ctx is cancelled. The directory is created if
// missing.
func (w *InboxWatcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.inbox, 0755); err != nil {
		return fmt.Errorf("failed to create inbox: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create inbox watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.inbox); err != nil {
		return fmt.Errorf("failed to watch inbox: %w", err)
	}
	w.logger.Info("watching package inbox", zap.String("dir", w.inbox))

	ready := make(map[string]bool)
	flush := func() {
		batch := make([]string, 0, len(ready))
		for p := range ready {
			batch = append(batch, p)
		}
		ready = make(map[string]bool)
		sort.Strings(batch)
		for _, p := range batch {
			w.handler(p)
		}
	}

	// One timer for all pending files, started by the first event.
	debounceTimer := time.NewTimer(w.debounce)
	debounceTimer.Stop()
	defer debounceTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-debounceTimer.C:
			flush()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) || !isPackageFile(event.Name) {
				continue
			}
			ready[event.Name] = true

			if !debounceTimer.Stop() {
				select {
				case <-debounceTimer.C:
				default:
				}
			}
			debounceTimer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("inbox watcher error", zap.Error(err))
		}
	}
}

// ScanExisting hands over package files already present in the inbox.
// A missing inbox is not an error.
func ScanExisting(inbox string, handler func(path string)) error {
	entries, err := os.ReadDir(inbox)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(inbox, e.Name())
		if isPackageFile(path) {
			handler(path)
		}
	}
	return nil
}

// isPackageFile accepts .apk files, not partial copies.
func isPackageFile(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, ".apk") && !strings.HasPrefix(name, ".")
}
