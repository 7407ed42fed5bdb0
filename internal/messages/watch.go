package messages

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the catalog at path whenever the file changes and hands each successfully
// parsed catalog to apply. It watches the parent directory so editors that replace the file
// are still seen. A file that fails to parse is logged and the previous catalog stays.
// Watch returns when ctx is done.
func Watch(ctx context.Context, path string, logger *log.Logger, apply func(*Catalog)) error {
	if logger == nil {
		logger = log.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	// Editors emit bursts of events; reload once things settle.
	const settle = 150 * time.Millisecond
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(settle)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Printf("watch %s: %v", path, err)
		case <-timer.C:
			c, err := Load(abs)
			if err != nil {
				logger.Printf("reload %s: %v", path, err)
				continue
			}
			apply(c)
			logger.Printf("reloaded %s (%d keys)", path, len(c.Keys()))
		}
	}
}
