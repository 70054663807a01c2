package pages

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the page list at path whenever it changes and passes the new pages to
// onChange. The parent directory is watched so editors that replace the file are seen.
// An unreadable or invalid file is logged and the previous list stays in effect.
func Watch(ctx context.Context, path string, onChange func([]Page)) error {
	if path == "" {
		return fmt.Errorf("no page list file to watch")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer w.Close()

		var reload <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				reload = time.After(reloadDebounce)
			case <-reload:
				reload = nil
				pages, err := Load(abs)
				if err != nil {
					log.Printf("Keeping previous page list: %v", err)
					continue
				}
				log.Printf("Page list reloaded: %d pages", len(pages))
				onChange(pages)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Printf("Page list watcher error: %v", err)
			}
		}
	}()
	return nil
}
