package policy

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 500 * time.Millisecond

// Watch reloads path into table whenever the file changes, until ctx is done.
// The parent directory is watched so editors that replace the file on save
// are picked up. A file that fails to parse, or that would change which
// types carry text, leaves the table untouched.
func Watch(ctx context.Context, path string, table *Table, log zerolog.Logger) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve policy path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch policy dir: %w", err)
	}

	go func() {
		defer watcher.Close()
		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != absPath {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, func() {
					next, err := Load(absPath)
					if err != nil {
						log.Warn().Err(err).Str("path", absPath).Msg("policy reload failed")
						return
					}
					if err := table.Compatible(next); err != nil {
						log.Warn().Err(err).Str("path", absPath).Msg("policy reload rejected")
						return
					}
					table.Replace(next)
					log.Info().Str("path", absPath).Int("types", len(next.Types())).Msg("policy reloaded")
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("policy watcher error")
			}
		}
	}()

	log.Info().Str("path", absPath).Msg("watching policy file")
	return nil
}
