// SPDX-License-Identifier: MIT

package dialogue

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/digimedia-pe/wagate/internal/log"
)

// Watcher hot-reloads a flow file into an engine. A replacement graph that
// fails validation is rejected and the running graph kept.
type Watcher struct {
	path   string
	engine *Engine
	logger zerolog.Logger
}

// NewWatcher creates a watcher for the flow file at path.
func NewWatcher(path string, engine *Engine) *Watcher {
	return &Watcher{
		path:   path,
		engine: engine,
		logger: log.WithComponent("dialogue-watcher"),
	}
}

// Run watches the flow file until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("dialogue: create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(w.path); err != nil {
		return fmt.Errorf("dialogue: watch flow file: %w", err)
	}
	w.logger.Info().Str("path", w.path).Msg("watching flow file for changes")

	// Debounce so editors that write in several bursts reload once.
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, w.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("flow watcher error")
		}
	}
}

func (w *Watcher) reload() {
	flow, err := LoadFile(w.path)
	if err != nil {
		w.logger.Error().Err(err).Str("path", w.path).Msg("flow reload rejected, keeping running graph")
		return
	}
	w.engine.Reload(flow)
}
