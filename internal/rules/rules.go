// Package rules serves the rendered rules page, optionally backed by a file
// that is re-rendered whenever it changes on disk.
package rules

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ninechan-dev/ninechan/shared/logger"
)

//go:embed default_rules.md
var defaultRules string

type Renderer interface {
	Render(source string) (string, error)
}

type Source struct {
	renderer Renderer
	path     string

	mu       sync.RWMutex
	html     string
	onReload func()
}

// New renders the built-in rules, or the file at path when path is set.
func New(renderer Renderer, path string) (*Source, error) {
	s := &Source{renderer: renderer, path: path}
	if path == "" {
		if err := s.set(defaultRules); err != nil {
			return nil, fmt.Errorf("render default rules: %w", err)
		}
		return s, nil
	}
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// HTML returns the last successfully rendered rules.
func (s *Source) HTML() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.html
}

// OnReload registers fn to run after each successful reload by Watch.
func (s *Source) OnReload(fn func()) {
	s.mu.Lock()
	s.onReload = fn
	s.mu.Unlock()
}

func (s *Source) set(source string) error {
	rendered, err := s.renderer.Render(source)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.html = rendered
	s.mu.Unlock()
	return nil
}

func (s *Source) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read rules file: %w", err)
	}
	if err := s.set(string(data)); err != nil {
		return fmt.Errorf("render rules file %s: %w", s.path, err)
	}
	return nil
}

// Watch re-renders the rules file on every write until ctx is done. The
// directory is watched so editors that replace the file are seen too. A
// failed reload keeps the previous rules. Without a file it returns at once.
func (s *Source) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rules watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", s.path, err)
	}
	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := s.reload(); err != nil {
				logger.Log.Warn("rules reload failed", "path", s.path, "error", err)
				continue
			}
			logger.Log.Info("rules reloaded", "path", s.path)
			s.mu.RLock()
			hook := s.onReload
			s.mu.RUnlock()
			if hook != nil {
				hook()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Log.Warn("rules watcher error", "error", err)
		}
	}
}
