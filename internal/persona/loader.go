package persona

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// LoadDir reads every *.yaml / *.yml file in dir into agents. Each file
// holds one agent definition.
func LoadDir(dir string) ([]*Agent, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("persona: read dir %s: %w", dir, err)
	}

	var agents []*Agent
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		a, err := loadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}

func loadFile(path string) (*Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("persona: read %s: %w", path, err)
	}
	var a Agent
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("persona: parse %s: %w", path, err)
	}
	if a.ID == "" {
		return nil, fmt.Errorf("persona: %s: missing agent id", path)
	}
	if a.DisplayName == "" {
		return nil, fmt.Errorf("persona: %s: missing display_name", path)
	}
	return &a, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// Watcher hot-reloads a registry when persona files change on disk.
type Watcher struct {
	dir      string
	registry *Registry
	logger   *slog.Logger
	fsw      *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher loads dir into registry and begins watching it for changes.
func NewWatcher(dir string, registry *Registry, logger *slog.Logger) (*Watcher, error) {
	agents, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	registry.Replace(agents)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("persona: watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("persona: watch %s: %w", dir, err)
	}

	w := &Watcher{dir: dir, registry: registry, logger: logger, fsw: fsw, done: make(chan struct{})}
	go w.run()
	return w, nil
}

// run reloads the whole directory on any relevant event. A full reload is
// simpler than tracking per-file state and the directory is small.
func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isYAML(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			agents, err := LoadDir(w.dir)
			if err != nil {
				w.logger.Warn("persona reload failed, keeping previous set", "error", err)
				continue
			}
			w.registry.Replace(agents)
			w.logger.Info("personas reloaded", "count", len(agents), "trigger", event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("persona watcher error", "error", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
