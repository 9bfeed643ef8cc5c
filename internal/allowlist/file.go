package allowlist

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"capture-orchestrator/internal/capture"
)

// fileRules is the on-disk YAML shape:
//
//	displays:
//	  - "display-1"
//	  - "display-2"
//	blocked_apps:
//	  - "Password Manager"
//
// An absent or empty displays list permits every display.
type fileRules struct {
	Displays    []string `yaml:"displays"`
	BlockedApps []string `yaml:"blocked_apps"`
}

// FileProvider is a capture.Allowlist backed by a YAML file, reloaded on
// filesystem change events. A malformed update keeps the previous rules in
// force; recording never loses its gate to a half-written file.
type FileProvider struct {
	*Static

	path    string
	log     *slog.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileProvider loads the rules file and begins watching its directory
// for changes. The directory is watched rather than the file itself so
// editors that rename-over the file keep the watch alive.
func NewFileProvider(path string, log *slog.Logger) (*FileProvider, error) {
	rules, err := loadRules(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("allowlist watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch allowlist dir: %w", err)
	}

	p := &FileProvider{
		Static:  NewStatic(rules),
		path:    path,
		log:     log,
		watcher: watcher,
		done:    make(chan struct{}),
	}
	go p.watch()
	return p, nil
}

// Close stops the file watcher. Rules loaded last remain in force.
func (p *FileProvider) Close() error {
	err := p.watcher.Close()
	<-p.done
	return err
}

func (p *FileProvider) watch() {
	defer close(p.done)
	for {
		select {
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(p.path) {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			p.reload()
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.log.Warn("allowlist watcher error", slog.String("error", err.Error()))
		}
	}
}

func (p *FileProvider) reload() {
	rules, err := loadRules(p.path)
	if err != nil {
		p.log.Warn("allowlist reload failed, keeping previous rules",
			slog.String("path", p.path),
			slog.String("error", err.Error()))
		return
	}
	p.Update(rules)
	p.log.Info("allowlist reloaded",
		slog.String("path", p.path),
		slog.Int("displays", len(rules.Displays)),
		slog.Int("blocked_apps", len(rules.BlockedApps)))
}

func loadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read allowlist: %w", err)
	}
	var fr fileRules
	if err := yaml.Unmarshal(data, &fr); err != nil {
		return Rules{}, fmt.Errorf("parse allowlist: %w", err)
	}

	rules := Rules{BlockedApps: make(map[string]bool, len(fr.BlockedApps))}
	if len(fr.Displays) > 0 {
		rules.Displays = make(map[capture.DisplayID]bool, len(fr.Displays))
		for _, id := range fr.Displays {
			rules.Displays[capture.DisplayID(id)] = true
		}
	}
	for _, app := range fr.BlockedApps {
		rules.BlockedApps[app] = true
	}
	return rules, nil
}
