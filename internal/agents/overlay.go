package agents

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/helix-collective/z88/internal/core"
	"github.com/helix-collective/z88/internal/fsutil"
	"github.com/helix-collective/z88/internal/logging"
)

// presetsFile is the on-disk overlay format.
type presetsFile struct {
	Presets []Preset `yaml:"presets"`
}

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 150 * time.Millisecond

// maxPresetsFileBytes bounds the overlay file.
const maxPresetsFileBytes = 1 << 20

// ParsePresets decodes and validates an overlay document.
func ParsePresets(data []byte) ([]Preset, error) {
	var f presetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing presets: %w", err)
	}

	seen := make(map[string]bool, len(f.Presets))
	for i, p := range f.Presets {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("preset %d: id is required", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("preset %s: duplicate id", p.ID)
		}
		seen[p.ID] = true
		if p.Name == "" {
			f.Presets[i].Name = p.ID
		}
		if len(p.Agents) == 0 {
			return nil, fmt.Errorf("preset %s: at least one agent is required", p.ID)
		}
		for agentID, prov := range p.ProviderOverrides {
			if !prov.Valid() {
				return nil, fmt.Errorf("preset %s: agent %s: unsupported provider %q", p.ID, agentID, prov)
			}
		}
		for agentID, t := range p.TemperatureOverrides {
			if t < 0 || t > 1 {
				return nil, fmt.Errorf("preset %s: agent %s: temperature %.2f outside [0,1]", p.ID, agentID, t)
			}
		}
	}
	return f.Presets, nil
}

// LoadFile replaces the overlay with the presets in path.
func (r *Registry) LoadFile(path string) error {
	data, err := fsutil.ReadFileScoped(path, maxPresetsFileBytes)
	if err != nil {
		return fmt.Errorf("reading presets file: %w", err)
	}
	presets, err := ParsePresets(data)
	if err != nil {
		return core.ErrValidation(core.CodeInvalidConfig, err.Error()).WithCause(err)
	}
	r.SetOverlay(presets)
	return nil
}

// Watch reloads path whenever it changes until ctx is done. The parent
// directory is watched so atomic rename-on-save is seen. A file that
// fails to parse leaves the previous overlay in place.
func (r *Registry) Watch(ctx context.Context, path string, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	logger.Debug("watching presets file", "path", abs)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if err := r.LoadFile(abs); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					continue
				}
				logger.Warn("presets reload failed", "path", abs, "error", err)
				continue
			}
			logger.Info("presets reloaded", "path", abs, "count", len(r.Presets()))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("presets watcher error", "error", err)
		}
	}
}
