package feed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const reloadDebounce = 250 * time.Millisecond

// Catalog holds the sources declared in a YAML sources file.
type Catalog struct {
	path     string
	log      zerolog.Logger
	validate func([]SourceConfig) error

	mu      sync.RWMutex
	sources []SourceConfig
}

func NewCatalog(path string, log zerolog.Logger) *Catalog {
	return &Catalog{
		path: path,
		log:  log.With().Str("component", "catalog").Str("path", path).Logger(),
	}
}

// SetValidator installs an extra check run on every load, before the new
// snapshot replaces the current one.
func (c *Catalog) SetValidator(fn func([]SourceConfig) error) {
	c.validate = fn
}

func (c *Catalog) Load() error {
	sources, err := c.parse()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sources = sources
	c.mu.Unlock()

	c.log.Debug().Int("sources", len(sources)).Msg("Sources file loaded")
	return nil
}

// Sources returns a copy of the current snapshot.
func (c *Catalog) Sources() []SourceConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.sources)
}

// Watch reloads the sources file whenever it changes until ctx is done.
// A reload that fails to parse or validate keeps the previous snapshot.
func (c *Catalog) Watch(ctx context.Context, onChange func([]SourceConfig)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	// Editors often replace files by rename, so watch the directory.
	dir := filepath.Dir(c.path)
	file := filepath.Base(c.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	timer := time.NewTimer(reloadDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(reloadDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.log.Warn().Err(err).Msg("Sources watch error")
		case <-timer.C:
			if err := c.Load(); err != nil {
				c.log.Warn().Err(err).Msg("Sources reload failed, keeping previous sources")
				continue
			}
			c.log.Info().Msg("Sources file reloaded")
			if onChange != nil {
				onChange(c.Sources())
			}
		}
	}
}

func (c *Catalog) parse() ([]SourceConfig, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i := range file.Sources {
		file.Sources[i].Kind = strings.ToLower(strings.TrimSpace(file.Sources[i].Kind))
		file.Sources[i].ID = strings.TrimSpace(file.Sources[i].ID)
	}

	if err := validateSources(file.Sources); err != nil {
		return nil, fmt.Errorf("invalid sources file %s: %w", c.path, err)
	}
	if c.validate != nil {
		if err := c.validate(file.Sources); err != nil {
			return nil, fmt.Errorf("invalid sources file %s: %w", c.path, err)
		}
	}

	return file.Sources, nil
}

func validateSources(sources []SourceConfig) error {
	for i, src := range sources {
		if src.Kind == "" {
			return fmt.Errorf("source at index %d: kind is required", i)
		}
		if src.ID == "" {
			return fmt.Errorf("source at index %d: id is required", i)
		}
		if src.Limit < 0 {
			return fmt.Errorf("source at index %d: limit must be non-negative", i)
		}

		for j, filter := range src.Filters {
			if !FilterFields[filter.Field] {
				return fmt.Errorf("source at index %d: invalid filter field at index %d: %s", i, j, filter.Field)
			}
			if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
				return fmt.Errorf("source at index %d: filter at index %d must have at least one include or exclude rule", i, j)
			}
		}
	}

	return nil
}
