package ruleset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	yaml "gopkg.in/yaml.v2"

	"github.com/casbin/caswaf/waf"
)

// fileConfig is the on-disk YAML document shape.
type fileConfig struct {
	Rules []*waf.Rule `yaml:"rules"`
	Sites []*waf.Site `yaml:"sites"`
}

// FileStore is a waf.ConfigStore backed by one YAML file. Reload swaps the
// full content in with a single generation bump; Watch does so automatically
// on file changes.
type FileStore struct {
	*MemStore
	logger zerolog.Logger
	path   string
}

// NewFileStore loads the config file at path. The initial load must succeed;
// later reload failures keep the previous content live.
func NewFileStore(logger zerolog.Logger, path string) (*FileStore, error) {
	s := &FileStore{MemStore: NewMemStore(), logger: logger, path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the config file and replaces the store content.
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var cfg fileConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("malformed config file %s: %v", s.path, err)
	}

	s.Replace(cfg.Rules, cfg.Sites)
	return nil
}

// Watch reloads the store whenever the config file changes, until ctx is
// done. A malformed file is logged and skipped.
func (s *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory rather than the file; editors and config
	// management tools often replace the file by rename.
	if err = watcher.Add(filepath.Dir(s.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if rerr := s.Reload(); rerr != nil {
				s.logger.Warn().Err(rerr).Msg("Config reload failed, keeping previous config")
				continue
			}
			s.logger.Info().Uint64("generation", s.Generation()).Msg("Config reloaded")
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn().Err(werr).Msg("Config watcher error")
		}
	}
}
