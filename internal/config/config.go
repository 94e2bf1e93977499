// Package config loads the server configuration from YAML and supports
// hot-reloading it when the file changes on disk.
package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML structure.
type Config struct {
	ListenAddr   string     `yaml:"listen_addr"`
	DatabasePath string     `yaml:"database_path"`
	LogLevel     string     `yaml:"log_level"`
	Ingest       IngestConf `yaml:"ingest"`
	// AggregationConcurrency caps simultaneous insight/heatmap runs.
	AggregationConcurrency int `yaml:"aggregation_concurrency"`
}

// IngestConf holds ingestion limits.
type IngestConf struct {
	// MaxBatchSize rejects oversized batches as schema violations.
	// 0 disables the cap.
	MaxBatchSize int `yaml:"max_batch_size"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		ListenAddr:             "127.0.0.1:8123",
		DatabasePath:           "touchheat.db",
		LogLevel:               "info",
		Ingest:                 IngestConf{MaxBatchSize: 500},
		AggregationConcurrency: 4,
	}
}

// Loader reads a YAML config file and watches it for changes.
type Loader struct {
	path    string
	mu      sync.RWMutex
	current *Config
}

// NewLoader creates a Loader and performs the initial load. An empty path
// yields a loader that always serves defaults and cannot be watched.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	if path == "" {
		l.current = Default()
		return l, nil
	}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Config returns the current (latest) configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Watch starts a background goroutine that hot-reloads the config on file
// changes. Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	if l.path == "" {
		return nil, fmt.Errorf("config watcher: no config file to watch")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					cfg, err := l.load()
					if err != nil {
						// Keep serving the old config.
						continue
					}
					l.mu.Lock()
					l.current = cfg
					l.mu.Unlock()
				}
			case <-w.Errors:
				// Ignore watcher errors.
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

func (l *Loader) load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", l.path, err)
	}
	if cfg.AggregationConcurrency <= 0 {
		cfg.AggregationConcurrency = Default().AggregationConcurrency
	}
	return cfg, nil
}
