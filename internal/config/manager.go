package config

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const defaultWatchInterval = 3 * time.Second

// Manager holds the live config. Readers call Get on every use, so a reload
// takes effect without restarting components.
type Manager struct {
	path string
	cfg  atomic.Pointer[Config]

	mu    sync.Mutex
	stamp fileStamp
}

type fileStamp struct {
	mod  int64
	size int64
}

func stampOf(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{mod: info.ModTime().UnixNano(), size: info.Size()}, nil
}

func NewManager(path string) (*Manager, error) {
	m := &Manager{path: path}
	if _, err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config. Reload and Watch are no-ops
// without a backing file.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if cfg := m.cfg.Load(); cfg != nil {
		return cfg
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

// Reload reads the file again. The current config stays in place when the
// new one fails to load.
func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return m.Get(), nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stamp, err := stampOf(m.path)
	if err != nil {
		return nil, err
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	m.stamp = stamp
	return cfg, nil
}

func (m *Manager) Changed() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	stamp, err := stampOf(m.path)
	if err != nil {
		return false, err
	}
	return stamp != m.loadedStamp(), nil
}

func (m *Manager) loadedStamp() fileStamp {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stamp
}

// Watch polls the file until ctx is done and calls onReload with each new
// config. A version that fails to load is reported once through onError and
// skipped until the file changes again.
func (m *Manager) Watch(ctx context.Context, interval time.Duration, onReload func(*Config), onError func(error)) {
	if m.path == "" {
		return
	}
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var rejected fileStamp
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		stamp, err := stampOf(m.path)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			continue
		}
		if stamp == m.loadedStamp() || stamp == rejected {
			continue
		}
		cfg, err := m.Reload()
		if err != nil {
			rejected = stamp
			if onError != nil {
				onError(err)
			}
			continue
		}
		rejected = fileStamp{}
		if onReload != nil {
			onReload(cfg)
		}
	}
}
