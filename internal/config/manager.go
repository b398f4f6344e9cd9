package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Manager watches a config file on disk and hot-reloads Config into an
// atomic value, notifying registered callbacks on every successful
// reload. Nothing in this module constructs a Manager: cmd/lobd loads
// its configuration once through LoadConfig.
type Manager struct {
	viper      *viper.Viper
	configPath string

	config atomic.Value // *Config

	watcher    *fsnotify.Watcher
	reloadChan chan struct{}

	callbacks []func(*Config)
	cbLock    sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a Manager watching configPath for changes,
// performing an initial load before returning.
func NewManager(configPath string) (*Manager, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		viper:      viper.New(),
		configPath: configPath,
		watcher:    watcher,
		reloadChan: make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
	}

	m.viper.SetConfigFile(configPath)
	m.viper.SetEnvPrefix("LOBD")
	m.viper.AutomaticEnv()

	if err := m.loadConfig(); err != nil {
		cancel()
		watcher.Close()
		return nil, err
	}

	if err := m.startWatcher(); err != nil {
		cancel()
		watcher.Close()
		return nil, err
	}

	return m, nil
}

func (m *Manager) loadConfig() error {
	if _, err := os.Stat(m.configPath); err == nil {
		if err := m.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	setDefaults(cfg)
	if err := m.viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	m.config.Store(cfg)
	m.notifyCallbacks(cfg)
	return nil
}

func (m *Manager) startWatcher() error {
	configDir := filepath.Dir(m.configPath)
	if err := m.watcher.Add(configDir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	m.wg.Add(1)
	go m.watchLoop()

	return nil
}

func (m *Manager) watchLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Name == m.configPath && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
				select {
				case m.reloadChan <- struct{}{}:
				default:
				}
			}
		case _, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
		case <-m.reloadChan:
			time.Sleep(100 * time.Millisecond)
			_ = m.loadConfig()
		}
	}
}

func (m *Manager) notifyCallbacks(cfg *Config) {
	m.cbLock.RLock()
	defer m.cbLock.RUnlock()

	for _, callback := range m.callbacks {
		go callback(cfg)
	}
}

// Current returns the most recently loaded configuration.
func (m *Manager) Current() *Config {
	return m.config.Load().(*Config)
}

// OnReload registers a callback invoked (in its own goroutine) after
// every successful reload.
func (m *Manager) OnReload(callback func(*Config)) {
	m.cbLock.Lock()
	defer m.cbLock.Unlock()

	m.callbacks = append(m.callbacks, callback)
}

// Close stops the watcher goroutine and releases the underlying
// fsnotify.Watcher.
func (m *Manager) Close() error {
	m.cancel()
	m.wg.Wait()
	return m.watcher.Close()
}
