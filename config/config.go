// Package config handles configuration persistence for an ADS client
// deployment: target/source AMS addressing, reconnect behavior, symbol
// preload, and debug logging.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigListenerID is a unique identifier for a config change listener.
type ConfigListenerID string

// TargetConfig describes the TwinCAT runtime to connect to.
type TargetConfig struct {
	Host     string `yaml:"host"`               // Required: IP or hostname of the target
	Port     int    `yaml:"port,omitempty"`     // TCP port, defaults to 48898
	NetID    string `yaml:"net_id,omitempty"`   // AMS NetID, defaults to "<host>.1.1"
	AmsPort  int    `yaml:"ams_port"`            // Required: target AMS port (e.g. 851 for TC3 PLC1)
}

// SourceConfig describes the AMS identity this client presents to the
// target. Left empty, the client derives one from its outbound local
// address.
type SourceConfig struct {
	NetID   string `yaml:"net_id,omitempty"`
	AmsPort int    `yaml:"ams_port,omitempty"`
}

// ReconnectConfig controls automatic reconnection after a connection drop.
type ReconnectConfig struct {
	Enabled      bool `yaml:"enabled"`
	IntervalMS   int  `yaml:"interval_ms,omitempty"` // defaults to 5000
}

// PreloadConfig controls which self-describing tables are fetched on
// connect (and refreshed on reconnect).
type PreloadConfig struct {
	Symbols   bool `yaml:"symbols"`
	DataTypes bool `yaml:"data_types"`
}

// DiscoveryConfig scopes an optional subnet probe used by discovery
// tooling; it has no bearing on an already-configured Target.
type DiscoveryConfig struct {
	CIDR        string        `yaml:"cidr,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Concurrency int           `yaml:"concurrency,omitempty"`
}

// DebugConfig controls the file-backed protocol trace sink.
type DebugConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"` // defaults to "ads-debug.log"
}

// Config holds the complete application configuration for an ADS client.
type Config struct {
	Target    TargetConfig    `yaml:"target"`
	Source    SourceConfig    `yaml:"source,omitempty"`
	Reconnect ReconnectConfig `yaml:"reconnect,omitempty"`
	Preload   PreloadConfig   `yaml:"preload,omitempty"`
	Discovery DiscoveryConfig `yaml:"discovery,omitempty"`
	Debug     DebugConfig     `yaml:"debug,omitempty"`
	Tags      []string        `yaml:"tags,omitempty"` // named tags to monitor on startup

	// dataMu protects all config fields against concurrent access.
	// Callers that modify config should Lock(), modify, then call UnlockAndSave().
	dataMu sync.Mutex

	listenersMu     sync.RWMutex
	changeListeners map[ConfigListenerID]func()
	listenerCounter uint64
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Reconnect: ReconnectConfig{
			Enabled:    true,
			IntervalMS: 5000,
		},
		Preload: PreloadConfig{
			Symbols:   true,
			DataTypes: true,
		},
		Debug: DebugConfig{Path: "ads-debug.log"},
		Discovery: DiscoveryConfig{
			Timeout:     500 * time.Millisecond,
			Concurrency: 20,
		},
	}
}

// DefaultPath returns the default configuration file path (~/.adsgo/config.yaml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".adsgo", "config.yaml")
}

// Load reads configuration from a YAML file, applying defaults for any
// field the file leaves unset. A missing file is not an error: Load
// returns DefaultConfig() in that case.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Reconnect.IntervalMS == 0 {
		cfg.Reconnect.IntervalMS = 5000
	}
	if cfg.Discovery.Timeout == 0 {
		cfg.Discovery.Timeout = 500 * time.Millisecond
	}
	if cfg.Discovery.Concurrency == 0 {
		cfg.Discovery.Concurrency = 20
	}

	return cfg, nil
}

// Validate checks the configuration for errors that Load's defaulting
// cannot repair.
func (c *Config) Validate() error {
	if c.Target.Host == "" {
		return fmt.Errorf("target.host is required")
	}
	if c.Target.AmsPort == 0 {
		return fmt.Errorf("target.ams_port is required")
	}
	if c.Target.AmsPort > 0xFFFF {
		return fmt.Errorf("target.ams_port out of range: %d", c.Target.AmsPort)
	}
	if c.Reconnect.IntervalMS < 0 {
		return fmt.Errorf("reconnect.interval_ms must not be negative")
	}
	return nil
}

// AddOnChangeListener registers a callback to be called when the config is saved.
// Returns an ID that can be used to remove the listener later.
func (c *Config) AddOnChangeListener(cb func()) ConfigListenerID {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	if c.changeListeners == nil {
		c.changeListeners = make(map[ConfigListenerID]func())
	}

	id := ConfigListenerID(fmt.Sprintf("listener-%d", atomic.AddUint64(&c.listenerCounter, 1)))
	c.changeListeners[id] = cb
	return id
}

// RemoveOnChangeListener removes a previously registered listener.
func (c *Config) RemoveOnChangeListener(id ConfigListenerID) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	delete(c.changeListeners, id)
}

func (c *Config) notifyChangeListeners() {
	c.listenersMu.RLock()
	listeners := make([]func(), 0, len(c.changeListeners))
	for _, cb := range c.changeListeners {
		listeners = append(listeners, cb)
	}
	c.listenersMu.RUnlock()

	for _, cb := range listeners {
		go cb()
	}
}

// Lock acquires the config data mutex for exclusive access.
// Use this before modifying config fields, then call UnlockAndSave.
func (c *Config) Lock() { c.dataMu.Lock() }

// Unlock releases the config data mutex without saving.
// Prefer UnlockAndSave when modifications were made.
func (c *Config) Unlock() { c.dataMu.Unlock() }

// Save acquires the lock, marshals, writes, and notifies.
// Use this when the caller does not already hold the lock.
func (c *Config) Save(path string) error {
	c.dataMu.Lock()
	return c.saveLocked(path)
}

// UnlockAndSave marshals, releases the lock, writes, and notifies.
// The caller must already hold the lock via Lock().
func (c *Config) UnlockAndSave(path string) error {
	return c.saveLocked(path)
}

func (c *Config) saveLocked(path string) error {
	data, err := yaml.Marshal(c)
	c.dataMu.Unlock()

	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}

	c.notifyChangeListeners()
	return nil
}
