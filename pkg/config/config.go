// pkg/config/config.go
package config

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
)

var validate = validator.New()

// Manager loads layered configuration and holds the merged result.
type Manager struct {
	k             *koanf.Koanf
	currentConfig Config
	sources       []string
	mu            sync.RWMutex
}

// NewManager returns a manager holding the defaults until Load is called.
func NewManager() *Manager {
	return &Manager{
		k:             koanf.New("."),
		currentConfig: DefaultConfig(),
	}
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "error",
			Format: "text",
		},
		Scan: ScanConfig{
			Concurrency:      3,
			Timeout:          5 * time.Minute,
			DiscoveryTimeout: 2 * time.Minute,
			HostTimeout:      30 * time.Second,
			RetryBackoff:     2 * time.Second,
			DefaultPorts:     "1-1000",
			MaxHosts:         4096,
			Ping:             true,
		},
		Engine: EngineConfig{
			Name:           "nmap",
			Binary:         "nmap",
			MinVersion:     ">= 7.0",
			DiscoveryArgs:  "-T4 -F --open",
			ConnectTimeout: time.Second,
		},
		Ping: PingConfig{
			Count:       1,
			Interval:    time.Second,
			Timeout:     time.Second,
			Concurrency: 50,
		},
		DNS: DNSConfig{
			Timeout: 5 * time.Second,
		},
		Output: OutputConfig{
			Format: "table",
			Color:  true,
			Save:   true,
		},
	}
}

// DefaultConfigAsMap flattens DefaultConfig for the confmap provider so
// every key exists before files, env and flags are layered on top.
func DefaultConfigAsMap() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		"scan.concurrency":       def.Scan.Concurrency,
		"scan.timeout":           def.Scan.Timeout,
		"scan.discovery_timeout": def.Scan.DiscoveryTimeout,
		"scan.host_timeout":      def.Scan.HostTimeout,
		"scan.dispatch_rate":     def.Scan.DispatchRate,
		"scan.retry_backoff":     def.Scan.RetryBackoff,
		"scan.default_ports":     def.Scan.DefaultPorts,
		"scan.max_hosts":         def.Scan.MaxHosts,
		"scan.ping":              def.Scan.Ping,
		"scan.profiles":          []string{},

		"engine.name":            def.Engine.Name,
		"engine.binary":          def.Engine.Binary,
		"engine.sudo":            def.Engine.Sudo,
		"engine.min_version":     def.Engine.MinVersion,
		"engine.discovery_args":  def.Engine.DiscoveryArgs,
		"engine.extra_args":      def.Engine.ExtraArgs,
		"engine.decoys":          []string{},
		"engine.spoof_source":    def.Engine.SpoofSource,
		"engine.interface":       def.Engine.Interface,
		"engine.connect_timeout": def.Engine.ConnectTimeout,

		"ping.count":       def.Ping.Count,
		"ping.interval":    def.Ping.Interval,
		"ping.timeout":     def.Ping.Timeout,
		"ping.privileged":  def.Ping.Privileged,
		"ping.concurrency": def.Ping.Concurrency,

		"dns.nameserver": def.DNS.Nameserver,
		"dns.timeout":    def.DNS.Timeout,

		"classifier.rules": []string{},

		"output.format":   def.Output.Format,
		"output.color":    def.Output.Color,
		"output.save":     def.Output.Save,
		"output.compress": def.Output.Compress,

		"metrics.textfile": def.Metrics.Textfile,
	}
}

// Load applies sources in priority order, unmarshals and validates the
// merged configuration. On error the previous configuration is kept.
func (m *Manager) Load(sources ...ConfigSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := append([]ConfigSource(nil), sources...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	k := koanf.New(".")
	names := make([]string, 0, len(ordered))
	for _, src := range ordered {
		if err := src.Load(k); err != nil {
			return fmt.Errorf("config source %s: %w", src.Name(), err)
		}
		names = append(names, src.Name())
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	m.k = k
	m.currentConfig = cfg
	m.sources = names
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentConfig
}

// Sources returns the names of the sources applied by the last Load.
func (m *Manager) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.sources...)
}

// Koanf exposes the merged key space, e.g. for "config show" style dumps.
func (m *Manager) Koanf() *koanf.Koanf {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.k
}
