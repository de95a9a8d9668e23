// pkg/config/types.go
package config

import "time"

// Config is the root configuration of the fwrecon CLI.
type Config struct {
	Log        LogConfig                         `description:"Logging configuration" koanf:"log"`
	Scan       ScanConfig                        `description:"Run orchestration" koanf:"scan"`
	Engine     EngineConfig                      `description:"Probe engine selection" koanf:"engine"`
	Ping       PingConfig                        `description:"ICMP host discovery" koanf:"ping"`
	DNS        DNSConfig                         `description:"Domain resolution" koanf:"dns"`
	Classifier ClassifierConfig                  `description:"Verdict rules" koanf:"classifier"`
	Output     OutputConfig                      `description:"Report rendering and persistence" koanf:"output"`
	Metrics    MetricsConfig                     `description:"Prometheus textfile export" koanf:"metrics"`
	Profiles   map[string]map[string]interface{} `description:"Per-profile option overrides" koanf:"profiles"`
}

// LogConfig holds logging related configuration.
type LogConfig struct {
	Level  string `description:"Log level: trace|debug|info|warn|error" koanf:"level" validate:"omitempty,oneof=trace debug info warn error fatal panic disabled"`
	Format string `description:"Log format: text|json" koanf:"format" validate:"omitempty,oneof=text json"`
	File   string `description:"Log file path" koanf:"file"`
}

// ScanConfig tunes a single run.
type ScanConfig struct {
	Concurrency      int           `description:"Parallel stealth techniques" koanf:"concurrency" validate:"min=1,max=64"`
	Timeout          time.Duration `description:"Per-technique timeout" koanf:"timeout" validate:"gte=0"`
	DiscoveryTimeout time.Duration `description:"Port discovery timeout" koanf:"discovery_timeout" validate:"gte=0"`
	HostTimeout      time.Duration `description:"Host discovery timeout" koanf:"host_timeout" validate:"gte=0"`
	DispatchRate     float64       `description:"Technique starts per second, 0 is unlimited" koanf:"dispatch_rate" validate:"gte=0"`
	RetryBackoff     time.Duration `description:"Initial backoff between timeout retries" koanf:"retry_backoff" validate:"gte=0"`
	DefaultPorts     string        `description:"Fallback port range" koanf:"default_ports" validate:"required"`
	MaxHosts         int           `description:"Cap on CIDR expansion, 0 keeps only the hard ceiling" koanf:"max_hosts" validate:"gte=0"`
	Ping             bool          `description:"Run ICMP host discovery" koanf:"ping"`
	Profiles         []string      `description:"Techniques to run, empty selects defaults" koanf:"profiles"`
}

// EngineConfig selects and configures the probe engine.
type EngineConfig struct {
	Name           string        `description:"Engine: nmap|connect" koanf:"name" validate:"oneof=nmap connect"`
	Binary         string        `description:"nmap binary" koanf:"binary"`
	Sudo           bool          `description:"Run nmap through sudo -n" koanf:"sudo"`
	MinVersion     string        `description:"Required nmap version constraint" koanf:"min_version"`
	DiscoveryArgs  string        `description:"Arguments for the discovery pass" koanf:"discovery_args"`
	ExtraArgs      string        `description:"Arguments appended to every technique" koanf:"extra_args"`
	Decoys         []string      `description:"nmap decoys: addresses, ME or RND:n" koanf:"decoys" validate:"dive,required"`
	SpoofSource    string        `description:"Spoofed source address for techniques" koanf:"spoof_source" validate:"omitempty,ip"`
	Interface      string        `description:"Network interface for techniques" koanf:"interface" validate:"required_with=SpoofSource"`
	ConnectTimeout time.Duration `description:"Dial timeout for the connect engine" koanf:"connect_timeout" validate:"gte=0"`
}

// PingConfig configures the ICMP sweep.
type PingConfig struct {
	Count       int           `koanf:"count" validate:"min=1"`
	Interval    time.Duration `koanf:"interval" validate:"gte=0"`
	Timeout     time.Duration `koanf:"timeout" validate:"gte=0"`
	Privileged  bool          `koanf:"privileged"`
	Concurrency int           `koanf:"concurrency" validate:"min=1"`
}

// DNSConfig configures domain resolution. An empty nameserver uses the system resolver config.
type DNSConfig struct {
	Nameserver string        `koanf:"nameserver"`
	Timeout    time.Duration `koanf:"timeout" validate:"gte=0"`
}

// ClassifierConfig orders the verdict rules.
type ClassifierConfig struct {
	Rules []string `koanf:"rules"`
}

// OutputConfig controls rendering and report persistence.
type OutputConfig struct {
	Format   string `koanf:"format" validate:"oneof=table json yaml"`
	Color    bool   `koanf:"color"`
	Save     bool   `koanf:"save"`
	Compress bool   `koanf:"compress"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}
