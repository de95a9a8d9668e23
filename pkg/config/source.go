// pkg/config/source.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FWRECON_"

// ConfigSource loads values into koanf. Sources are applied lowest
// priority first:
//   - DefaultSource (10)
//   - FileSource (20)
//   - EnvSource (30)
//   - FlagSource (40)
type ConfigSource interface {
	Name() string
	Priority() int
	Load(k *koanf.Koanf) error
}

// DefaultSource provides the built-in defaults.
type DefaultSource struct{}

func (s *DefaultSource) Name() string  { return "defaults" }
func (s *DefaultSource) Priority() int { return 10 }

func (s *DefaultSource) Load(k *koanf.Koanf) error {
	if err := k.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil); err != nil {
		return fmt.Errorf("error loading defaults: %w", err)
	}
	return nil
}

// FileSource loads a YAML file. A missing or empty path is skipped.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string  { return "file:" + s.Path }
func (s *FileSource) Priority() int { return 20 }

func (s *FileSource) Load(k *koanf.Koanf) error {
	if s.Path == "" {
		return nil
	}
	if _, err := os.Stat(s.Path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("error checking config file %s: %w", s.Path, err)
	}
	if err := k.Load(file.Provider(s.Path), yaml.Parser()); err != nil {
		return fmt.Errorf("error loading config file %s: %w", s.Path, err)
	}
	return nil
}

// listKeys are split on commas when they come from the environment.
var listKeys = map[string]bool{
	"scan.profiles":    true,
	"engine.decoys":    true,
	"classifier.rules": true,
}

// EnvSource maps FWRECON_<SECTION>_<KEY> onto section.key, so
// FWRECON_SCAN_DEFAULT_PORTS sets scan.default_ports.
type EnvSource struct {
	Prefix string
}

func (s *EnvSource) Name() string  { return "env" }
func (s *EnvSource) Priority() int { return 30 }

func (s *EnvSource) Load(k *koanf.Koanf) error {
	prefix := s.Prefix
	if prefix == "" {
		prefix = EnvPrefix
	}

	provider := env.ProviderWithValue(prefix, ".", func(key, value string) (string, interface{}) {
		name := EnvKey(prefix, key)
		if name == "" {
			return "", nil
		}
		if listKeys[name] {
			return name, splitList(value)
		}
		return name, value
	})
	if err := k.Load(provider, nil); err != nil {
		return fmt.Errorf("error loading environment variables: %w", err)
	}
	return nil
}

// EnvKey converts an environment variable name to a config key. Variables
// without a section part map to "".
func EnvKey(prefix, key string) string {
	rest := strings.ToLower(strings.TrimPrefix(key, prefix))
	section, name, ok := strings.Cut(rest, "_")
	if !ok || section == "" || name == "" {
		return ""
	}
	return section + "." + name
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// flagKeys maps CLI flag names onto config keys. Flags not listed here are
// command-local and never reach the config.
var flagKeys = map[string]string{
	"log-level":     "log.level",
	"log-format":    "log.format",
	"log-file":      "log.file",
	"concurrency":   "scan.concurrency",
	"timeout":       "scan.timeout",
	"rate":          "scan.dispatch_rate",
	"ports-default": "scan.default_ports",
	"max-hosts":     "scan.max_hosts",
	"no-ping":       "scan.ping",
	"profiles":      "scan.profiles",
	"engine":        "engine.name",
	"nmap-binary":   "engine.binary",
	"sudo":          "engine.sudo",
	"nmap-args":     "engine.extra_args",
	"decoys":        "engine.decoys",
	"spoof-source":  "engine.spoof_source",
	"interface":     "engine.interface",
	"nameserver":    "dns.nameserver",
	"rules":         "classifier.rules",
	"output":        "output.format",
	"no-color":      "output.color",
	"no-save":       "output.save",
	"compress":      "output.compress",
	"metrics-file":  "metrics.textfile",
}

// FlagSource loads explicitly set command-line flags.
type FlagSource struct {
	Flags *pflag.FlagSet
	// Debug forces log.level to debug.
	Debug bool
}

func (s *FlagSource) Name() string  { return "flags" }
func (s *FlagSource) Priority() int { return 40 }

func (s *FlagSource) Load(k *koanf.Koanf) error {
	if s.Flags != nil {
		fs := s.Flags
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, flagValue(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return fmt.Errorf("error loading command-line flags: %w", err)
		}
	}
	if s.Debug {
		_ = k.Set("log.level", "debug")
	}
	return nil
}

// flagValue returns the typed value of f. Negated flags (--no-*) are
// inverted and --timeout is taken as seconds.
func flagValue(fs *pflag.FlagSet, f *pflag.Flag) interface{} {
	switch f.Value.Type() {
	case "bool":
		v, _ := fs.GetBool(f.Name)
		if strings.HasPrefix(f.Name, "no-") {
			return !v
		}
		return v
	case "int":
		v, _ := fs.GetInt(f.Name)
		if f.Name == "timeout" {
			return time.Duration(v) * time.Second
		}
		return v
	case "float64":
		v, _ := fs.GetFloat64(f.Name)
		return v
	case "stringSlice":
		v, _ := fs.GetStringSlice(f.Name)
		return v
	default:
		return f.Value.String()
	}
}

// DefaultSources returns the standard configuration sources.
func DefaultSources(configPath string, flags *pflag.FlagSet, debug bool) []ConfigSource {
	return []ConfigSource{
		&DefaultSource{},
		&FileSource{Path: configPath},
		&EnvSource{Prefix: EnvPrefix},
		&FlagSource{Flags: flags, Debug: debug},
	}
}
