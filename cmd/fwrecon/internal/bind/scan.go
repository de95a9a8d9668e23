package bind

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/vulntor/fwrecon/pkg/config"
	"github.com/vulntor/fwrecon/pkg/recon"
)

var validate = validator.New()

// ScanOptions holds everything the scan command needs for one run.
type ScanOptions struct {
	Params recon.Params

	Engine      string `validate:"oneof=nmap connect"`
	Ping        bool
	Output      string `validate:"oneof=table json yaml"`
	Save        bool
	Compress    bool
	MetricsFile string
	Progress    bool
	Rules       []string `validate:"dive,required"`
}

// BindScanOptions merges the positional target, the loaded configuration
// (which already carries file, env and flag overrides) and the
// command-local flags into ScanOptions.
//
// Flags read directly:
//   - --progress: stream progress events to stderr
//
// Everything else comes from cfg so that precedence is decided in one place.
func BindScanOptions(cmd *cobra.Command, args []string, cfg config.Config) (ScanOptions, error) {
	if len(args) != 1 {
		return ScanOptions{}, fmt.Errorf("expected exactly one target, got %d", len(args))
	}
	progress, _ := cmd.Flags().GetBool("progress")

	profiles := make([]string, 0, len(cfg.Scan.Profiles))
	for _, p := range cfg.Scan.Profiles {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			profiles = append(profiles, p)
		}
	}
	engine := strings.ToLower(cfg.Engine.Name)
	// connect can only answer SYN; anything else would fail every run.
	if len(profiles) == 0 && engine == "connect" {
		profiles = []string{"SYN"}
	}

	opts := ScanOptions{
		Params: recon.Params{
			Target:            strings.TrimSpace(args[0]),
			Profiles:          profiles,
			Concurrency:       cfg.Scan.Concurrency,
			Timeout:           cfg.Scan.Timeout,
			DiscoveryTimeout:  cfg.Scan.DiscoveryTimeout,
			HostTimeout:       cfg.Scan.HostTimeout,
			DispatchRate:      cfg.Scan.DispatchRate,
			RetryBackoff:      cfg.Scan.RetryBackoff,
			DefaultPorts:      cfg.Scan.DefaultPorts,
			MaxHosts:          cfg.Scan.MaxHosts,
			SkipHostDiscovery: !cfg.Scan.Ping,
		},
		Engine:      engine,
		Ping:        cfg.Scan.Ping,
		Output:      strings.ToLower(cfg.Output.Format),
		Save:        cfg.Output.Save,
		Compress:    cfg.Output.Compress,
		MetricsFile: cfg.Metrics.Textfile,
		Progress:    progress,
		Rules:       cfg.Classifier.Rules,
	}

	if err := validate.Struct(opts); err != nil {
		return opts, fmt.Errorf("invalid scan options: %w", err)
	}
	return opts, nil
}
