package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/fwrecon/cmd/fwrecon/internal/bind"
	"github.com/vulntor/fwrecon/cmd/fwrecon/internal/format"
	"github.com/vulntor/fwrecon/pkg/appctx"
	"github.com/vulntor/fwrecon/pkg/config"
	"github.com/vulntor/fwrecon/pkg/discovery"
	"github.com/vulntor/fwrecon/pkg/portset"
	"github.com/vulntor/fwrecon/pkg/probe"
	"github.com/vulntor/fwrecon/pkg/probe/connect"
	"github.com/vulntor/fwrecon/pkg/probe/nmap"
	"github.com/vulntor/fwrecon/pkg/profile"
	"github.com/vulntor/fwrecon/pkg/recon"
	"github.com/vulntor/fwrecon/pkg/target"
	"github.com/vulntor/fwrecon/pkg/workspace"
)

func newScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <target>",
		Short: "Discover ports on a target and classify how they are filtered",
		Long: `Runs host discovery, port discovery and the selected scan techniques against
a single host, CIDR block or domain, then classifies every discovered port.

Exit codes: 0 success, 1 run failure, 2 invalid target or profile,
3 probe capability unavailable.`,
		Example: `  fwrecon scan 192.168.1.10
  fwrecon scan 10.0.0.0/24 --profiles SYN,ACK,FIN -o json
  fwrecon scan example.com --engine connect --no-ping`,
		GroupID: "scan",
		Args:    cobra.ArbitraryArgs,
		RunE:    runScanCommand,
	}

	flags := cmd.Flags()
	flags.Int("concurrency", 3, "Parallel stealth techniques")
	flags.Int("timeout", 300, "Per-technique timeout in seconds")
	flags.StringSlice("profiles", nil, "Scan techniques to run (e.g. SYN,ACK,UDP); empty selects the defaults")
	flags.String("ports-default", "1-1000", "Ports to probe when discovery finds none")
	flags.Bool("no-ping", false, "Skip ICMP host discovery")
	flags.String("engine", "nmap", "Probe engine: nmap or connect")
	flags.Bool("no-save", false, "Do not persist the report in the workspace")
	flags.Bool("compress", false, "Compress persisted reports with zstd")
	flags.String("metrics-file", "", "Write Prometheus metrics to this textfile")
	flags.Bool("progress", false, "Print live progress updates during the scan")
	flags.Float64("rate", 0, "Technique starts per second, 0 is unlimited")
	flags.Int("max-hosts", 4096, "Refuse CIDR targets larger than this; 0 leaves only the 65536-host ceiling")
	flags.Bool("sudo", false, "Run nmap through sudo -n for raw-socket techniques")
	flags.String("nmap-binary", "nmap", "Path to the nmap binary")
	flags.String("nmap-args", "", "Extra arguments appended to every nmap technique")
	flags.StringSlice("decoys", nil, "nmap decoys for every technique (e.g. RND:5,ME or 10.0.0.7,ME)")
	flags.String("spoof-source", "", "Send technique packets from this source address (requires --interface)")
	flags.String("interface", "", "Network interface nmap sends from")
	flags.String("nameserver", "", "DNS server for domain targets (default from /etc/resolv.conf)")
	flags.StringSlice("rules", nil, "Classification rule order")

	return cmd
}

func runScanCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	mgr, ok := appctx.Config(ctx)
	if !ok {
		mgr = config.NewManager()
	}
	cfg := mgr.Get()
	formatter := format.FromCommandWithMode(cmd, cfg.Output.Format)

	if len(args) == 0 {
		return fail(formatter, recon.NewInvalidTargetError("", nil))
	}

	logger := log.With().Str("command", "scan").Logger()
	logger.Info().Strs("targets", args).Msg("Initializing scan command")

	opts, err := bind.BindScanOptions(cmd, args, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to bind scan options")
		return fail(formatter, err)
	}

	svc, err := buildService(cfg, opts)
	if err != nil {
		return fail(formatter, err)
	}

	metrics := recon.NewMetrics()
	svc = svc.WithMetrics(metrics)
	if opts.Progress {
		svc = svc.WithProgressSink(newProgressLogger(cmd.ErrOrStderr()))
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := svc.Run(runCtx, opts.Params)
	writeMetrics(ctx, opts, metrics, logger)
	if runErr != nil {
		logger.Error().Err(runErr).Msg("Scan execution failed")
		return fail(formatter, runErr)
	}

	if err := formatter.PrintReport(res); err != nil {
		return err
	}

	if opts.Save {
		if store, ok := appctx.ReportStore(ctx); ok {
			path, err := store.Save(ctx, res)
			if err != nil {
				logger.Warn().Err(err).Msg("Failed to persist report")
			} else {
				_ = formatter.PrintSummary(fmt.Sprintf("Report saved to %s", path))
			}
		}
	}
	return nil
}

// buildService wires the engine, discoverers, resolver, profile catalog and
// classifier selected by cfg.
func buildService(cfg config.Config, opts bind.ScanOptions) (*recon.Service, error) {
	engine, discoverer, err := newEngine(cfg, opts)
	if err != nil {
		return nil, err
	}

	registry, err := profile.NewRegistry().WithOverrides(cfg.Profiles)
	if err != nil {
		return nil, recon.WithErrorCode(err, recon.ErrorCodeInvalidProfile)
	}
	classifier, err := recon.NewClassifier(opts.Rules)
	if err != nil {
		return nil, err
	}

	svc := recon.NewService(engine, discoverer).
		WithRegistry(registry).
		WithClassifier(classifier)

	if opts.Ping {
		svc = svc.WithHostDiscoverer(discovery.NewPingDiscoverer(discovery.PingConfig{
			Count:         cfg.Ping.Count,
			Interval:      cfg.Ping.Interval,
			PacketTimeout: cfg.Ping.Timeout,
			Privileged:    cfg.Ping.Privileged,
			Concurrency:   cfg.Ping.Concurrency,
			MaxHosts:      opts.Params.MaxHosts,
		}))
	}

	resolver, err := target.NewDNSResolver(cfg.DNS.Nameserver, cfg.DNS.Timeout)
	if err != nil {
		// Domain targets are then handed to the engine unresolved.
		log.Warn().Err(err).Msg("DNS resolver unavailable")
	} else {
		svc = svc.WithResolver(resolver)
	}
	return svc, nil
}

func newEngine(cfg config.Config, opts bind.ScanOptions) (probe.Engine, probe.Discoverer, error) {
	switch opts.Engine {
	case "connect":
		ports, err := portset.ParseSpec(opts.Params.DefaultPorts)
		if err != nil {
			return nil, nil, fmt.Errorf("parse default ports: %w", err)
		}
		e := connect.New(connect.Config{
			Ports:       ports,
			DialTimeout: cfg.Engine.ConnectTimeout,
			MaxHosts:    opts.Params.MaxHosts,
		})
		return e, e, nil
	default:
		e, err := nmap.New(nmap.Config{
			Binary:        cfg.Engine.Binary,
			Sudo:          cfg.Engine.Sudo,
			MinVersion:    cfg.Engine.MinVersion,
			DiscoveryArgs: cfg.Engine.DiscoveryArgs,
			ExtraArgs:     cfg.Engine.ExtraArgs,
			Decoys:        cfg.Engine.Decoys,
			SpoofSource:   cfg.Engine.SpoofSource,
			Interface:     cfg.Engine.Interface,
		})
		if err != nil {
			return nil, nil, err
		}
		return e, e, nil
	}
}

// writeMetrics exports the run metrics to the configured textfile, or to
// the workspace metrics directory when only the workspace is available.
func writeMetrics(ctx context.Context, opts bind.ScanOptions, m *recon.Metrics, logger zerolog.Logger) {
	path := opts.MetricsFile
	if path == "" {
		root, ok := workspace.FromContext(ctx)
		if !ok {
			return
		}
		path = workspace.Path(root, workspace.MetricsDir, "fwrecon.prom")
	}
	if err := m.WriteTextfile(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Failed to write metrics textfile")
	}
}

// fail prints the failure summary and returns err so main can map it to an
// exit code.
func fail(formatter format.Formatter, err error) error {
	_ = formatter.PrintTotalFailureSummary("scan", err, recon.ErrorCode(err))
	return &reportedError{err: err}
}
