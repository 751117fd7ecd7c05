package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/trafficguard/internal/capture"
	"firestige.xyz/trafficguard/internal/config"
	"firestige.xyz/trafficguard/internal/daemon"
)

var (
	replayEnforce bool
	replayMetrics bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <file.pcap>...",
	Short: "Classify packets from capture files",
	Long: `Run pcap files through the same pipeline as live capture and exit at the end.
Enforcement uses the dry-run backend unless --enforce is given.

Examples:
  trafficguard replay trace.pcap
  trafficguard replay --enforce -c config.yml a.pcap b.pcap`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runReplay(ctx, cfg, args, cmd.OutOrStdout())
	},
}

func runReplay(ctx context.Context, cfg *config.GlobalConfig, files []string, out io.Writer) error {
	if !replayEnforce {
		cfg.Enforce.Backend = config.BackendDryRun
	}
	if !replayMetrics {
		cfg.Metrics.Enabled = false
	}
	// A replay must not clobber a running daemon's PID file.
	cfg.PIDFile = ""

	d := daemon.NewWithConfig(cfg, configFile,
		daemon.WithOpener(capture.FileOpener),
		daemon.WithInterfaces(files...),
		daemon.WithExitWhenCaptureEnds(),
	)
	if err := d.Start(ctx); err != nil {
		d.Stop()
		return err
	}
	if err := d.Run(ctx); err != nil {
		return err
	}

	for _, st := range d.Supervisor().Stats() {
		fmt.Fprintf(out, "%s: received=%d skipped=%d allowed=%d blocked=%d rate_limited=%d enforce_errors=%d\n",
			st.Interface, st.Received, st.Skipped, st.Allowed, st.Blocked, st.RateLimited, st.EnforceErrors)
	}
	return nil
}

func init() {
	replayCmd.Flags().BoolVar(&replayEnforce, "enforce", false, "apply the configured enforcement backend")
	replayCmd.Flags().BoolVar(&replayMetrics, "metrics", false, "serve metrics while replaying")
	rootCmd.AddCommand(replayCmd)
}
