package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/trafficguard/internal/capture/live"
	"firestige.xyz/trafficguard/internal/daemon"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start capturing and enforcing",
	Long: `Start trafficguard in the foreground.

One capture loop runs per selected interface (capture.interfaces and
capture.exclude, all devices by default). SIGINT or SIGTERM stops every loop,
SIGHUP reloads the rule file.

Examples:
  trafficguard start                       # default config
  trafficguard start -c config.yml         # explicit config
  trafficguard start -c ''                 # built-in defaults and TRAFFICGUARD_* env`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runStart(ctx)
	},
}

func runStart(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opener, err := live.OpenerFor(cfg.Capture.Type)
	if err != nil {
		return err
	}
	ifaces, err := live.Interfaces(cfg.Capture)
	if err != nil {
		return err
	}
	if len(ifaces) == 0 {
		return fmt.Errorf("no capture interface matches capture.interfaces/capture.exclude")
	}

	d := daemon.NewWithConfig(cfg, configFile,
		daemon.WithOpener(opener),
		daemon.WithInterfaces(ifaces...),
	)
	if err := d.Start(ctx); err != nil {
		d.Stop()
		return err
	}
	return d.Run(ctx)
}

func init() {
	rootCmd.AddCommand(startCmd)
}
