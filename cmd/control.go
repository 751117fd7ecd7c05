package cmd

import (
	"context"
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/trafficguard/internal/daemon"
)

// ControlClient is what stop, reload and status need from a running daemon.
type ControlClient interface {
	Stop(ctx context.Context) error
	Reload(ctx context.Context) error
	Status(ctx context.Context) (int, error)
}

// pidClient controls the daemon through its PID file.
type pidClient struct {
	pidFile string
	timeout time.Duration
}

func newPIDClient() (*pidClient, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return &pidClient{pidFile: cfg.PIDFile, timeout: 10 * time.Second}, nil
}

func (c *pidClient) Stop(ctx context.Context) error {
	if _, err := daemon.Signal(c.pidFile, syscall.SIGTERM); err != nil {
		return err
	}
	return daemon.WaitForExit(c.pidFile, c.timeout)
}

func (c *pidClient) Reload(ctx context.Context) error {
	_, err := daemon.Signal(c.pidFile, syscall.SIGHUP)
	return err
}

func (c *pidClient) Status(ctx context.Context) (int, error) {
	return daemon.Signal(c.pidFile, syscall.Signal(0))
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	Long: `Send SIGTERM to the daemon recorded in pid_file and wait for it to exit.
The daemon closes its capture sources, flushes reporters and removes the PID file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newPIDClient()
		if err != nil {
			return err
		}
		return runStop(cmd.Context(), client, cmd.OutOrStdout())
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the rule file",
	Long:  `Send SIGHUP to the daemon recorded in pid_file; it re-reads the rule file immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newPIDClient()
		if err != nil {
			return err
		}
		return runReload(cmd.Context(), client, cmd.OutOrStdout())
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newPIDClient()
		if err != nil {
			return err
		}
		return runStatus(cmd.Context(), client, cmd.OutOrStdout())
	},
}

func runStop(ctx context.Context, client ControlClient, out io.Writer) error {
	if err := client.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop: %w", err)
	}
	fmt.Fprintln(out, "✓ Daemon stopped")
	return nil
}

func runReload(ctx context.Context, client ControlClient, out io.Writer) error {
	if err := client.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	fmt.Fprintln(out, "✓ Rules reloaded successfully")
	return nil
}

func runStatus(ctx context.Context, client ControlClient, out io.Writer) error {
	pid, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("daemon is not running: %w", err)
	}
	fmt.Fprintf(out, "running (pid %d)\n", pid)
	return nil
}

func init() {
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reloadCmd)
	rootCmd.AddCommand(statusCmd)
}
