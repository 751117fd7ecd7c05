// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/trafficguard/internal/config"
)

const defaultConfigFile = "/etc/trafficguard/config.yml"

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "trafficguard",
	Short: "trafficguard - host traffic filtering engine",
	Long: `trafficguard observes packets on the host's interfaces, classifies each one
against an editable rule list and installs host firewall drops for blocked traffic.

Features:
  - Rules by source address, port, time-of-day window and size bounds
  - Per-source sliding-window rate limiting
  - iptables, nftables or dry-run enforcement
  - Prometheus metrics and an optional Kafka event stream`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigFile,
		"config file path (empty for built-in defaults)")
}

// loadConfig loads the configured file. A missing default file falls back to
// built-in defaults so the CLI works before the daemon is provisioned.
func loadConfig() (*config.GlobalConfig, error) {
	path := configFile
	if path == defaultConfigFile {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
