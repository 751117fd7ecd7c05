package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/trafficguard/internal/capture"
	"firestige.xyz/trafficguard/internal/capture/live"
	"firestige.xyz/trafficguard/internal/config"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List capturable interfaces",
	Long: `List the interfaces libpcap can open. Interfaces selected by
capture.interfaces and capture.exclude are marked with '*'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		devs, err := live.Devices()
		if err != nil {
			return err
		}
		return printInterfaces(devs, cfg.Capture, cmd.OutOrStdout())
	},
}

func printInterfaces(devs []live.Device, cfg config.CaptureConfig, out io.Writer) error {
	names := make([]string, len(devs))
	for i, d := range devs {
		names[i] = d.Name
	}
	selected := make(map[string]bool)
	for _, n := range capture.SelectInterfaces(names, cfg.Interfaces, cfg.Exclude) {
		selected[n] = true
	}

	for _, d := range devs {
		mark := " "
		if selected[d.Name] {
			mark = "*"
		}
		line := fmt.Sprintf("%s %s", mark, d.Name)
		if len(d.Addresses) > 0 {
			line += "\t" + strings.Join(d.Addresses, ",")
		}
		if d.Description != "" {
			line += "\t(" + d.Description + ")"
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}
