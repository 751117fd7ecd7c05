package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/trafficguard/internal/config"
	"firestige.xyz/trafficguard/internal/store"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and rule file",
	Long: `Load the configuration and the rule file it points to without starting capture.
Every rule is checked the way 'rules add' checks it.

Examples:
  trafficguard validate -c config.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("INVALID: %w", err)
		}
		return runValidate(cfg, store.NewFileRuleStore(cfg.Rules.Path), cmd.OutOrStdout())
	},
}

func runValidate(cfg *config.GlobalConfig, st store.RuleStore, out io.Writer) error {
	rules, err := st.Load()
	if err != nil {
		return fmt.Errorf("INVALID: rules %s: %w", cfg.Rules.Path, err)
	}
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("INVALID: rule %d: %w", i, err)
		}
	}
	fmt.Fprintf(out, "VALID: %d rule(s), backend %s, app port %d, reload %s\n",
		len(rules), cfg.Enforce.Backend, cfg.Extract.AppPort, cfg.Rules.ReloadMode)
	return nil
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
