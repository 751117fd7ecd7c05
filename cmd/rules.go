package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"firestige.xyz/trafficguard/internal/core"
	"firestige.xyz/trafficguard/internal/store"
)

// rulesCmd represents the rules command group
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage the rule file",
	Long: `List and edit the rule file used by the daemon.

Rules are addressed by zero-based position. Positions shift when a rule is
deleted, and two editors working at once may address different rules with the
same index; list the rules again before replacing or deleting.

Subcommands:
  list     - Print every rule with its index
  add      - Append a rule
  replace  - Replace the rule at an index
  delete   - Delete the rule at an index`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openRuleStore()
		if err != nil {
			return err
		}
		return runRulesList(st, cmd.OutOrStdout())
	},
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Append a rule",
	Long: `Append a rule to the end of the rule file.

Examples:
  trafficguard rules add --action block --src-ip 10.0.0.5
  trafficguard rules add --action block --port 4000 --start 08:00 --end 18:00`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rule, err := ruleFromFlags(cmd.Flags())
		if err != nil {
			return err
		}
		st, err := openRuleStore()
		if err != nil {
			return err
		}
		return runRulesAdd(st, rule, cmd.OutOrStdout())
	},
}

var rulesReplaceCmd = &cobra.Command{
	Use:   "replace <index>",
	Short: "Replace the rule at index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		rule, err := ruleFromFlags(cmd.Flags())
		if err != nil {
			return err
		}
		st, err := openRuleStore()
		if err != nil {
			return err
		}
		return runRulesReplace(st, index, rule, cmd.OutOrStdout())
	},
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <index>",
	Short: "Delete the rule at index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[0])
		if err != nil {
			return err
		}
		st, err := openRuleStore()
		if err != nil {
			return err
		}
		return runRulesDelete(st, index, cmd.OutOrStdout())
	},
}

func openRuleStore() (store.RuleStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.NewFileRuleStore(cfg.Rules.Path), nil
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("index %q is not an integer", s)
	}
	return i, nil
}

func addRuleFlags(fs *pflag.FlagSet) {
	fs.String("action", "", "rule action: allow or block (required)")
	fs.String("src-ip", "", "source address to match")
	fs.String("protocol", "", "protocol tag (TCP, UDP, HTTP, DNS, OTHER)")
	fs.String("port", "", "port to match against source or destination port")
	fs.Int("size-min", 0, "minimum packet size in bytes")
	fs.Int("size-max", 0, "maximum packet size in bytes")
	fs.String("start", "", "window start, HH:MM")
	fs.String("end", "", "window end, HH:MM")
}

func ruleFromFlags(fs *pflag.FlagSet) (core.Rule, error) {
	var r core.Rule
	action, _ := fs.GetString("action")
	r.Action = core.Action(action)
	r.SrcIP, _ = fs.GetString("src-ip")
	r.Protocol, _ = fs.GetString("protocol")
	r.Port, _ = fs.GetString("port")
	r.StartTime, _ = fs.GetString("start")
	r.EndTime, _ = fs.GetString("end")
	if fs.Changed("size-min") {
		v, _ := fs.GetInt("size-min")
		r.SizeMin = &v
	}
	if fs.Changed("size-max") {
		v, _ := fs.GetInt("size-max")
		r.SizeMax = &v
	}
	if err := r.Validate(); err != nil {
		return core.Rule{}, err
	}
	return r, nil
}

func runRulesList(st store.RuleStore, out io.Writer) error {
	rules, err := st.Load()
	if err != nil {
		if errors.Is(err, core.ErrStoreFormat) {
			fmt.Fprintf(out, "warning: %v\n", err)
		} else {
			return err
		}
	}
	if len(rules) == 0 {
		fmt.Fprintln(out, "No rules.")
		return nil
	}
	for i, r := range rules {
		fmt.Fprintf(out, "%d\t%s\n", i, r)
	}
	return nil
}

func runRulesAdd(st store.RuleStore, rule core.Rule, out io.Writer) error {
	if err := st.Append(rule); err != nil {
		return fmt.Errorf("failed to add rule: %w", err)
	}
	fmt.Fprintf(out, "✓ Added: %s\n", rule)
	return nil
}

func runRulesReplace(st store.RuleStore, index int, rule core.Rule, out io.Writer) error {
	if err := st.Replace(index, rule); err != nil {
		return fmt.Errorf("failed to replace rule: %w", err)
	}
	fmt.Fprintf(out, "✓ Replaced %d: %s\n", index, rule)
	return nil
}

func runRulesDelete(st store.RuleStore, index int, out io.Writer) error {
	deleted, err := st.Delete(index)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	fmt.Fprintf(out, "✓ Deleted %d: %s\n", index, deleted)
	return nil
}

func init() {
	addRuleFlags(rulesAddCmd.Flags())
	addRuleFlags(rulesReplaceCmd.Flags())
	rulesAddCmd.MarkFlagRequired("action")
	rulesReplaceCmd.MarkFlagRequired("action")

	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesReplaceCmd, rulesDeleteCmd)
	rootCmd.AddCommand(rulesCmd)
}
