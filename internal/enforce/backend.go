package enforce

import (
	"fmt"

	"firestige.xyz/trafficguard/internal/config"
	"firestige.xyz/trafficguard/internal/core"
)

// NewBackend builds the backend named by cfg.Backend.
func NewBackend(cfg config.EnforceConfig, runner CommandRunner) (Backend, error) {
	switch cfg.Backend {
	case config.BackendIptables, "":
		return NewIptablesBackend(runner, cfg.Iptables, cfg.Ip6tables, cfg.Chain), nil
	case config.BackendNftables:
		return openNFTables(cfg.NFTable, cfg.NFChain)
	case config.BackendDryRun:
		return DryRunBackend{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown enforce backend %q", core.ErrConfigInvalid, cfg.Backend)
	}
}
