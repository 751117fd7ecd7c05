package enforce

import (
	"context"
	"net/netip"
	"strconv"
)

// IptablesBackend appends DROP rules through the iptables/ip6tables binaries.
type IptablesBackend struct {
	runner    CommandRunner
	iptables  string
	ip6tables string
	chain     string
}

// NewIptablesBackend creates the backend. Empty binary or chain names fall back to
// "iptables", "ip6tables" and "INPUT".
func NewIptablesBackend(runner CommandRunner, iptables, ip6tables, chain string) *IptablesBackend {
	if runner == nil {
		runner = DefaultCommandRunner
	}
	if iptables == "" {
		iptables = "iptables"
	}
	if ip6tables == "" {
		ip6tables = "ip6tables"
	}
	if chain == "" {
		chain = "INPUT"
	}
	return &IptablesBackend{runner: runner, iptables: iptables, ip6tables: ip6tables, chain: chain}
}

func (b *IptablesBackend) Name() string { return "iptables" }

func (b *IptablesBackend) binary(ipv6 bool) string {
	if ipv6 {
		return b.ip6tables
	}
	return b.iptables
}

// DropSource runs `iptables -A <chain> -s <addr> -j DROP`.
func (b *IptablesBackend) DropSource(ctx context.Context, addr netip.Addr) error {
	return b.runner.Run(ctx, b.binary(addr.Is6()), "-A", b.chain, "-s", addr.String(), "-j", "DROP")
}

// DropPort runs `iptables -A <chain> -p <transport> --dport <port> -j DROP`.
func (b *IptablesBackend) DropPort(ctx context.Context, transport string, port uint16, ipv6 bool) error {
	return b.runner.Run(ctx, b.binary(ipv6), "-A", b.chain, "-p", transport, "--dport", strconv.Itoa(int(port)), "-j", "DROP")
}
