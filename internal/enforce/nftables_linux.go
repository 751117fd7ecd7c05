//go:build linux

package enforce

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"github.com/google/nftables"
	"github.com/google/nftables/binaryutil"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"
)

// IP header offsets for source address matching.
const (
	ipv4SrcOffset = 12
	ipv4AddrLen   = 4
	ipv6SrcOffset = 8
	ipv6AddrLen   = 16
	dstPortOffset = 2
)

// NFTablesConn abstracts the nftables.Conn operations the backend needs.
type NFTablesConn interface {
	AddTable(t *nftables.Table) *nftables.Table
	AddChain(c *nftables.Chain) *nftables.Chain
	AddRule(r *nftables.Rule) *nftables.Rule
	Flush() error
}

// NFTablesBackend appends drop rules to an inet table over netlink.
// The table and its input hook chain are created on first use.
type NFTablesBackend struct {
	conn      NFTablesConn
	tableName string
	chainName string

	mu    sync.Mutex // conn batches are not concurrency-safe
	table *nftables.Table
	chain *nftables.Chain
}

// NewNFTablesBackend creates a backend over conn.
func NewNFTablesBackend(conn NFTablesConn, table, chain string) *NFTablesBackend {
	return &NFTablesBackend{conn: conn, tableName: table, chainName: chain}
}

func openNFTables(table, chain string) (Backend, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, fmt.Errorf("open nftables: %w", err)
	}
	return NewNFTablesBackend(conn, table, chain), nil
}

func (b *NFTablesBackend) Name() string { return "nftables" }

// ensure creates the table and chain. Callers hold b.mu.
func (b *NFTablesBackend) ensure() error {
	if b.chain != nil {
		return nil
	}
	table := b.conn.AddTable(&nftables.Table{Family: nftables.TableFamilyINet, Name: b.tableName})
	policy := nftables.ChainPolicyAccept
	chain := b.conn.AddChain(&nftables.Chain{
		Name:     b.chainName,
		Table:    table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookInput,
		Priority: nftables.ChainPriorityFilter,
		Policy:   &policy,
	})
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("create table inet %s chain %s: %w", b.tableName, b.chainName, err)
	}
	b.table, b.chain = table, chain
	return nil
}

func (b *NFTablesBackend) addRule(exprs []expr.Any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensure(); err != nil {
		return err
	}
	b.conn.AddRule(&nftables.Rule{Table: b.table, Chain: b.chain, Exprs: exprs})
	return b.conn.Flush()
}

// DropSource appends `ip[6] saddr <addr> drop`.
func (b *NFTablesBackend) DropSource(_ context.Context, addr netip.Addr) error {
	return b.addRule(sourceDropExprs(addr))
}

// DropPort appends `meta l4proto <transport> th dport <port> drop` for both families.
func (b *NFTablesBackend) DropPort(_ context.Context, transport string, port uint16, _ bool) error {
	exprs, err := portDropExprs(transport, port)
	if err != nil {
		return err
	}
	return b.addRule(exprs)
}

func sourceDropExprs(addr netip.Addr) []expr.Any {
	family, offset, length := byte(unix.NFPROTO_IPV4), uint32(ipv4SrcOffset), uint32(ipv4AddrLen)
	if addr.Is6() {
		family, offset, length = byte(unix.NFPROTO_IPV6), ipv6SrcOffset, ipv6AddrLen
	}
	return []expr.Any{
		&expr.Meta{Key: expr.MetaKeyNFPROTO, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{family}},
		&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: offset, Len: length},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: addr.AsSlice()},
		&expr.Verdict{Kind: expr.VerdictDrop},
	}
}

func portDropExprs(transport string, port uint16) ([]expr.Any, error) {
	var proto byte
	switch transport {
	case "tcp":
		proto = unix.IPPROTO_TCP
	case "udp":
		proto = unix.IPPROTO_UDP
	default:
		return nil, fmt.Errorf("unsupported transport %q", transport)
	}
	return []expr.Any{
		&expr.Meta{Key: expr.MetaKeyL4PROTO, Register: 1},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: []byte{proto}},
		&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseTransportHeader, Offset: dstPortOffset, Len: 2},
		&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: binaryutil.BigEndian.PutUint16(port)},
		&expr.Verdict{Kind: expr.VerdictDrop},
	}, nil
}
