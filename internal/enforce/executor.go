// Package enforce installs host firewall drops for blocked traffic.
package enforce

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"

	"firestige.xyz/trafficguard/internal/core"
	"firestige.xyz/trafficguard/internal/log"
)

// Backend performs the firewall mutations.
// Implementations must be safe for concurrent use.
type Backend interface {
	Name() string
	// DropSource drops all inbound traffic from addr.
	DropSource(ctx context.Context, addr netip.Addr) error
	// DropPort drops inbound traffic to port over transport ("tcp" or "udp").
	// ipv6 selects the address family where the backend distinguishes them.
	DropPort(ctx context.Context, transport string, port uint16, ipv6 bool) error
}

// Executor applies enforcement for blocked packets.
// It neither deduplicates nor rolls back: every call issues its mutations.
type Executor struct {
	backend Backend
	appPort uint16
}

// NewExecutor creates an executor that installs port drops only for appPort.
func NewExecutor(backend Backend, appPort uint16) *Executor {
	return &Executor{backend: backend, appPort: appPort}
}

// Enforce issues a source drop when md carries a source address and, independently,
// a port drop when md targets the application port. Failures are logged and
// reported in the results; they never stop the other mutation. Each log line
// carries the packet metadata and the decision d that triggered it.
func (e *Executor) Enforce(ctx context.Context, md *core.PacketMetadata, d core.Decision) []core.EnforcementResult {
	results := make([]core.EnforcementResult, 0, 2)
	logger := log.GetLogger().WithFields(d.LogFields(md)).WithField("backend", e.backend.Name())

	if md.SrcIP.IsValid() {
		res := core.EnforcementResult{Kind: core.EnforceSource, Target: md.SrcIP.String()}
		entry := logger.WithFields(map[string]interface{}{"kind": string(res.Kind), "target": res.Target})
		if err := e.backend.DropSource(ctx, md.SrcIP); err != nil {
			res.Err = fmt.Errorf("%w: drop source %s: %v", core.ErrEnforcementFailed, md.SrcIP, err)
			entry.WithError(err).Error("failed to block source")
		} else {
			entry.Info("blocked source")
		}
		results = append(results, res)
	}

	if md.HasPorts && md.DstPort == e.appPort {
		transport := md.Transport
		if transport == "" {
			transport = core.TransportTCP
		}
		res := core.EnforcementResult{Kind: core.EnforcePort, Target: strconv.Itoa(int(md.DstPort))}
		entry := logger.WithFields(map[string]interface{}{"kind": string(res.Kind), "target": res.Target})
		if err := e.backend.DropPort(ctx, transport, md.DstPort, md.SrcIP.Is6()); err != nil {
			res.Err = fmt.Errorf("%w: drop %s port %d: %v", core.ErrEnforcementFailed, transport, md.DstPort, err)
			entry.WithError(err).Error("failed to block port")
		} else {
			entry.Info("blocked port")
		}
		results = append(results, res)
	}

	return results
}
