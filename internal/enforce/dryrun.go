package enforce

import (
	"context"
	"net/netip"

	"firestige.xyz/trafficguard/internal/log"
)

// DryRunBackend only logs the mutations it would have made.
type DryRunBackend struct{}

func (DryRunBackend) Name() string { return "dryrun" }

func (DryRunBackend) DropSource(_ context.Context, addr netip.Addr) error {
	log.GetLogger().WithField("src_ip", addr.String()).Info("dry run: would drop source")
	return nil
}

func (DryRunBackend) DropPort(_ context.Context, transport string, port uint16, ipv6 bool) error {
	log.GetLogger().WithFields(map[string]interface{}{
		"transport": transport,
		"dst_port":  port,
		"ipv6":      ipv6,
	}).Info("dry run: would drop port")
	return nil
}
