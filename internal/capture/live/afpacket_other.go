//go:build !linux

package live

import (
	"fmt"

	"firestige.xyz/trafficguard/internal/capture"
	"firestige.xyz/trafficguard/internal/core"
)

// OpenAFPacket is only available on Linux.
func OpenAFPacket(iface string, _ capture.Options) (capture.Source, error) {
	return nil, fmt.Errorf("%w: %s: afpacket capture requires linux", core.ErrInterfaceOpen, iface)
}
