package live

import (
	"fmt"

	"github.com/google/gopacket/pcap"

	"firestige.xyz/trafficguard/internal/capture"
	"firestige.xyz/trafficguard/internal/config"
	"firestige.xyz/trafficguard/internal/core"
)

// Device describes a capturable interface.
type Device struct {
	Name        string
	Description string
	Addresses   []string
}

// Devices lists the interfaces libpcap can open.
func Devices() ([]Device, error) {
	ifs, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate interfaces: %v", core.ErrInterfaceOpen, err)
	}
	devs := make([]Device, 0, len(ifs))
	for _, ifc := range ifs {
		d := Device{Name: ifc.Name, Description: ifc.Description}
		for _, a := range ifc.Addresses {
			d.Addresses = append(d.Addresses, a.IP.String())
		}
		devs = append(devs, d)
	}
	return devs, nil
}

// Interfaces returns the names selected by the capture configuration.
func Interfaces(cfg config.CaptureConfig) ([]string, error) {
	devs, err := Devices()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(devs))
	for i, d := range devs {
		names[i] = d.Name
	}
	return capture.SelectInterfaces(names, cfg.Interfaces, cfg.Exclude), nil
}

// OpenerFor returns the opener for the configured capture type.
func OpenerFor(kind string) (capture.Opener, error) {
	switch kind {
	case config.CapturePcap, "":
		return OpenPcap, nil
	case config.CaptureAFPacket:
		return OpenAFPacket, nil
	default:
		return nil, fmt.Errorf("%w: unknown capture type %q", core.ErrConfigInvalid, kind)
	}
}
