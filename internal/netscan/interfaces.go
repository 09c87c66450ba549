// Package netscan discovers game servers on the local network: it enumerates
// private-range interfaces, expands them into finite host lists and probes
// the host x port cross product under a concurrency cap.
package netscan

import (
	"fmt"
	"net"

	"github.com/openfrag/scout/internal/models"
)

// Interfaces returns a snapshot of local, non-loopback IPv4 interfaces whose
// address falls into a private or link-local range. Anything else is not a
// sensible LAN scan origin and is skipped.
func Interfaces() ([]models.NetworkInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("enumerate interfaces: %w", err)
	}

	var out []models.NetworkInterface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}

			ip := ipnet.IP.To4()
			if ip == nil {
				continue
			}
			if !ip.IsPrivate() && !ip.IsLinkLocalUnicast() {
				continue
			}

			out = append(out, models.NetworkInterface{
				Name:    iface.Name,
				IP:      ip.String(),
				Netmask: net.IP(ipnet.Mask).String(),
				CIDR:    ipnet.String(),
			})
		}
	}

	return out, nil
}
