package netscan

import (
	"fmt"
	"net"

	"github.com/rs/zerolog/log"
)

// ExpandHosts turns an interface CIDR into the finite list of candidate host
// addresses to probe. A /24 yields the 254 hosts .1-.254; a /16 yields only
// the .0.x and .1.x sub-ranges (508 hosts) to keep scan volume bounded.
// Other prefix lengths are unsupported and yield an empty set with a
// diagnostic, never an error.
func ExpandHosts(cidr string) []string {
	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		log.Debug().Str("cidr", cidr).Err(err).Msg("Unparseable CIDR, skipping")
		return nil
	}

	base := ipnet.IP.To4()
	if base == nil {
		log.Debug().Str("cidr", cidr).Msg("Not an IPv4 network, skipping")
		return nil
	}

	ones, bits := ipnet.Mask.Size()
	if bits != 32 {
		log.Debug().Str("cidr", cidr).Msg("Not an IPv4 mask, skipping")
		return nil
	}

	switch ones {
	case 24:
		hosts := make([]string, 0, 254)
		for h := 1; h <= 254; h++ {
			hosts = append(hosts, fmt.Sprintf("%d.%d.%d.%d", base[0], base[1], base[2], h))
		}
		return hosts

	case 16:
		// Only the two lowest /24-equivalent blocks are walked; a full
		// /16 sweep would be 65534 probes.
		hosts := make([]string, 0, 508)
		for block := 0; block <= 1; block++ {
			for h := 1; h <= 254; h++ {
				hosts = append(hosts, fmt.Sprintf("%d.%d.%d.%d", base[0], base[1], block, h))
			}
		}
		return hosts

	default:
		log.Debug().Str("cidr", cidr).Int("prefix", ones).
			Msg("Unsupported prefix length for LAN scan, skipping")
		return nil
	}
}
