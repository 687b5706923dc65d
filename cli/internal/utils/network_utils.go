package utils

import (
	"net"
	"strings"
)

// Carrier-grade NAT range, also used by WARP and Tailscale.
var cgnatBlock = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

var tunnelMarkers = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}

// Interface is the part of a network interface relay detection looks at.
type Interface struct {
	Name string
	IPs  []net.IP
}

// ShouldForceRelay checks if the system is likely behind a restrictive VPN or
// CGNAT, where TURN relaying is the only path that reliably works.
func ShouldForceRelay() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	var list []Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		entry := Interface{Name: iface.Name}
		addrs, err := iface.Addrs()
		if err == nil {
			for _, addr := range addrs {
				if ipn, ok := addr.(*net.IPNet); ok {
					entry.IPs = append(entry.IPs, ipn.IP)
				}
			}
		}
		list = append(list, entry)
	}
	return relayLikely(list)
}

func relayLikely(ifaces []Interface) bool {
	for _, iface := range ifaces {
		name := strings.ToLower(iface.Name)
		for _, marker := range tunnelMarkers {
			if strings.Contains(name, marker) {
				return true
			}
		}
		for _, ip := range iface.IPs {
			if cgnatBlock.Contains(ip) {
				return true
			}
		}
	}
	return false
}
