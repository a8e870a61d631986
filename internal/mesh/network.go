package mesh

import (
	"net"
	"strings"
)

var tunnelPrefixes = []string{"tun", "tap", "wg", "ppp", "warp", "utun", "tailscale"}

var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// behindRestrictiveNetwork guesses whether direct peer-to-peer media is likely
// to fail: a tunnel interface is up, or a local address sits in the carrier
// grade NAT range. Relaying through TURN is preferred in that case.
func behindRestrictiveNetwork() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isTunnel(iface.Name) {
			return true
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if inCGNAT(addr) {
				return true
			}
		}
	}
	return false
}

func isTunnel(name string) bool {
	name = strings.ToLower(name)
	for _, p := range tunnelPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func inCGNAT(addr net.Addr) bool {
	var ip net.IP
	switch v := addr.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	}
	return ip != nil && cgnat.Contains(ip)
}
