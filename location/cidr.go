// location/cidr.go
package location

import (
	"net"
	"strconv"
	"strings"
)

// MatchCIDR reports whether ip falls inside the given range, expressed
// either as a bare IPv4 address or CIDR notation. Both values are reduced
// to 32-bit integers and compared under the prefix mask; malformed input
// yields false, never an error.
func MatchCIDR(ip, cidr string) bool {
	ipVal, ok := ipv4ToUint32(ip)
	if !ok {
		return false
	}

	base := cidr
	prefix := 32
	if idx := strings.IndexByte(cidr, '/'); idx >= 0 {
		base = cidr[:idx]
		p, err := strconv.Atoi(cidr[idx+1:])
		if err != nil || p < 0 || p > 32 {
			return false
		}
		prefix = p
	}
	baseVal, ok := ipv4ToUint32(base)
	if !ok {
		return false
	}

	var mask uint32
	if prefix == 0 {
		mask = 0
	} else {
		mask = ^uint32((uint64(1) << (32 - prefix)) - 1)
	}
	return ipVal&mask == baseVal&mask
}

// IsPrivateIP reports whether ip is in an RFC1918 block or loopback.
func IsPrivateIP(ip string) bool {
	for _, block := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.0/8"} {
		if MatchCIDR(ip, block) {
			return true
		}
	}
	return false
}

func ipv4ToUint32(s string) (uint32, bool) {
	parsed := net.ParseIP(strings.TrimSpace(s))
	if parsed == nil {
		return 0, false
	}
	v4 := parsed.To4()
	if v4 == nil {
		return 0, false
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3]), true
}
