// Author: momentics <momentics@gmail.com>
//
// Addr is an opaque socket address: either a resolved IPv4 endpoint or an
// unresolved hostname. This is deliberately minimal — IPv6 handling beyond
// opaque storage is out of scope, so Addr never inspects or branches on
// address family beyond "resolved or not". Platform-specific
// conversion to/from the OS sockaddr representation lives in
// addr_unix.go / addr_windows.go.

package socket

import (
	"fmt"
	"net"
)

// Addr is the platform-neutral socket address PhysicalSocket operates on.
type Addr struct {
	Host string // set when unresolved; empty once IP is known
	IP   net.IP // resolved address; nil means unresolved
	Port int
}

// ResolvedAddr constructs an already-resolved Addr.
func ResolvedAddr(ip net.IP, port int) Addr { return Addr{IP: ip, Port: port} }

// UnresolvedAddr constructs an Addr that requires DNS resolution before
// Connect can proceed.
func UnresolvedAddr(host string, port int) Addr { return Addr{Host: host, Port: port} }

// IsUnresolved reports whether this address still needs a resolver pass.
func (a Addr) IsUnresolved() bool { return a.IP == nil }

// IsAny reports whether this address is the zero value.
func (a Addr) IsAny() bool { return a.IP == nil && a.Host == "" && a.Port == 0 }

func (a Addr) String() string {
	if a.IsUnresolved() {
		return fmt.Sprintf("%s:%d", a.Host, a.Port)
	}
	return fmt.Sprintf("%s:%d", a.IP, a.Port)
}

// ipFromNetAddr extracts the IP from whatever concrete net.Addr a Resolver
// returns (resolvers hand back *net.TCPAddr, *net.UDPAddr, or *net.IPAddr
// depending on network); nil means the address carried no usable IP.
func ipFromNetAddr(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.TCPAddr:
		return v.IP
	case *net.UDPAddr:
		return v.IP
	case *net.IPAddr:
		return v.IP
	default:
		return nil
	}
}

type addrError string

func newAddrError(msg string) error { return addrError(msg) }
func (e addrError) Error() string   { return string(e) }
