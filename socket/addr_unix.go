// Author: momentics <momentics@gmail.com>

//go:build !windows

package socket

import (
	"net"

	"golang.org/x/sys/unix"
)

// sockaddrInet4 converts a resolved IPv4 Addr into a unix.Sockaddr.
func (a Addr) sockaddrInet4() (unix.Sockaddr, error) {
	if a.IsUnresolved() {
		return nil, newAddrError("address not resolved")
	}
	ip4 := a.IP.To4()
	if ip4 == nil {
		return nil, newAddrError("only IPv4 endpoints are supported")
	}
	sa := &unix.SockaddrInet4{Port: a.Port}
	copy(sa.Addr[:], ip4)
	return sa, nil
}

func addrFromSockaddr(sa unix.Sockaddr) Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, v.Addr[:])
		return ResolvedAddr(ip, v.Port)
	default:
		return Addr{}
	}
}
