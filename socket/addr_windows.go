// Author: momentics <momentics@gmail.com>

//go:build windows

package socket

import (
	"net"

	"golang.org/x/sys/windows"
)

func (a Addr) sockaddrInet4() (windows.Sockaddr, error) {
	if a.IsUnresolved() {
		return nil, newAddrError("address not resolved")
	}
	ip4 := a.IP.To4()
	if ip4 == nil {
		return nil, newAddrError("only IPv4 endpoints are supported")
	}
	sa := &windows.SockaddrInet4{Port: a.Port}
	copy(sa.Addr[:], ip4)
	return sa, nil
}

func addrFromSockaddr(sa windows.Sockaddr) Addr {
	switch v := sa.(type) {
	case *windows.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, v.Addr[:])
		return ResolvedAddr(ip, v.Port)
	default:
		return Addr{}
	}
}
