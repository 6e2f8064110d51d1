// Author: momentics <momentics@gmail.com>

// Package resolver provides DNSResolver, the one concrete implementation
// of socket.Resolver this repository ships, built on github.com/miekg/dns.
// It is the only package that imports miekg/dns directly; socket.Connect's
// DNS-backed path only ever sees the socket.Resolver interface.
package resolver
