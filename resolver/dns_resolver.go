// Author: momentics <momentics@gmail.com>
//
// DNSResolver implements socket.Resolver against the system resolver using
// github.com/miekg/dns for the wire-format query/response. IP literals and
// "localhost" are answered without a query. Otherwise each configured
// server is queried in turn and the whole list is tried twice; a transport
// error, NXDOMAIN, SERVFAIL, any other non-success rcode, or an answer
// without an A record moves on to the next server.

package resolver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/momentics/socketreactor/socket"
)

// DNSResolver resolves hostnames to IPv4 addresses via A queries against a
// fixed set of DNS servers, parsed once from /etc/resolv.conf unless
// explicit servers are supplied.
type DNSResolver struct {
	servers []string
	client  *dns.Client
	timeout time.Duration
}

// NewDNSResolver builds a resolver against servers (host:port pairs); with
// none given, it parses /etc/resolv.conf once.
func NewDNSResolver(servers ...string) (*DNSResolver, error) {
	if len(servers) == 0 {
		cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return nil, fmt.Errorf("resolver: reading /etc/resolv.conf: %w", err)
		}
		for _, s := range cfg.Servers {
			servers = append(servers, net.JoinHostPort(s, cfg.Port))
		}
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("resolver: no DNS servers configured")
	}
	return &DNSResolver{
		servers: servers,
		client:  &dns.Client{},
		timeout: 5 * time.Second,
	}, nil
}

// Resolve starts an A-record lookup for host (address's hostname part) and
// returns immediately; see socket.Resolver.
func (r *DNSResolver) Resolve(ctx context.Context, network, address string) socket.AsyncResolution {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}

	res := &dnsResolution{done: make(chan struct{})}
	rctx, cancel := context.WithCancel(ctx)
	res.cancel = cancel

	go r.run(rctx, host, res)
	return res
}

func (r *DNSResolver) run(ctx context.Context, host string, res *dnsResolution) {
	defer close(res.done)

	if ip := net.ParseIP(host); ip != nil {
		res.result = &net.IPAddr{IP: ip}
		return
	}
	if host == "localhost" {
		res.result = &net.IPAddr{IP: net.IPv4(127, 0, 0, 1)}
		return
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		for _, server := range r.servers {
			select {
			case <-ctx.Done():
				res.err = ctx.Err()
				return
			default:
			}

			in, _, err := r.client.ExchangeContext(ctx, msg, server)
			if err != nil {
				lastErr = err
				continue
			}
			if in.Rcode == dns.RcodeNameError {
				lastErr = fmt.Errorf("resolver: %s: NXDOMAIN", host)
				continue
			}
			if in.Rcode == dns.RcodeServerFailure {
				lastErr = fmt.Errorf("resolver: %s: SERVFAIL", host)
				continue
			}
			if in.Rcode != dns.RcodeSuccess {
				lastErr = fmt.Errorf("resolver: %s: rcode %d", host, in.Rcode)
				continue
			}
			for _, rr := range in.Answer {
				if a, ok := rr.(*dns.A); ok {
					res.result = &net.IPAddr{IP: a.A}
					return
				}
			}
			lastErr = fmt.Errorf("resolver: %s: no A record", host)
		}
	}
	res.err = lastErr
}

// dnsResolution is the socket.AsyncResolution that Resolve returns. Package
// socket never imports resolver, so importing socket here causes no cycle.
type dnsResolution struct {
	mu     sync.Mutex
	done   chan struct{}
	result net.Addr
	err    error
	cancel context.CancelFunc
}

func (r *dnsResolution) Done() <-chan struct{} { return r.done }

func (r *dnsResolution) Result() (net.Addr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

func (r *dnsResolution) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
}

var _ socket.AsyncResolution = (*dnsResolution)(nil)
var _ socket.Resolver = (*DNSResolver)(nil)
