// Author: momentics <momentics@gmail.com>
//
// Server implements the SocketServer capability: Wait,
// WakeUp, CreateSocket, CreateAsyncSocket, WrapSocket, and (Unix only)
// CreateFile, composing one reactor.Reactor.

package socket

import (
	"github.com/momentics/socketreactor/reactor"
)

// Server is the package's top-level facade; one Server owns one Reactor
// and every dispatcher registered through it.
type Server struct {
	r        *reactor.Reactor
	resolver Resolver
}

// NewServer builds a Server around a fresh Reactor. opts are forwarded to
// reactor.NewReactor unchanged.
func NewServer(opts ...reactor.Option) *Server {
	return &Server{r: reactor.NewReactor(opts...)}
}

// Reactor exposes the underlying reactor for callers that need direct
// registry access (e.g. a custom Dispatcher).
func (srv *Server) Reactor() *reactor.Reactor { return srv.r }

// SetResolver installs the Resolver every socket created via
// CreateAsyncSocket/WrapSocket will use for unresolved-address Connect.
func (srv *Server) SetResolver(r Resolver) { srv.resolver = r }

// Wait polls and dispatches until the timeout elapses with nothing ready,
// WakeUp is called, or polling fails; see reactor.Reactor.Wait.
func (srv *Server) Wait(timeoutMs int, processIO bool) bool {
	return srv.r.Wait(timeoutMs, processIO)
}

// WakeUp interrupts a blocked Wait on another goroutine.
func (srv *Server) WakeUp() { srv.r.WakeUp() }

// CreateSocket creates a bare, synchronous PhysicalSocket of sockType not
// registered with the reactor (the "Socket" capability, distinct from
// "AsyncSocket").
func (srv *Server) CreateSocket(sockType int) (*PhysicalSocket, error) {
	s := &PhysicalSocket{handle: reactor.InvalidHandle}
	s.SetResolver(srv.resolver)
	if err := s.Create(sockType); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateAsyncSocket creates a PhysicalSocket of sockType, registers it
// with the reactor as a SocketDispatcher, and subscribes listener to its
// event channels.
func (srv *Server) CreateAsyncSocket(sockType int, listener EventListener) (*SocketDispatcher, error) {
	d := newSocketDispatcher(srv.r, srv, listener)
	d.SetResolver(srv.resolver)
	if err := d.Create(sockType); err != nil {
		return nil, err
	}
	srv.r.Add(d)
	return d, nil
}

// WrapSocket adopts an already-open, already-connected OS socket handle
// (e.g. one accepted outside the reactor) as an async SocketDispatcher.
func (srv *Server) WrapSocket(fd int, listener EventListener) *SocketDispatcher {
	d := newSocketDispatcher(srv.r, srv, listener)
	d.SetResolver(srv.resolver)
	d.mu.Lock()
	d.handle = reactor.OsHandle(fd)
	d.state = reactor.Connected
	d.bumpID()
	d.arm(reactor.EventRead | reactor.EventWrite)
	d.mu.Unlock()
	srv.r.Add(d)
	return d
}

// SockStream/SockDatagram are the socket-type values CreateSocket and
// CreateAsyncSocket expect. They match SOCK_STREAM/SOCK_DGRAM on every
// platform this module targets, so callers don't need to import
// golang.org/x/sys themselves just to pick a type.
const (
	SockStream   = 1
	SockDatagram = 2
)
