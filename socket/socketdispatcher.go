// Author: momentics <momentics@gmail.com>
//
// SocketDispatcher composes PhysicalSocket with reactor.Dispatcher,
// grounded on class SocketDispatcher in physicalsocketserver.cc. All
// four/five event channels fan out through an EventListener supplied at
// construction time; OnPreEvent commits the Connecting -> Connected
// transition before OnEvent runs.

package socket

import (
	"github.com/momentics/socketreactor/reactor"
)

// SocketDispatcher wraps one PhysicalSocket for reactor registration. Its
// re-entrancy guard is the embedded PhysicalSocket.id: OnEvent snapshots it
// at entry and bails out if it no longer matches after a nested callback
// (e.g. a peer-triggered Close) zeroes it via closeLocked.
type SocketDispatcher struct {
	*PhysicalSocket

	reactorRef *reactor.Reactor
	listener   EventListener

	// server is the Server that created this dispatcher; handleAccept
	// hands it on to the SocketDispatcher it builds for each accepted fd.
	server *Server
}

func newSocketDispatcher(r *reactor.Reactor, srv *Server, listener EventListener) *SocketDispatcher {
	if listener == nil {
		listener = EventFuncs{}
	}
	d := &SocketDispatcher{
		PhysicalSocket: &PhysicalSocket{handle: reactor.InvalidHandle},
		reactorRef:     r,
		listener:       listener,
		server:         srv,
	}
	d.onResolveFailed = func(errno int) { d.listener.OnClose(d, errno) }
	return d
}

// SetListener (re)subscribes listener for this dispatcher's event
// channels; used for sockets accepted via a listening SocketDispatcher,
// which are registered before the accepting code has a chance to supply
// one.
func (d *SocketDispatcher) SetListener(listener EventListener) {
	if listener == nil {
		listener = EventFuncs{}
	}
	d.listener = listener
}

// RequestedEvents reports this socket's current interest, per
// PhysicalSocket.EnabledEvents.
func (d *SocketDispatcher) RequestedEvents() reactor.EventMask {
	return d.EnabledEvents()
}

// Descriptor returns the raw OS handle, or InvalidHandle if closed.
func (d *SocketDispatcher) Descriptor() reactor.OsHandle {
	return d.Handle()
}

// IsDescriptorClosed performs a non-destructive MSG_PEEK of one byte to
// distinguish "peer half-closed" from "data pending".
func (d *SocketDispatcher) IsDescriptorClosed() bool {
	return d.peekClosed()
}

// OnPreEvent commits the Connecting -> Connected transition implied by
// mask, then clears every delivered interest bit: each kind is one-shot,
// cleared by the reactor when it delivers that kind and re-armed by the
// dispatcher as needed — the re-arming happens inside Send/Recv/Accept as
// each is retried.
func (d *SocketDispatcher) OnPreEvent(mask reactor.EventMask) {
	d.mu.Lock()
	if mask.Has(reactor.EventConnect) && d.state == reactor.Connecting {
		d.state = reactor.Connected
	}
	d.disarm(mask & (reactor.EventRead | reactor.EventWrite | reactor.EventConnect | reactor.EventAccept))
	d.mu.Unlock()

	if mask.Has(reactor.EventClose) {
		markSignalClose(d)
	}
}

// OnEvent delivers mask to the configured EventListener. ACCEPT is handled
// inline: accept(2) runs, a new SocketDispatcher is registered with the
// same reactor, and OnAccept fires with it; the listener dispatcher itself
// never transitions state.
func (d *SocketDispatcher) OnEvent(mask reactor.EventMask, errno int) {
	id := d.ID()

	if mask.Has(reactor.EventAccept) {
		d.handleAccept()
		if d.ID() != id {
			return
		}
	}
	if mask.Has(reactor.EventClose) {
		d.SetError(errno)
		d.listener.OnClose(d, errno)
		return
	}
	if mask.Has(reactor.EventConnect) {
		d.listener.OnConnect(d)
		if d.ID() != id {
			return
		}
	}
	if mask.Has(reactor.EventRead) {
		d.listener.OnRead(d)
		if d.ID() != id {
			return
		}
	}
	if mask.Has(reactor.EventWrite) {
		d.listener.OnWrite(d)
	}
}

func (d *SocketDispatcher) handleAccept() {
	res, err := d.acceptRaw()
	if err != nil {
		if reactor.IsBlocking(err) {
			d.mu.Lock()
			d.arm(reactor.EventAccept)
			d.mu.Unlock()
			return
		}
		d.SetError(-1)
		d.listener.OnClose(d, d.LastError())
		return
	}

	accepted := newSocketDispatcher(d.reactorRef, d.server, nil)
	accepted.mu.Lock()
	accepted.handle = reactor.OsHandle(res.fd)
	accepted.state = reactor.Connected
	accepted.bumpID()
	accepted.arm(reactor.EventRead | reactor.EventWrite)
	accepted.mu.Unlock()
	d.reactorRef.Add(accepted)

	d.listener.OnAccept(d, accepted)
}
