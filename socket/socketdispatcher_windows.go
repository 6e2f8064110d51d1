// Author: momentics <momentics@gmail.com>
//
// Windows-only additions to SocketDispatcher: the WindowsDispatcher
// capability (WsaEvent/OsSocket/CheckSignalClose) the reactor's
// WSAWaitForMultipleEvents loop needs, grounded on the WIN32 branch of
// SocketDispatcher in physicalsocketserver.cc.

//go:build windows

package socket

import (
	"github.com/momentics/socketreactor/reactor"
)

// WsaEvent returns the WSAEVENT this socket's WSAEventSelect is bound to.
func (d *SocketDispatcher) WsaEvent() uintptr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wsaEvent
}

// OsSocket returns the raw SOCKET handle for WSAEnumNetworkEvents.
func (d *SocketDispatcher) OsSocket() uintptr {
	return uintptr(d.Handle())
}

// CheckSignalClose reports whether FD_CLOSE has already been latched for
// this dispatcher and not yet delivered; the Wait loop uses this to skip
// re-arming WSAEventSelect and to gate delivery from pendingClose.
func (d *SocketDispatcher) CheckSignalClose() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.signalClosed
}

// peekClosed on Windows has no MSG_PEEK-based alternative that is cheaper
// than the FD_CLOSE latch WSAEnumNetworkEvents already tracks, so it
// always defers to that latch rather than issuing a redundant recv probe.
func (s *PhysicalSocket) peekClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signalClosed
}

// markSignalClose is called from OnPreEvent when EventClose has been
// observed, so CheckSignalClose reports it. OnEvent does not clear the
// latch; the Wait loop clears it after delivering a deferred CLOSE, and
// Close clears it.
func markSignalClose(d *SocketDispatcher) {
	d.MarkSignalClose(true)
}

// MarkSignalClose sets or clears the FD_CLOSE latch. The Wait loop sets it
// when WSAEnumNetworkEvents observes FD_CLOSE, queuing the dispatcher for
// deferred delivery, and clears it once that deferred CLOSE has been
// delivered so the socket can be re-armed normally afterward.
func (d *SocketDispatcher) MarkSignalClose(set bool) {
	d.mu.Lock()
	d.signalClosed = set
	d.mu.Unlock()
}

var _ reactor.WindowsDispatcher = (*SocketDispatcher)(nil)
