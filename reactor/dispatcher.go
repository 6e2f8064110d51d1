// Author: momentics <momentics@gmail.com>

package reactor

// Dispatcher is the capability every pollable participant implements.
// RequestedEvents must be cheap and side-effect-free; the reactor may call
// it multiple times per loop pass. OnPreEvent is called before OnEvent and
// is used to commit state transitions (e.g. Connecting -> Connected);
// OnEvent delivers the event and runs synchronously on the loop thread. A
// dispatcher is permitted to mutate its own enabled-events mask, call back
// into the reactor's Add/Remove, or close itself from within OnEvent.
type Dispatcher interface {
	// RequestedEvents returns the event bitmask this dispatcher currently
	// wishes to receive.
	RequestedEvents() EventMask

	// Descriptor returns the OS handle to poll, or InvalidHandle if this
	// dispatcher has no descriptor (Windows event-object dispatchers).
	Descriptor() OsHandle

	// IsDescriptorClosed distinguishes half-close from readable data; it
	// may perform a non-destructive peek of one byte.
	IsDescriptorClosed() bool

	// OnPreEvent commits state transitions implied by mask before OnEvent
	// delivers it.
	OnPreEvent(mask EventMask)

	// OnEvent delivers mask, with the errno reaped for the pass (0 if
	// none), synchronously on the loop thread.
	OnEvent(mask EventMask, errno int)
}

// WindowsDispatcher is the additional capability set socket dispatchers
// expose on Windows: a shared WSAEVENT rendezvous handle, the
// raw socket for WSAEnumNetworkEvents, and a deferred-close latch that lets
// FD_CLOSE be surfaced only after already-readable data has been delivered.
type WindowsDispatcher interface {
	Dispatcher

	WsaEvent() uintptr
	OsSocket() uintptr
	CheckSignalClose() bool

	// MarkSignalClose sets or clears the FD_CLOSE latch CheckSignalClose
	// reports. The Wait loop sets it when WSAEnumNetworkEvents observes
	// FD_CLOSE and clears it once the deferred CLOSE has been delivered.
	MarkSignalClose(set bool)
}
