// Author: momentics <momentics@gmail.com>
//
// PhysicalSocket: a thin synchronous wrapper over an OS socket handle,
// grounded on class PhysicalSocket in physicalsocketserver.cc. This file
// holds the platform-neutral state and invariants; the
// syscall-bearing operations (Create, Bind, Connect, Send, ...) live in
// physicalsocket_unix.go / physicalsocket_windows.go.

package socket

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/momentics/socketreactor/reactor"
)

// PhysicalSocket owns one OS socket handle. Invariants:
//   - handle == Invalid <=> state == Closed && enabled == 0
//   - lastErr reflects the most recent syscall outcome; reads are idempotent
//   - while state == Connecting and resolver != nil, the resolver owns the
//     next transition; no connect syscall is in flight
//   - at most one resolver at a time; Close destroys it
//   - id == 0 <=> handle == Invalid; every live handle carries a distinct id
type PhysicalSocket struct {
	mu sync.Mutex

	handle  reactor.OsHandle
	udp     bool
	lastErr int
	state   reactor.ConnState
	enabled reactor.EventMask

	// id is a generation counter: Create/accept/adopt assign a fresh,
	// process-wide-unique value whenever the handle transitions from closed
	// to live, and closeLocked zeroes it. SocketDispatcher.OnEvent snapshots
	// it before running a listener callback and compares it again
	// afterward, so a handler that closes (or replaces) its own dispatcher
	// mid-dispatch stops the remaining event bits in that same pass from
	// reaching a now-stale instance.
	id int64

	resolver       Resolver
	pendingResolve AsyncResolution
	resolveCtx     context.Context
	resolveCancel  context.CancelFunc

	// wsaEvent and signalClosed are Windows-only (physicalsocket_windows.go,
	// socketdispatcher_windows.go); left unused and zero-valued elsewhere.
	wsaEvent     uintptr
	signalClosed bool

	// onResolveFailed is installed by the owning SocketDispatcher, if any,
	// and invoked by awaitResolve when resolution fails or the DoConnect
	// that follows it fails, so a CLOSE event can be signaled. nil for
	// plain PhysicalSocket instances that aren't registered with a reactor.
	onResolveFailed func(errno int)
}

// SetResolver installs the Resolver used for unresolved-address connects.
// Passing nil disables DNS-backed connect (Connect on an unresolved address
// then fails with ErrNoResolver).
func (s *PhysicalSocket) SetResolver(r Resolver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolver = r
}

// State returns the current logical connection state.
func (s *PhysicalSocket) State() reactor.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the error code of the most recent syscall on this
// socket. Reads are idempotent.
func (s *PhysicalSocket) LastError() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SetError overrides the stored last error, used by SocketDispatcher when
// it delivers CLOSE and when an accept fails.
func (s *PhysicalSocket) SetError(errno int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = errno
}

// EnabledEvents returns the bitset of event kinds this socket currently
// wants armed. Dispatcher.RequestedEvents reads this directly.
func (s *PhysicalSocket) EnabledEvents() reactor.EventMask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// IsUDP reports whether this socket was created SOCK_DGRAM.
func (s *PhysicalSocket) IsUDP() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.udp
}

// Handle returns the raw OS handle (Invalid if closed).
func (s *PhysicalSocket) Handle() reactor.OsHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *PhysicalSocket) arm(bits reactor.EventMask)    { s.enabled |= bits }
func (s *PhysicalSocket) disarm(bits reactor.EventMask) { s.enabled &^= bits }

var handleGeneration int64

// bumpID assigns a fresh generation id, marking the handle live. Called
// with s.mu held, by Create and by anything else that installs a handle
// directly (accept, WrapSocket).
func (s *PhysicalSocket) bumpID() {
	s.id = atomic.AddInt64(&handleGeneration, 1)
}

// ID returns the current generation id (0 if closed).
func (s *PhysicalSocket) ID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// destroyResolver cancels any in-flight resolution. Called from Close and
// from the resolver-completion callback itself (idempotent).
func (s *PhysicalSocket) destroyResolver() {
	if s.resolveCancel != nil {
		s.resolveCancel()
		s.resolveCancel = nil
	}
	if s.pendingResolve != nil {
		s.pendingResolve.Cancel()
		s.pendingResolve = nil
	}
}
