// Author: momentics <momentics@gmail.com>
//
// Self-pipe cross-thread wakeup, grounded on EventDispatcher/Signaler in
// physicalsocketserver.cc. Signal writes a single byte if
// not already signaled; OnPreEvent drains up to 4 bytes and clears the flag
// under a mutex; OnEvent is never invoked for the base signaler (the
// reactor should have cleared via OnPreEvent). BoolSignaler layers a
// boolean-flag clear into OnEvent so a reactor can break Wait from another
// thread.

//go:build !windows

package reactor

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Signaler is a self-pipe-backed EventDispatcher usable as a generic
// cross-thread wakeup.
type Signaler struct {
	r        *Reactor
	mu       sync.Mutex
	readFd   int
	writeFd  int
	signaled bool
}

// newSignaler creates the pipe. It does not register with r; NewReactor
// adds the wakeup signaler to the registry itself.
func newSignaler(r *Reactor) *Signaler {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK); err != nil {
		log.WithError(err).Error("reactor: pipe failed")
	}
	s := &Signaler{r: r, readFd: fds[0], writeFd: fds[1]}
	return s
}

// Signal writes a single byte if not already signaled, matching the
// auto-reset emulation over a plain pipe.
func (s *Signaler) Signal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signaled {
		return
	}
	if _, err := unix.Write(s.writeFd, []byte{0}); err == nil {
		s.signaled = true
	}
}

func (s *Signaler) RequestedEvents() EventMask { return EventRead }
func (s *Signaler) Descriptor() OsHandle        { return OsHandle(s.readFd) }
func (s *Signaler) IsDescriptorClosed() bool    { return false }

// OnPreEvent drains the pipe and clears the signaled flag before OnEvent
// would be delivered, emulating an auto-resetting event over a pipe.
func (s *Signaler) OnPreEvent(EventMask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signaled {
		var b [4]byte
		unix.Read(s.readFd, b[:])
		s.signaled = false
	}
}

// OnEvent is never invoked for the base Signaler; the reactor clears state
// in OnPreEvent.
func (s *Signaler) OnEvent(EventMask, int) {
	Assert(false, "Signaler.OnEvent should never be called")
}

func (s *Signaler) close() {
	unix.Close(s.readFd)
	unix.Close(s.writeFd)
}

// BoolSignaler clears *flag on delivery, letting a reactor break Wait's
// loop from another thread: Wait sets the flag true when it starts, Signal
// wakes the blocked poll, and the dispatch of OnEvent flips the flag back
// false.
type BoolSignaler struct {
	*Signaler
	flag *bool
}

func newBoolSignaler(r *Reactor, flag *bool) *BoolSignaler {
	return &BoolSignaler{Signaler: newSignaler(r), flag: flag}
}

func (b *BoolSignaler) OnEvent(EventMask, int) {
	if b.flag != nil {
		*b.flag = false
	}
}
