// Author: momentics <momentics@gmail.com>
//
// POSIX signal bridge, grounded on PosixSignalHandler/PosixSignalDispatcher
// in physicalsocketserver.cc. The handler is a process-wide
// singleton with a self-pipe and 128 async-signal-safe flags; the installed
// trampoline only sets a flag and writes one byte — no allocation, no
// locking, no logging. The dispatcher is an ordinary Dispatcher reading from
// the self-pipe's read end, draining up to 16 bytes and scanning the flags.

//go:build !windows

package reactor

import (
	"os"
	osignal "os/signal"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

const numPosixSignals = 128

// posixSignalHandler is the process-wide self-pipe plus flag array.
// The genuinely async-signal-safe half of the original C++
// design — a sigaction trampoline calling straight into OnPosixSignalReceived
// — has no pure-Go equivalent: the Go runtime does not let user code install
// a raw signal handler, it only offers the channel-based os/signal.Notify
// API, whose runtime-internal delivery is itself already
// allocation-free/lock-free. onSignal is therefore invoked from a small
// forwarding goroutine fed by that channel rather than from within the
// actual OS signal frame; it still does nothing but set a flag and write one
// byte, preserving the rest of the design (benign coalescing, deferred
// flag array, drain-and-scan dispatcher) unchanged.
type posixSignalHandler struct {
	readFd, writeFd int32 // -1 once closed
	received        [numPosixSignals]int32
}

var globalSignalHandler *posixSignalHandler
var globalSignalHandlerOnce sync.Once

func instanceSignalHandler() *posixSignalHandler {
	globalSignalHandlerOnce.Do(func() {
		var fds [2]int
		if err := unix.Pipe2(fds[:], unix.O_NONBLOCK); err != nil {
			log.WithError(err).Error("reactor: signal pipe failed")
			fds[0], fds[1] = -1, -1
		}
		globalSignalHandler = &posixSignalHandler{
			readFd:  int32(fds[0]),
			writeFd: int32(fds[1]),
		}
	})
	return globalSignalHandler
}

// onSignal sets the flag and writes one byte. Non-blocking; failure is
// ignored, matching the original's "nothing safe to do" comment.
func (h *posixSignalHandler) onSignal(signum int) {
	if signum < 0 || signum >= numPosixSignals {
		return
	}
	atomic.StoreInt32(&h.received[signum], 1)
	if wfd := atomic.LoadInt32(&h.writeFd); wfd >= 0 {
		unix.Write(int(wfd), []byte{0})
	}
}

func (h *posixSignalHandler) isSet(signum int) bool {
	return signum >= 0 && signum < numPosixSignals && atomic.LoadInt32(&h.received[signum]) != 0
}

func (h *posixSignalHandler) clear(signum int) {
	if signum >= 0 && signum < numPosixSignals {
		atomic.StoreInt32(&h.received[signum], 0)
	}
}

// close nulls the descriptors before closing them, minimizing the window in
// which a late-delivered signal writes to a reused fd.
func (h *posixSignalHandler) close() {
	rfd := atomic.SwapInt32(&h.readFd, -1)
	wfd := atomic.SwapInt32(&h.writeFd, -1)
	if rfd >= 0 {
		unix.Close(int(rfd))
	}
	if wfd >= 0 {
		unix.Close(int(wfd))
	}
}

// PosixSignalDispatcher bridges the self-pipe into the reactor loop and
// runs user-registered callbacks on the loop thread, never inside the
// signal handler itself.
type PosixSignalDispatcher struct {
	r        *Reactor
	mu       sync.Mutex
	handlers map[int]func(int)
}

// newPosixSignalDispatcher registers the new dispatcher with r; the caller
// holds r.mu.
func newPosixSignalDispatcher(r *Reactor) *PosixSignalDispatcher {
	d := &PosixSignalDispatcher{r: r, handlers: make(map[int]func(int))}
	r.add(d)
	return d
}

func (d *PosixSignalDispatcher) RequestedEvents() EventMask { return EventRead }
func (d *PosixSignalDispatcher) Descriptor() OsHandle {
	return OsHandle(atomic.LoadInt32(&instanceSignalHandler().readFd))
}
func (d *PosixSignalDispatcher) IsDescriptorClosed() bool { return false }

// OnPreEvent drains up to 16 bytes; signals may be grouped if delivered in
// a burst.
func (d *PosixSignalDispatcher) OnPreEvent(EventMask) {
	var b [16]byte
	unix.Read(int(d.Descriptor()), b[:])
}

// OnEvent scans all 128 flags; for each set flag it atomically clears it
// and invokes the registered callback, logging and dropping if none is
// registered (a benign race: the handler may be unregistered concurrently
// with delivery).
func (d *PosixSignalDispatcher) OnEvent(EventMask, int) {
	h := instanceSignalHandler()
	for signum := 0; signum < numPosixSignals; signum++ {
		if !h.isSet(signum) {
			continue
		}
		h.clear(signum)
		d.mu.Lock()
		cb := d.handlers[signum]
		d.mu.Unlock()
		if cb == nil {
			log.Infof("reactor: received signal %d with no handler", signum)
			continue
		}
		cb(signum)
	}
}

func (d *PosixSignalDispatcher) setHandler(signum int, fn func(int)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[signum] = fn
}

func (d *PosixSignalDispatcher) clearHandler(signum int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, signum)
}

func (d *PosixSignalDispatcher) hasHandlers() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers) > 0
}

func (r *Reactor) posixSignalDispatcher() *PosixSignalDispatcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.signalDispatcher == nil {
		r.signalDispatcher = newPosixSignalDispatcher(r)
	}
	return r.signalDispatcher
}

// A signalTrampoline holds one signum's os/signal.Notify registration and
// the goroutine forwarding it into the self-pipe; trampolines maps each
// signum to its trampoline so SetPosixSignalHandler
// can tear one down cleanly when the signum's last callback is removed
// (mirrors the original's SIG_IGN/SIG_DFL branch dropping the dispatcher).
type signalTrampoline struct {
	ch   chan os.Signal
	stop chan struct{}
}

var (
	trampolinesMu sync.Mutex
	trampolines   = map[int]*signalTrampoline{}
)

func startTrampoline(signum int) {
	trampolinesMu.Lock()
	defer trampolinesMu.Unlock()
	if _, ok := trampolines[signum]; ok {
		return
	}
	t := &signalTrampoline{ch: make(chan os.Signal, 1), stop: make(chan struct{})}
	osignal.Notify(t.ch, os.Signal(unix.Signal(signum)))
	trampolines[signum] = t
	go func() {
		h := instanceSignalHandler()
		for {
			select {
			case <-t.ch:
				h.onSignal(signum)
			case <-t.stop:
				return
			}
		}
	}()
}

func stopTrampoline(signum int) {
	trampolinesMu.Lock()
	t, ok := trampolines[signum]
	if ok {
		delete(trampolines, signum)
	}
	trampolinesMu.Unlock()
	if !ok {
		return
	}
	osignal.Stop(t.ch)
	close(t.stop)
}

// SetPosixSignalHandler installs fn as the callback for signum, delivered
// on the loop thread the next pass after the signal interrupts Wait.
// Passing nil removes the registration (the SIG_IGN/SIG_DFL branch of the
// original); if no handlers remain, the dispatcher itself is dropped
// from the reactor.
//
// Only one reactor process-wide needs to call this for a given signum;
// every reactor shares the flag array and self-pipe singleton.
func (r *Reactor) SetPosixSignalHandler(signum int, fn func(signum int)) error {
	if signum < 0 || signum >= numPosixSignals {
		Assert(false, "signum out of range")
		return newError(CodeInternal, 0, "signum out of range")
	}

	if fn == nil {
		r.mu.Lock()
		d := r.signalDispatcher
		r.mu.Unlock()
		if d != nil {
			d.clearHandler(signum)
			stopTrampoline(signum)
			if !d.hasHandlers() {
				r.Remove(d)
				r.mu.Lock()
				r.signalDispatcher = nil
				r.mu.Unlock()
			}
		}
		return nil
	}

	d := r.posixSignalDispatcher()
	d.setHandler(signum, fn)
	startTrampoline(signum)
	return nil
}
