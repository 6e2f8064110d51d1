// Author: momentics <momentics@gmail.com>
//
// WSAWaitForMultipleEvents-based Wait loop, grounded on
// PhysicalSocketServer::Wait(int, bool) [WIN32 branch] in
// physicalsocketserver.cc. One shared WSAEVENT (socketEv)
// is the rendezvous for every socket dispatcher's WSAEventSelect interest;
// non-socket dispatchers each carry their own event object.
//
// eapache/queue backs the per-pass "signal_close" set: sockets whose
// FD_CLOSE bit has been latched are queued, in arrival order, and drained
// at the top of the next pass via CheckSignalClose, matching "the next poll
// pass calls check_signal_close()".

//go:build windows

package reactor

import (
	"time"
	"unsafe"

	"github.com/eapache/queue"
	"golang.org/x/sys/windows"
)

var ws2_32 = windows.NewLazySystemDLL("ws2_32.dll")

var (
	procWSAEventSelect          = ws2_32.NewProc("WSAEventSelect")
	procWSAWaitForMultipleEvents = ws2_32.NewProc("WSAWaitForMultipleEvents")
	procWSAEnumNetworkEvents    = ws2_32.NewProc("WSAEnumNetworkEvents")
	procWSAResetEvent           = ws2_32.NewProc("WSAResetEvent")
)

const (
	fdRead    = 1 << 0
	fdWrite   = 1 << 1
	fdConnect = 1 << 3
	fdAccept  = 1 << 4
	fdClose   = 1 << 5
)

type wsaNetworkEvents struct {
	Events    uint32
	ErrorCode [10]uint32
}

func wsaEventSelect(s uintptr, ev uintptr, mask uint32) {
	procWSAEventSelect.Call(s, ev, uintptr(mask))
}

// wsaWait blocks until one of events is signaled or timeoutMs elapses,
// returning the signaled index (WSA_WAIT_EVENT_0-based) or an error.
func wsaWait(events []uintptr, timeoutMs uint32) (int, error) {
	r, _, errno := procWSAWaitForMultipleEvents.Call(
		uintptr(len(events)),
		uintptr(unsafe.Pointer(&events[0])),
		0, // fWaitAll = false
		uintptr(timeoutMs),
		0, // fAlertable = false
	)
	const wsaWaitTimeout = 0x102 // WSA_WAIT_TIMEOUT
	const wsaWaitFailed = 0xFFFFFFFF
	if r == wsaWaitTimeout {
		return -1, nil
	}
	if r == wsaWaitFailed {
		return -1, errno
	}
	return int(r), nil
}

func wsaEnumNetworkEvents(s uintptr, ev uintptr) (wsaNetworkEvents, error) {
	var out wsaNetworkEvents
	r, _, errno := procWSAEnumNetworkEvents.Call(s, ev, uintptr(unsafe.Pointer(&out)))
	if r != 0 {
		return out, errno
	}
	return out, nil
}

func wsaResetEvent(ev uintptr) { procWSAResetEvent.Call(ev) }

func maskToWsaFlags(m EventMask) uint32 {
	var f uint32 = fdClose
	if m.Has(EventRead) || m.Has(EventAccept) {
		f |= fdRead | fdAccept
	}
	if m.Has(EventWrite) || m.Has(EventConnect) {
		f |= fdWrite | fdConnect
	}
	return f
}

// Wait implements the SocketServer capability's Wait(timeout_ms,
// process_io) -> bool on Windows.
func (r *Reactor) Wait(timeoutMs int, processIO bool) bool {
	socketEvt, err := windows.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		log.WithError(err).Error("reactor: WSACreateEvent failed")
		return false
	}
	defer windows.CloseHandle(socketEvt)

	pendingClose := queue.New()

	var deadline time.Time
	hasDeadline := timeoutMs != forever
	if hasDeadline {
		deadline = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	}

	r.waiting = true
	for r.waiting {
		passStart := time.Now()

		for pendingClose.Length() > 0 {
			d := pendingClose.Remove().(WindowsDispatcher)
			if d.CheckSignalClose() {
				d.OnPreEvent(EventClose)
				d.OnEvent(EventClose, 0)
				d.MarkSignalClose(false)
			}
		}

		disps := r.snapshot()

		// Slot 0 is the shared socket rendezvous event; slot 1 is always the
		// wakeup's own auto-reset event, so WakeUp() can interrupt Wait even
		// though a Signaler has no SOCKET for WSAEventSelect/WSAEnumNetworkEvents.
		events := []uintptr{uintptr(socketEvt), r.wakeup.WsaEvent()}
		var nonSocket []Dispatcher
		var socketDisps []WindowsDispatcher
		for _, d := range disps {
			if !processIO && d != Dispatcher(r.wakeup) {
				continue
			}
			if d == Dispatcher(r.wakeup) {
				continue // handled via the dedicated wakeup slot above
			}
			wd, isSocket := d.(WindowsDispatcher)
			if !isSocket {
				if ev := d.Descriptor(); ev != InvalidHandle {
					// Non-socket dispatchers on Windows are expected to
					// surface an event handle through Descriptor(); treat
					// it as a raw HANDLE value.
					events = append(events, uintptr(ev))
					nonSocket = append(nonSocket, d)
				}
				continue
			}
			if wd.CheckSignalClose() {
				continue // deferred close already latched; skip re-arming
			}
			wsaEventSelect(wd.OsSocket(), wd.WsaEvent(), maskToWsaFlags(wd.RequestedEvents()))
			socketDisps = append(socketDisps, wd)
		}

		var timeout uint32 = windows.INFINITE
		if hasDeadline {
			remaining := time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
			timeout = uint32(remaining.Milliseconds())
		}

		idx, werr := wsaWait(events, timeout)
		if werr != nil {
			log.WithError(werr).Error("reactor: WSAWaitForMultipleEvents failed")
			return false
		}
		if idx < 0 {
			return true // timeout
		}

		if idx == 1 {
			r.wakeup.OnPreEvent(0)
			r.wakeup.OnEvent(0, 0)
			continue
		}
		if idx > 1 {
			d := nonSocket[idx-2]
			d.OnPreEvent(0)
			d.OnEvent(0, 0)
			continue
		}

		results := make(map[Dispatcher]passResult, len(socketDisps))
		for _, wd := range socketDisps {
			ne, eerr := wsaEnumNetworkEvents(wd.OsSocket(), wd.WsaEvent())
			if eerr != nil {
				continue
			}
			var mask EventMask
			errno := 0
			if ne.Events&fdAccept != 0 {
				mask |= EventAccept
				errno = int(ne.ErrorCode[4])
			}
			if ne.Events&fdRead != 0 {
				mask |= EventRead
				errno = int(ne.ErrorCode[0])
			}
			if ne.Events&fdWrite != 0 {
				mask |= EventWrite
				errno = int(ne.ErrorCode[1])
			}
			if ne.Events&fdConnect != 0 {
				ce := int(ne.ErrorCode[3])
				if ce == 0 {
					mask |= EventConnect
				} else {
					mask |= EventClose
					errno = ce
				}
			}
			if ne.Events&fdClose != 0 {
				wd.MarkSignalClose(true)
				pendingClose.Add(wd)
			}
			if mask != 0 {
				results[Dispatcher(wd)] = passResult{mask: mask, errno: errno}
			}
		}

		r.dispatch(results)
		wsaResetEvent(uintptr(socketEvt))

		if r.slowPassThreshold > 0 {
			if elapsed := time.Since(passStart); elapsed.Nanoseconds() > r.slowPassThreshold {
				log.Warnf("reactor: pass exceeded %v (advisory only)", time.Duration(r.slowPassThreshold))
			}
		}
	}
	return true
}
