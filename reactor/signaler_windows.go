// Author: momentics <momentics@gmail.com>
//
// Windows wakeup: an auto-reset WSAEVENT. Signal sets it; OnPreEvent resets
// it.

//go:build windows

package reactor

import "golang.org/x/sys/windows"

// Signaler is an auto-reset-event-backed cross-thread wakeup.
type Signaler struct {
	r   *Reactor
	evt windows.Handle
}

func newSignaler(r *Reactor) *Signaler {
	evt, err := windows.CreateEvent(nil, 0 /* auto-reset */, 0, nil)
	if err != nil {
		log.WithError(err).Error("reactor: CreateEvent failed")
	}
	return &Signaler{r: r, evt: evt}
}

func (s *Signaler) Signal() {
	windows.SetEvent(s.evt)
}

func (s *Signaler) RequestedEvents() EventMask { return EventRead }
func (s *Signaler) Descriptor() OsHandle       { return InvalidHandle }
func (s *Signaler) IsDescriptorClosed() bool   { return false }
func (s *Signaler) OnPreEvent(EventMask)       { windows.ResetEvent(s.evt) }
func (s *Signaler) OnEvent(EventMask, int) {
	Assert(false, "Signaler.OnEvent should never be called")
}

// WsaEvent exposes the raw wakeup event handle for wait_windows.go, which
// waits on it directly rather than through the WindowsDispatcher socket
// path; a Signaler has no SOCKET to WSAEnumNetworkEvents.
func (s *Signaler) WsaEvent() uintptr { return uintptr(s.evt) }

func (s *Signaler) close() { windows.CloseHandle(s.evt) }

// BoolSignaler clears *flag on delivery so a reactor can break Wait's loop
// from another thread.
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
