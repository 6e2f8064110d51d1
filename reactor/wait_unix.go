// Author: momentics <momentics@gmail.com>
//
// select(2)-based Wait loop, grounded on
// PhysicalSocketServer::Wait(int, bool) [POSIX branch] in
// physicalsocketserver.cc.

//go:build !windows

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

const forever = -1

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}

// Wait implements the SocketServer capability's Wait(timeout_ms,
// process_io) -> bool. timeoutMs == forever blocks indefinitely. process_io
// == false delivers only the wakeup signaler.
func (r *Reactor) Wait(timeoutMs int, processIO bool) bool {
	var deadline time.Time
	hasDeadline := timeoutMs != forever
	if hasDeadline {
		deadline = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	}

	r.waiting = true
	for r.waiting {
		passStart := time.Now()

		disps := r.snapshot()
		var readSet, writeSet unix.FdSet
		maxFd := -1
		for _, d := range disps {
			if !processIO && d != Dispatcher(r.wakeup) {
				continue
			}
			fd := int(d.Descriptor())
			if d.Descriptor() == InvalidHandle {
				continue
			}
			if fd > maxFd {
				maxFd = fd
			}
			ff := d.RequestedEvents()
			if ff.Has(EventRead) || ff.Has(EventAccept) {
				fdSet(&readSet, fd)
			}
			if ff.Has(EventWrite) || ff.Has(EventConnect) {
				fdSet(&writeSet, fd)
			}
		}

		var timeout *unix.Timeval
		if hasDeadline {
			remaining := time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
			tv := unix.NsecToTimeval(remaining.Nanoseconds())
			timeout = &tv
		}

		n, err := unix.Select(maxFd+1, &readSet, &writeSet, nil, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.WithError(err).Error("reactor: select failed")
			return false
		}
		if n == 0 {
			return true
		}

		results := make(map[Dispatcher]passResult, n)
		for _, d := range disps {
			if d.Descriptor() == InvalidHandle {
				continue
			}
			fd := int(d.Descriptor())
			readable := fdIsSet(&readSet, fd)
			writable := fdIsSet(&writeSet, fd)
			if !readable && !writable {
				continue
			}

			errno := 0
			if readable || writable {
				if v, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); gerr == nil {
					errno = v
				}
			}

			var mask EventMask
			if readable {
				req := d.RequestedEvents()
				switch {
				case req.Has(EventAccept):
					mask |= EventAccept
				case errno != 0 || d.IsDescriptorClosed():
					mask |= EventClose
				default:
					mask |= EventRead
				}
			}
			if writable {
				req := d.RequestedEvents()
				if req.Has(EventConnect) {
					if errno == 0 {
						mask |= EventConnect
					} else {
						mask |= EventClose
					}
				} else {
					mask |= EventWrite
				}
			}
			if mask != 0 {
				results[d] = passResult{mask: mask, errno: errno}
			}
		}

		r.dispatch(results)

		if r.slowPassThreshold > 0 {
			if elapsed := time.Since(passStart); elapsed.Nanoseconds() > r.slowPassThreshold {
				log.Warnf("reactor: pass exceeded %v (advisory only)", time.Duration(r.slowPassThreshold))
			}
		}
	}
	return true
}
