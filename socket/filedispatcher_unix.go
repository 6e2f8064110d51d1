// Author: momentics <momentics@gmail.com>
//
// FileDispatcher: the non-socket-descriptor analogue of SocketDispatcher,
// grounded on class FileDispatcher in physicalsocketserver.cc. Unlike
// SocketDispatcher it never runs IsDescriptorClosed (a plain fd has no
// MSG_PEEK) and never changes ConnState.

//go:build !windows

package socket

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/socketreactor/reactor"
)

// FileDispatcher registers a raw, already-open, non-socket file descriptor
// with a Reactor for READ/WRITE readiness. Callers own the fd's lifetime;
// Close only unregisters, it never calls close(2) on the underlying fd.
type FileDispatcher struct {
	r              *reactor.Reactor
	fd             int
	readFunc       func(*FileDispatcher)
	writeFn        func(*FileDispatcher)
	writableWanted bool
	closed         bool
}

// NewFileDispatcher sets fd non-blocking, registers it for READ, and
// returns a handle whose Close unregisters (without closing fd).
func NewFileDispatcher(r *reactor.Reactor, fd int, onRead, onWrite func(*FileDispatcher)) (*FileDispatcher, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return nil, newError(int(err.(unix.Errno)), "fcntl getfl")
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags|unix.O_NONBLOCK); err != nil {
		return nil, newError(int(err.(unix.Errno)), "fcntl setfl")
	}

	fdisp := &FileDispatcher{r: r, fd: fd, readFunc: onRead, writeFn: onWrite}
	r.Add(fdisp)
	return fdisp, nil
}

// SetWritable toggles WRITE interest; READ stays armed for the
// dispatcher's whole lifetime, set once at construction with no later
// clear.
func (f *FileDispatcher) SetWritable(on bool) { f.writableWanted = on }

// Close unregisters fd from the reactor; the underlying descriptor is left
// open for the caller to close.
func (f *FileDispatcher) Close() {
	if f.closed {
		return
	}
	f.closed = true
	f.r.Remove(f)
}

func (f *FileDispatcher) RequestedEvents() reactor.EventMask {
	mask := reactor.EventRead
	if f.writableWanted {
		mask |= reactor.EventWrite
	}
	return mask
}

func (f *FileDispatcher) Descriptor() reactor.OsHandle {
	if f.closed {
		return reactor.InvalidHandle
	}
	return reactor.OsHandle(f.fd)
}

func (f *FileDispatcher) IsDescriptorClosed() bool { return false }

func (f *FileDispatcher) OnPreEvent(mask reactor.EventMask) {}

func (f *FileDispatcher) OnEvent(mask reactor.EventMask, errno int) {
	if mask.Has(reactor.EventRead) && f.readFunc != nil {
		f.readFunc(f)
	}
	if mask.Has(reactor.EventWrite) && f.writeFn != nil {
		f.writeFn(f)
	}
}

// CreateFile registers an already-open, non-socket fd for READ/WRITE
// readiness. Unix only.
func (srv *Server) CreateFile(fd int, onRead, onWrite func(*FileDispatcher)) (*FileDispatcher, error) {
	return NewFileDispatcher(srv.r, fd, onRead, onWrite)
}
