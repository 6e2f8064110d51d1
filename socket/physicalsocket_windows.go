// Author: momentics <momentics@gmail.com>
//
// Windows syscall-bearing operations for PhysicalSocket, grounded on the
// WIN32 branch of class PhysicalSocket in physicalsocketserver.cc.
// EstimateMTU here follows the RFC1191 descending-ladder probe the
// original source uses on this platform, unlike the Linux IP_MTU-only path.

//go:build windows

package socket

import (
	"context"

	"golang.org/x/sys/windows"

	"github.com/momentics/socketreactor/reactor"
)

// mtuLadder is the RFC1191-recommended descending probe sizes, grounded on
// the WIN32 EstimateMTU branch of physicalsocketserver.cc.
var mtuLadder = []int{65535, 32000, 17914, 8166, 4352, 2002, 1492, 1006, 508, 296, 68}

func isBlockingErrno(errno int) bool {
	return errno == int(windows.WSAEWOULDBLOCK) || errno == int(windows.WSAEINPROGRESS)
}

func (s *PhysicalSocket) updateLastError(err error) {
	if err == nil {
		s.lastErr = 0
		return
	}
	if errno, ok := err.(windows.Errno); ok {
		s.lastErr = int(errno)
		return
	}
	s.lastErr = -1
}

// Create opens a fresh AF_INET socket of sockType, sets it non-blocking,
// and allocates the WSAEVENT this socket's SocketDispatcher will wait on.
func (s *PhysicalSocket) Create(sockType int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()

	fd, err := windows.Socket(windows.AF_INET, sockType, 0)
	s.updateLastError(err)
	if err != nil {
		return newError(s.lastErr, "socket")
	}

	var mode uint32 = 1
	if ierr := windows.WSAIoctl(fd, windows.FIONBIO, (*byte)(nil), 0, (*byte)(&mode), 4, new(uint32), nil, 0); ierr != nil {
		windows.Closesocket(fd)
		s.updateLastError(ierr)
		return newError(s.lastErr, "ioctl fionbio")
	}

	ev, eerr := windows.CreateEvent(nil, 0, 0, nil)
	if eerr != nil {
		windows.Closesocket(fd)
		s.updateLastError(eerr)
		return newError(s.lastErr, "wsacreateevent")
	}

	s.handle = reactor.OsHandle(fd)
	s.wsaEvent = uintptr(ev)
	s.udp = sockType == socketTypeDatagram
	s.signalClosed = false
	s.bumpID()
	if s.udp {
		s.arm(reactor.EventRead | reactor.EventWrite)
	}
	return nil
}

const socketTypeDatagram = 2

// LocalAddr issues getsockname, mirroring the Unix implementation.
func (s *PhysicalSocket) LocalAddr() (Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, err := windows.Getsockname(windows.Handle(s.handle))
	if err != nil {
		s.updateLastError(err)
		return Addr{}, newError(s.lastErr, "getsockname")
	}
	return addrFromSockaddr(sa), nil
}

func (s *PhysicalSocket) Bind(addr Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, err := addr.sockaddrInet4()
	if err != nil {
		return err
	}
	err = windows.Bind(windows.Handle(s.handle), sa)
	s.updateLastError(err)
	if err != nil {
		return newError(s.lastErr, "bind")
	}
	return nil
}

func (s *PhysicalSocket) Connect(ctx context.Context, addr Addr) error {
	s.mu.Lock()
	if s.handle == reactor.InvalidHandle {
		s.mu.Unlock()
		if err := s.Create(1); err != nil {
			return err
		}
		s.mu.Lock()
	}

	if addr.IsUnresolved() {
		if s.state != reactor.Closed {
			s.lastErr = int(windows.WSAEALREADY)
			s.mu.Unlock()
			return newError(s.lastErr, "connect: already connecting")
		}
		if s.resolver == nil {
			s.mu.Unlock()
			return reactor.ErrNoResolver
		}
		rctx, cancel := context.WithCancel(ctx)
		s.resolveCtx = rctx
		s.resolveCancel = cancel
		s.state = reactor.Connecting
		resolution := s.resolver.Resolve(rctx, "tcp", addr.String())
		s.pendingResolve = resolution
		s.mu.Unlock()

		go s.awaitResolve(resolution, addr.Port)
		return nil
	}
	s.mu.Unlock()

	return s.DoConnect(addr)
}

func (s *PhysicalSocket) awaitResolve(resolution AsyncResolution, port int) {
	<-resolution.Done()
	resolved, err := resolution.Result()

	s.mu.Lock()
	if s.pendingResolve != resolution {
		s.mu.Unlock()
		return
	}
	s.pendingResolve = nil
	s.resolveCancel = nil
	s.mu.Unlock()

	if err != nil {
		s.mu.Lock()
		s.lastErr = int(windows.WSAECONNABORTED)
		cb := s.onResolveFailed
		s.mu.Unlock()
		s.Close()
		if cb != nil {
			cb(int(windows.WSAECONNABORTED))
		}
		return
	}

	ip := ipFromNetAddr(resolved)
	if ip == nil {
		s.mu.Lock()
		s.lastErr = int(windows.WSAECONNABORTED)
		cb := s.onResolveFailed
		s.mu.Unlock()
		s.Close()
		if cb != nil {
			cb(int(windows.WSAECONNABORTED))
		}
		return
	}

	if derr := s.DoConnect(ResolvedAddr(ip, port)); derr != nil {
		s.mu.Lock()
		cb := s.onResolveFailed
		errno := s.lastErr
		s.mu.Unlock()
		if cb != nil {
			cb(errno)
		}
	}
}

func (s *PhysicalSocket) DoConnect(addr Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sa, err := addr.sockaddrInet4()
	if err != nil {
		return err
	}

	cerr := windows.Connect(windows.Handle(s.handle), sa)
	s.updateLastError(cerr)
	switch {
	case cerr == nil:
		s.state = reactor.Connected
	case isBlockingErrno(s.lastErr):
		s.state = reactor.Connecting
		s.arm(reactor.EventConnect)
	default:
		return newError(s.lastErr, "connect")
	}

	s.arm(reactor.EventRead | reactor.EventWrite)
	return nil
}

func (s *PhysicalSocket) Send(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := windows.Send(windows.Handle(s.handle), buf, 0)
	s.updateLastError(err)
	if err != nil && isBlockingErrno(s.lastErr) {
		s.arm(reactor.EventWrite)
	}
	if err != nil {
		return -1, newError(s.lastErr, "send")
	}
	return n, nil
}

func (s *PhysicalSocket) SendTo(buf []byte, addr Addr) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, err := addr.sockaddrInet4()
	if err != nil {
		return -1, err
	}
	serr := windows.Sendto(windows.Handle(s.handle), buf, 0, sa)
	s.updateLastError(serr)
	if serr != nil {
		if isBlockingErrno(s.lastErr) {
			s.arm(reactor.EventWrite)
		}
		return -1, newError(s.lastErr, "sendto")
	}
	return len(buf), nil
}

func (s *PhysicalSocket) Recv(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := windows.Recv(windows.Handle(s.handle), buf, 0)
	if n == 0 && len(buf) != 0 && err == nil {
		s.arm(reactor.EventRead)
		s.lastErr = int(windows.WSAEWOULDBLOCK)
		return -1, newError(s.lastErr, "recv: deferred close")
	}

	s.updateLastError(err)
	success := err == nil || isBlockingErrno(s.lastErr)
	if s.udp || success {
		s.arm(reactor.EventRead)
	}
	if err != nil {
		return -1, newError(s.lastErr, "recv")
	}
	return n, nil
}

func (s *PhysicalSocket) RecvFrom(buf []byte) (int, Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, sa, err := windows.Recvfrom(windows.Handle(s.handle), buf, 0)
	s.updateLastError(err)
	success := err == nil || isBlockingErrno(s.lastErr)
	if s.udp || success {
		s.arm(reactor.EventRead)
	}
	if err != nil {
		return -1, Addr{}, newError(s.lastErr, "recvfrom")
	}
	var from Addr
	if sa != nil {
		from = addrFromSockaddr(sa)
	}
	return n, from, nil
}

func (s *PhysicalSocket) Listen(backlog int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := windows.Listen(windows.Handle(s.handle), backlog)
	s.updateLastError(err)
	if err != nil {
		return newError(s.lastErr, "listen")
	}
	s.state = reactor.Connecting
	s.arm(reactor.EventAccept)
	return nil
}

type acceptResult struct {
	fd   windows.Handle
	addr Addr
}

func (s *PhysicalSocket) acceptRaw() (acceptResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fd, sa, err := windows.Accept(windows.Handle(s.handle))
	s.updateLastError(err)
	if err != nil {
		return acceptResult{}, newError(s.lastErr, "accept")
	}
	s.arm(reactor.EventAccept)
	var addr Addr
	if sa != nil {
		addr = addrFromSockaddr(sa)
	}
	return acceptResult{fd: fd, addr: addr}, nil
}

func (s *PhysicalSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *PhysicalSocket) closeLocked() error {
	if s.handle == reactor.InvalidHandle {
		return nil
	}
	err := windows.Closesocket(windows.Handle(s.handle))
	s.updateLastError(err)
	if s.wsaEvent != 0 {
		windows.CloseHandle(windows.Handle(s.wsaEvent))
		s.wsaEvent = 0
	}
	s.handle = reactor.InvalidHandle
	s.state = reactor.Closed
	s.enabled = 0
	s.signalClosed = false
	s.id = 0
	s.destroyResolver()
	if err != nil {
		return newError(s.lastErr, "closesocket")
	}
	return nil
}

func (s *PhysicalSocket) GetOption(opt Option) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	level, name, err := translateOption(opt)
	if err != nil {
		return 0, err
	}
	v, gerr := windows.GetsockoptInt(windows.Handle(s.handle), uint32(level), int32(name))
	if gerr != nil {
		s.updateLastError(gerr)
		return 0, newError(s.lastErr, "getsockopt")
	}
	if opt == OptDontFragment {
		if v == 0 {
			v = 0
		} else {
			v = 1
		}
	}
	return v, nil
}

func (s *PhysicalSocket) SetOption(opt Option, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	level, name, err := translateOption(opt)
	if err != nil {
		return err
	}
	serr := windows.SetsockoptInt(windows.Handle(s.handle), uint32(level), int32(name), value)
	s.updateLastError(serr)
	if serr != nil {
		return newError(s.lastErr, "setsockopt")
	}
	return nil
}

func translateOption(opt Option) (level, name int, err error) {
	switch opt {
	case OptDontFragment:
		return windows.IPPROTO_IP, windows.IP_DONTFRAGMENT, nil
	case OptRcvBuf:
		return windows.SOL_SOCKET, windows.SO_RCVBUF, nil
	case OptSndBuf:
		return windows.SOL_SOCKET, windows.SO_SNDBUF, nil
	case OptNoDelay:
		return windows.IPPROTO_TCP, windows.TCP_NODELAY, nil
	default:
		reactor.Assert(false, "unknown socket option")
		return 0, 0, reactor.ErrNotSupported
	}
}

// EstimateMTU requires Connected; it walks mtuLadder from the largest rung
// down, issuing a plain Send of that size on the connected socket itself at
// each step, and returns the first size that succeeds, mirroring the WIN32
// branch of EstimateMTU in physicalsocketserver.cc. If every rung fails it
// falls back to the smallest rung.
func (s *PhysicalSocket) EstimateMTU() (int, error) {
	s.mu.Lock()
	state := s.state
	fd := s.handle
	s.mu.Unlock()
	if state != reactor.Connected {
		s.mu.Lock()
		s.lastErr = int(windows.WSAENOTCONN)
		s.mu.Unlock()
		return 0, newError(int(windows.WSAENOTCONN), "estimatemtu: not connected")
	}

	best := mtuLadder[len(mtuLadder)-1]
	for _, sz := range mtuLadder {
		buf := make([]byte, sz)
		_, err := windows.Send(windows.Handle(fd), buf, 0)
		if err == nil {
			best = sz
			break
		}
	}
	return best, nil
}
