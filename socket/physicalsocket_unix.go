// Author: momentics <momentics@gmail.com>
//
// Unix syscall-bearing operations for PhysicalSocket, grounded 1:1 on the
// POSIX branch of class PhysicalSocket in physicalsocketserver.cc.

//go:build !windows

package socket

import (
	"context"

	"github.com/momentics/socketreactor/reactor"
	"golang.org/x/sys/unix"
)

func markSignalClose(d *SocketDispatcher) {} // FD_CLOSE latching is Windows-only

func isBlockingErrno(errno int) bool {
	return errno == int(unix.EWOULDBLOCK) || errno == int(unix.EAGAIN) || errno == int(unix.EINPROGRESS)
}

func (s *PhysicalSocket) updateLastError(err error) {
	if err == nil {
		s.lastErr = 0
		return
	}
	if errno, ok := err.(unix.Errno); ok {
		s.lastErr = int(errno)
		return
	}
	s.lastErr = -1
}

// Create closes any existing handle and opens a fresh, non-blocking AF_INET
// socket of sockType (unix.SOCK_STREAM or unix.SOCK_DGRAM). UDP sockets are
// pre-armed READ|WRITE.
func (s *PhysicalSocket) Create(sockType int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()

	fd, err := unix.Socket(unix.AF_INET, sockType, 0)
	if err == nil {
		if err = unix.SetNonblock(fd, true); err != nil {
			unix.Close(fd)
		}
	}
	s.updateLastError(err)
	if err != nil {
		return newError(s.lastErr, "socket")
	}
	s.handle = reactor.OsHandle(fd)
	s.udp = sockType == unix.SOCK_DGRAM
	s.bumpID()
	if s.udp {
		s.arm(reactor.EventRead | reactor.EventWrite)
	}
	return nil
}

// LocalAddr issues getsockname(2); mainly useful after binding to port 0
// to discover the ephemeral port the kernel chose.
func (s *PhysicalSocket) LocalAddr() (Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, err := unix.Getsockname(int(s.handle))
	if err != nil {
		s.updateLastError(err)
		return Addr{}, newError(s.lastErr, "getsockname")
	}
	return addrFromSockaddr(sa), nil
}

// Bind issues bind(2).
func (s *PhysicalSocket) Bind(addr Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, err := addr.sockaddrInet4()
	if err != nil {
		return err
	}
	err = unix.Bind(int(s.handle), sa)
	s.updateLastError(err)
	if err != nil {
		return newError(s.lastErr, "bind")
	}
	return nil
}

// Connect first auto-creates a stream socket if none exists. Then, if addr
// is unresolved, a resolver is started asynchronously and Connect returns
// immediately with state Connecting; otherwise it calls DoConnect
// synchronously.
func (s *PhysicalSocket) Connect(ctx context.Context, addr Addr) error {
	s.mu.Lock()
	if s.handle == reactor.InvalidHandle {
		s.mu.Unlock()
		if err := s.Create(unix.SOCK_STREAM); err != nil {
			return err
		}
		s.mu.Lock()
	}

	if addr.IsUnresolved() {
		if s.state != reactor.Closed {
			s.lastErr = int(unix.EALREADY)
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

// awaitResolve runs the resolver-completion callback: on success it
// invokes DoConnect on the resolved address. A failed resolution closes
// the socket and signals CLOSE via onResolveFailed; a post-resolve connect
// failure signals CLOSE via onResolveFailed without closing the socket.
func (s *PhysicalSocket) awaitResolve(resolution AsyncResolution, port int) {
	<-resolution.Done()
	resolved, err := resolution.Result()

	s.mu.Lock()
	if s.pendingResolve != resolution {
		s.mu.Unlock()
		return // superseded by a later Connect or Close
	}
	s.pendingResolve = nil
	s.resolveCancel = nil
	s.mu.Unlock()

	if err != nil {
		s.mu.Lock()
		s.lastErr = int(unix.ECONNABORTED)
		cb := s.onResolveFailed
		s.mu.Unlock()
		s.Close()
		if cb != nil {
			cb(int(unix.ECONNABORTED))
		}
		return
	}

	ip := ipFromNetAddr(resolved)
	if ip == nil {
		s.mu.Lock()
		s.lastErr = int(unix.ECONNABORTED)
		cb := s.onResolveFailed
		s.mu.Unlock()
		s.Close()
		if cb != nil {
			cb(int(unix.ECONNABORTED))
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

// DoConnect issues a non-blocking connect(2). A synchronous success moves
// to Connected; a blocking indication moves to Connecting and arms
// CONNECT; any other failure is returned. READ|WRITE are armed on success
// either way.
func (s *PhysicalSocket) DoConnect(addr Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sa, err := addr.sockaddrInet4()
	if err != nil {
		return err
	}

	cerr := unix.Connect(int(s.handle), sa)
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

// Send is non-blocking; on a blocking error it re-arms WRITE. SIGPIPE is
// suppressed via MSG_NOSIGNAL so a dead peer surfaces as EPIPE instead of
// terminating the process.
func (s *PhysicalSocket) Send(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := unix.Send(int(s.handle), buf, unix.MSG_NOSIGNAL)
	s.updateLastError(err)
	if err != nil && isBlockingErrno(s.lastErr) {
		s.arm(reactor.EventWrite)
	}
	if err != nil {
		return -1, newError(s.lastErr, "send")
	}
	return len(buf), nil
}

// SendTo is the UDP analogue of Send.
func (s *PhysicalSocket) SendTo(buf []byte, addr Addr) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, err := addr.sockaddrInet4()
	if err != nil {
		return -1, err
	}
	serr := unix.Sendto(int(s.handle), buf, unix.MSG_NOSIGNAL, sa)
	s.updateLastError(serr)
	if serr != nil {
		if isBlockingErrno(s.lastErr) {
			s.arm(reactor.EventWrite)
		}
		return -1, newError(s.lastErr, "sendto")
	}
	return len(buf), nil
}

// Recv is non-blocking. A stream socket returning 0 bytes on a non-empty
// buffer is graceful peer shutdown: re-arm READ and report a blocking error
// so the caller treats it like "nothing ready yet", deferring CLOSE to the
// next loop pass.
func (s *PhysicalSocket) Recv(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := unix.Read(int(s.handle), buf)
	if n == 0 && len(buf) != 0 && err == nil && !s.udp {
		s.arm(reactor.EventRead)
		s.lastErr = int(unix.EWOULDBLOCK)
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

// RecvFrom is the UDP analogue of Recv; it never treats 0 bytes as EOF.
func (s *PhysicalSocket) RecvFrom(buf []byte) (int, Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, sa, err := unix.Recvfrom(int(s.handle), buf, 0)
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

// peekClosed does a non-destructive MSG_PEEK of one byte to tell a true
// half-close apart from merely-pending data.
func (s *PhysicalSocket) peekClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == reactor.InvalidHandle || s.udp {
		return false
	}
	var b [1]byte
	n, _, err := unix.Recvfrom(int(s.handle), b[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
	return err == nil && n == 0
}

// Listen issues listen(2); on success the state moves to Connecting and
// ACCEPT is armed (a listener stays Connecting until closed).
func (s *PhysicalSocket) Listen(backlog int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := unix.Listen(int(s.handle), backlog)
	s.updateLastError(err)
	if err != nil {
		return newError(s.lastErr, "listen")
	}
	s.state = reactor.Connecting
	s.arm(reactor.EventAccept)
	return nil
}

// acceptResult is the bare syscall-level result of Accept, handed to the
// SocketDispatcher layer to wrap into a new dispatcher.
type acceptResult struct {
	fd   int
	addr Addr
}

func (s *PhysicalSocket) acceptRaw() (acceptResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fd, sa, err := unix.Accept(int(s.handle))
	if err == nil {
		if err = unix.SetNonblock(fd, true); err != nil {
			unix.Close(fd)
		}
	}
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

// Close is idempotent: closing an already-closed socket returns nil.
func (s *PhysicalSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *PhysicalSocket) closeLocked() error {
	if s.handle == reactor.InvalidHandle {
		return nil
	}
	err := unix.Close(int(s.handle))
	s.updateLastError(err)
	s.handle = reactor.InvalidHandle
	s.state = reactor.Closed
	s.enabled = 0
	s.id = 0
	s.destroyResolver()
	if err != nil {
		return newError(s.lastErr, "close")
	}
	return nil
}

// GetOption/SetOption translate the platform-neutral Option enum to
// (level, name); DONTFRAGMENT on Linux maps onto PMTU-discover mode and is
// normalized to 0/1 on read.
func (s *PhysicalSocket) GetOption(opt Option) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	level, name, err := translateOption(opt)
	if err != nil {
		return 0, err
	}
	v, gerr := unix.GetsockoptInt(int(s.handle), level, name)
	if gerr != nil {
		s.updateLastError(gerr)
		return 0, newError(s.lastErr, "getsockopt")
	}
	if opt == OptDontFragment {
		if v != unix.IP_PMTUDISC_DONT {
			v = 1
		} else {
			v = 0
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
	if opt == OptDontFragment {
		if value != 0 {
			value = unix.IP_PMTUDISC_DO
		} else {
			value = unix.IP_PMTUDISC_DONT
		}
	}
	serr := unix.SetsockoptInt(int(s.handle), level, name, value)
	s.updateLastError(serr)
	if serr != nil {
		return newError(s.lastErr, "setsockopt")
	}
	return nil
}

func translateOption(opt Option) (level, name int, err error) {
	switch opt {
	case OptDontFragment:
		return unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, nil
	case OptRcvBuf:
		return unix.SOL_SOCKET, unix.SO_RCVBUF, nil
	case OptSndBuf:
		return unix.SOL_SOCKET, unix.SO_SNDBUF, nil
	case OptNoDelay:
		return unix.IPPROTO_TCP, unix.TCP_NODELAY, nil
	default:
		reactor.Assert(false, "unknown socket option")
		return 0, 0, reactor.ErrNotSupported
	}
}

// EstimateMTU requires Connected; on Linux it reads the path MTU via
// IP_MTU. There is no ICMP-sweep fallback: a socket that is not Connected
// gets ENOTCONN.
func (s *PhysicalSocket) EstimateMTU() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != reactor.Connected {
		s.lastErr = int(unix.ENOTCONN)
		return 0, newError(s.lastErr, "estimatemtu: not connected")
	}
	v, err := unix.GetsockoptInt(int(s.handle), unix.IPPROTO_IP, unix.IP_MTU)
	if err != nil {
		s.updateLastError(err)
		return 0, newError(s.lastErr, "estimatemtu")
	}
	return v, nil
}
