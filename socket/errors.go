// Author: momentics <momentics@gmail.com>
//
// newError classifies a raw errno into the shared reactor.Error taxonomy,
// grounded on PhysicalSocket::UpdateLastError / TranslateOption's implicit
// error-code mapping in physicalsocketserver.cc.

package socket

import (
	"github.com/momentics/socketreactor/reactor"
	"golang.org/x/sys/unix"
)

func newError(errno int, msg string) *reactor.Error {
	code := reactor.CodeSyscall
	switch unix.Errno(errno) {
	case unix.EAGAIN, unix.EINPROGRESS, unix.EALREADY:
		code = reactor.CodeBlocking
	case unix.ECONNREFUSED:
		code = reactor.CodeRefused
	case unix.EBADF, unix.ENOTCONN:
		code = reactor.CodeClosed
	}
	return reactor.NewError(code, errno, msg)
}
