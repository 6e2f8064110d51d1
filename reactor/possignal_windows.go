// Author: momentics <momentics@gmail.com>
//
// POSIX signals have no meaningful Windows equivalent, so the signal
// bridge is scoped to Unix only. PosixSignalDispatcher exists here purely
// as a type placeholder so Reactor's struct layout doesn't fork per
// platform.

//go:build windows

package reactor

// PosixSignalDispatcher is unused on Windows.
type PosixSignalDispatcher struct{}

// SetPosixSignalHandler always fails on Windows.
func (r *Reactor) SetPosixSignalHandler(signum int, fn func(signum int)) error {
	return ErrNotSupported
}
