// Author: momentics <momentics@gmail.com>

// Package socket implements the asynchronous socket state machine on top of
// package reactor: PhysicalSocket (a thin synchronous wrapper over an OS
// socket with a logical connection state and stored last error),
// SocketDispatcher (composing PhysicalSocket with reactor.Dispatcher),
// FileDispatcher (the non-socket Unix equivalent), and Server, the
// SocketServer capability consumers import.
package socket
