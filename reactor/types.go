// Author: momentics <momentics@gmail.com>

package reactor

// EventMask is a bitset of the event kinds a Dispatcher can request or be
// delivered.
type EventMask uint32

const (
	EventRead EventMask = 1 << iota
	EventWrite
	EventConnect
	EventAccept
	EventClose
)

func (m EventMask) Has(bit EventMask) bool { return m&bit != 0 }

// OsHandle is the platform file/socket descriptor a Dispatcher polls. On
// Unix it is a file descriptor; on Windows it is a SOCKET/HANDLE value. The
// zero value does not mean "no handle" (0 is a valid Unix fd); use
// InvalidHandle.
type OsHandle uintptr

// InvalidHandle means "don't poll via descriptor, use the platform
// alternative" (Windows event objects).
const InvalidHandle OsHandle = ^OsHandle(0)

// ConnState is the logical lifecycle state of a PhysicalSocket. Transitions
// are one-way during a normal lifetime: Closed -> Connecting -> Connected ->
// Closed. A listener moves Closed -> Connecting on Listen and stays there
// until closed.
type ConnState int

const (
	Closed ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}
