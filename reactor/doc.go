// Author: momentics <momentics@gmail.com>

// Package reactor implements a cross-platform, non-blocking socket I/O
// reactor: a dispatcher registry, a readiness-polling Wait loop, cross-thread
// wakeup, and (on Unix) a signal-handler-safe bridge for POSIX signals into
// the loop. It is the substrate higher-level transports are built on; it
// does not itself parse addresses, resolve names, or speak an application
// protocol.
package reactor
