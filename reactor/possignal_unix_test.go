// Author: momentics <momentics@gmail.com>

//go:build !windows

package reactor

import (
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// TestPosixSignalDelivery is scenario S7: a POSIX signal raised against the
// running process is delivered to the registered handler on the loop
// thread within one Wait pass.
func TestPosixSignalDelivery(t *testing.T) {
	r := NewReactor()

	delivered := make(chan int, 1)
	signum := int(unix.SIGUSR1)
	if err := r.SetPosixSignalHandler(signum, func(s int) {
		delivered <- s
	}); err != nil {
		t.Fatalf("SetPosixSignalHandler: %v", err)
	}
	defer r.SetPosixSignalHandler(signum, nil)

	done := make(chan bool, 1)
	go func() { done <- r.Wait(5000, true) }()

	time.Sleep(20 * time.Millisecond)
	if err := unix.Kill(os.Getpid(), unix.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case got := <-delivered:
		if got != signum {
			t.Fatalf("delivered signum = %d, want %d", got, signum)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal handler was not invoked")
	}

	r.WakeUp()
	<-done
}

// TestPosixSignalOutOfRangeRejected checks that an out-of-range signum
// returns an error rather than panicking in release builds.
func TestPosixSignalOutOfRangeRejected(t *testing.T) {
	r := NewReactor()
	if err := r.SetPosixSignalHandler(-1, func(int) {}); err == nil {
		t.Fatal("expected an error for a negative signum")
	}
	if err := r.SetPosixSignalHandler(numPosixSignals, func(int) {}); err == nil {
		t.Fatal("expected an error for a signum >= numPosixSignals")
	}
}

// TestPosixSignalRemovalDropsDispatcher verifies that clearing the last
// handler for a signum removes the shared PosixSignalDispatcher from the
// reactor registry.
func TestPosixSignalRemovalDropsDispatcher(t *testing.T) {
	r := NewReactor()
	signum := int(unix.SIGUSR2)
	before := r.Len()

	if err := r.SetPosixSignalHandler(signum, func(int) {}); err != nil {
		t.Fatalf("SetPosixSignalHandler: %v", err)
	}
	if r.Len() != before+1 {
		t.Fatalf("Len() after registering a handler = %d, want %d", r.Len(), before+1)
	}

	if err := r.SetPosixSignalHandler(signum, nil); err != nil {
		t.Fatalf("SetPosixSignalHandler(nil): %v", err)
	}
	if r.Len() != before {
		t.Fatalf("Len() after clearing the only handler = %d, want %d", r.Len(), before)
	}
}
