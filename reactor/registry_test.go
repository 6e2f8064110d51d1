// Author: momentics <momentics@gmail.com>

package reactor

import (
	"sync"
	"testing"
)

// fakeDispatcher is a minimal in-memory Dispatcher for registry tests; it
// never touches a real descriptor.
type fakeDispatcher struct {
	name     string
	requests EventMask
	onEvent  func(d *fakeDispatcher, mask EventMask, errno int)

	mu     sync.Mutex
	events []EventMask
}

func (d *fakeDispatcher) RequestedEvents() EventMask { return d.requests }
func (d *fakeDispatcher) Descriptor() OsHandle        { return InvalidHandle }
func (d *fakeDispatcher) IsDescriptorClosed() bool    { return false }
func (d *fakeDispatcher) OnPreEvent(EventMask)        {}
func (d *fakeDispatcher) OnEvent(mask EventMask, errno int) {
	d.mu.Lock()
	d.events = append(d.events, mask)
	d.mu.Unlock()
	if d.onEvent != nil {
		d.onEvent(d, mask, errno)
	}
}

func (d *fakeDispatcher) seen() []EventMask {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]EventMask, len(d.events))
	copy(out, d.events)
	return out
}

func TestAddRejectsDuplicate(t *testing.T) {
	r := NewReactor()
	d := &fakeDispatcher{name: "a"}
	r.Add(d)
	r.Add(d)
	// wakeup signaler + d, not two copies of d.
	if got, want := r.Len(), 2; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	r := NewReactor()
	before := r.Len()
	r.Remove(&fakeDispatcher{name: "ghost"})
	if got := r.Len(); got != before {
		t.Fatalf("Remove of unregistered dispatcher changed Len(): %d -> %d", before, got)
	}
}

func TestRemoveDecrementsLaterCursors(t *testing.T) {
	r := NewReactor()
	a := &fakeDispatcher{name: "a"}
	b := &fakeDispatcher{name: "b"}
	c := &fakeDispatcher{name: "c"}
	r.Add(a)
	r.Add(b)
	r.Add(c)

	cursor := new(int)
	*cursor = 3 // pointing past a, b, c (index of c is 3: wakeup,a,b,c)
	r.mu.Lock()
	r.cursors = append(r.cursors, cursor)
	r.mu.Unlock()

	r.Remove(a) // index 1, strictly less than cursor(3): cursor decrements
	if *cursor != 2 {
		t.Fatalf("cursor after removing earlier dispatcher = %d, want 2", *cursor)
	}
}

// TestDispatchSelfRemovalDoesNotSkipNext checks that when a
// dispatcher removes itself from within OnEvent, the cursor must not
// advance past whatever now occupies that same index, so the next
// dispatcher in registration order is still visited in this pass.
func TestDispatchSelfRemovalDoesNotSkipNext(t *testing.T) {
	r := NewReactor()
	var b *fakeDispatcher
	a := &fakeDispatcher{name: "a"}
	a.onEvent = func(d *fakeDispatcher, mask EventMask, errno int) {
		r.Remove(d)
	}
	b = &fakeDispatcher{name: "b"}
	r.Add(a)
	r.Add(b)

	results := map[Dispatcher]passResult{
		a: {mask: EventRead},
		b: {mask: EventRead},
	}
	r.dispatch(results)

	if len(a.seen()) != 1 {
		t.Fatalf("a should have received exactly one event, got %d", len(a.seen()))
	}
	if len(b.seen()) != 1 {
		t.Fatalf("b should still be visited after a removes itself, got %d events", len(b.seen()))
	}
}

// TestDispatchOrderIsRegistrationOrder checks events for a pass are
// delivered in the order dispatchers were added.
func TestDispatchOrderIsRegistrationOrder(t *testing.T) {
	r := NewReactor()
	var order []string
	var mu sync.Mutex
	record := func(name string) func(*fakeDispatcher, EventMask, int) {
		return func(*fakeDispatcher, EventMask, int) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}
	a := &fakeDispatcher{name: "a", onEvent: record("a")}
	b := &fakeDispatcher{name: "b", onEvent: record("b")}
	c := &fakeDispatcher{name: "c", onEvent: record("c")}
	r.Add(a)
	r.Add(b)
	r.Add(c)

	r.dispatch(map[Dispatcher]passResult{
		a: {mask: EventRead},
		b: {mask: EventRead},
		c: {mask: EventRead},
	})

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("dispatch order = %v, want [a b c]", order)
	}
}

func TestLenCountsWakeupSignaler(t *testing.T) {
	r := NewReactor()
	if got, want := r.Len(), 1; got != want {
		t.Fatalf("a fresh Reactor should only contain its wakeup signaler: Len() = %d, want %d", got, want)
	}
}
