// Author: momentics <momentics@gmail.com>
//
// Dispatcher registry shared by the Unix and Windows Wait loops. Grounded on
// PhysicalSocketServer::Add/Remove in physicalsocketserver.cc: an
// insertion-ordered slice under a mutex, duplicates rejected silently, and a
// set of live iterator cursors kept consistent across structural mutation —
// so a dispatcher removing itself mid-dispatch never causes the next
// dispatcher in line to be skipped.

package reactor

import "sync"

// Reactor owns the dispatcher registry and the Wait loop. The zero value is
// not usable; construct with NewReactor.
type Reactor struct {
	mu          sync.Mutex
	dispatchers []Dispatcher
	cursors     []*int
	waiting     bool

	wakeup           *BoolSignaler
	signalDispatcher *PosixSignalDispatcher // Unix only; nil until first SetPosixSignalHandler call

	slowPassThreshold int64 // nanoseconds; 0 disables the advisory log
}

// Option configures a Reactor at construction.
type Option func(*Reactor)

// WithSlowPassThreshold sets an advisory-only threshold (nanoseconds) above
// which a completed Wait pass is logged at Warn. It is never an assertion:
// a pass legitimately taking longer than the threshold while delivering
// many simultaneous events is expected behavior, not a programmer error.
func WithSlowPassThreshold(nanos int64) Option {
	return func(r *Reactor) { r.slowPassThreshold = nanos }
}

// NewReactor constructs a Reactor with its wakeup signaler already
// registered, matching PhysicalSocketServer's constructor.
func NewReactor(opts ...Option) *Reactor {
	r := &Reactor{}
	for _, opt := range opts {
		opt(r)
	}
	r.wakeup = newBoolSignaler(r, &r.waiting)
	r.add(r.wakeup)
	return r
}

// Add registers d if it is not already present. Safe from any thread.
func (r *Reactor) Add(d Dispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(d)
}

func (r *Reactor) add(d Dispatcher) {
	for _, existing := range r.dispatchers {
		if existing == d {
			return
		}
	}
	r.dispatchers = append(r.dispatchers, d)
}

// Remove deregisters d. A no-op if d isn't registered (release builds);
// asserts under -tags reactordebug. For every live cursor whose index is
// strictly greater than d's index, the cursor is decremented so the next
// loop iteration visits the correct next dispatcher.
func (r *Reactor) Remove(d Dispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := -1
	for i, existing := range r.dispatchers {
		if existing == d {
			index = i
			break
		}
	}
	if index < 0 {
		Assert(false, "Remove of unregistered dispatcher")
		return
	}
	r.dispatchers = append(r.dispatchers[:index], r.dispatchers[index+1:]...)
	for _, cursor := range r.cursors {
		if index < *cursor {
			*cursor--
		}
	}
}

// WakeUp interrupts a blocked Wait from any thread, causing it to return
// true having delivered zero socket events if nothing else was ready (S4).
func (r *Reactor) WakeUp() {
	r.wakeup.Signal()
}

// snapshot returns a read-only copy of the current dispatcher slice, used to
// build the fd-sets (or Windows event array) to poll. Taken and released
// entirely under the lock; it is not an iterator cursor and needs no
// adjustment on Remove.
func (r *Reactor) snapshot() []Dispatcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Dispatcher, len(r.dispatchers))
	copy(out, r.dispatchers)
	return out
}

// passResult is the event mask and errno computed for one dispatcher during
// a single poll pass.
type passResult struct {
	mask  EventMask
	errno int
}

// dispatch delivers the computed results to each affected dispatcher, in
// registration order, with the registry lock released while a handler runs.
// It walks the *live* registry by index behind a registered cursor so that
// a handler removing dispatchers mid-pass (via Remove, run on the loop
// thread or any other) leaves the cursor correctly positioned.
func (r *Reactor) dispatch(results map[Dispatcher]passResult) {
	if len(results) == 0 {
		return
	}
	cursor := new(int)
	r.mu.Lock()
	r.cursors = append(r.cursors, cursor)
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		for i, c := range r.cursors {
			if c == cursor {
				r.cursors = append(r.cursors[:i], r.cursors[i+1:]...)
				break
			}
		}
		r.mu.Unlock()
	}()

	for {
		r.mu.Lock()
		idx := *cursor
		if idx >= len(r.dispatchers) {
			r.mu.Unlock()
			return
		}
		d := r.dispatchers[idx]
		res, ok := results[d]
		r.mu.Unlock()

		if !ok {
			r.mu.Lock()
			if *cursor == idx {
				*cursor = idx + 1
			}
			r.mu.Unlock()
			continue
		}

		d.OnPreEvent(res.mask)
		d.OnEvent(res.mask, res.errno)

		r.mu.Lock()
		if idx < len(r.dispatchers) && r.dispatchers[idx] == d {
			// d is unmoved: nothing removed it or anything before it
			// this pass, so advance past it.
			if *cursor == idx {
				*cursor = idx + 1
			}
		}
		// else: d was removed (possibly by its own OnEvent). The cursor
		// was left pointing at idx by Remove (index == cursor doesn't
		// decrement), so the next loop iteration observes whatever now
		// occupies idx.
		r.mu.Unlock()
	}
}

// Len reports the number of registered dispatchers; test/diagnostic use.
func (r *Reactor) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.dispatchers)
}
