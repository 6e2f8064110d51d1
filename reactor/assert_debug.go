// Author: momentics <momentics@gmail.com>

//go:build reactordebug

package reactor

// Assert panics with msg when cond is false. Only compiled with -tags
// reactordebug.
func Assert(cond bool, msg string) {
	if !cond {
		panic("reactor: assertion failed: " + msg)
	}
}
