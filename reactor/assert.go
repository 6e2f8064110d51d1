// Author: momentics <momentics@gmail.com>
//
// Debug-assert helper: programmer errors are asserted under the
// reactordebug build tag and silently ignored otherwise, for forward
// compatibility with callers that don't rebuild in lockstep.

//go:build !reactordebug

package reactor

// Assert is a no-op in release builds.
func Assert(cond bool, msg string) {}
