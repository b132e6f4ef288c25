package diag

import (
	"fmt"
	"runtime"
)

// Assertf checks an internal invariant. In this implementation debug
// assertions are never elided (spec.md §7 allows eliding them in
// release builds, but names post-SSA form and colorability as the ones
// worth keeping as fatal regardless — here every assertion is treated
// as one of those, since a middle-end that silently continues past a
// broken invariant produces silently wrong assembly). A failing
// assertion logs through the package's Handler, carrying the caller's
// file/line/function, then panics.
func Assertf(cond bool, format string, args ...any) {
	if cond {
		return
	}
	msg := fmt.Sprintf(format, args...)
	file, line, fn := caller(2)
	Default().Error(msg, "file", file, "line", line, "func", fn)
	panic(fmt.Sprintf("%s:%d: %s: %s", file, line, fn, msg))
}

func caller(skip int) (file string, line int, fn string) {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "?", 0, "?"
	}
	f := runtime.FuncForPC(pc)
	if f == nil {
		return file, line, "?"
	}
	return file, line, f.Name()
}
