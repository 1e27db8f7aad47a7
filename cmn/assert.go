package cmn

import "fmt"

// Assert panics if cond is false. Reserved for invariant violations that
// indicate a programmer error (e.g. a planner producing a duplicate
// source URI) -- never for user-input validation, which must return a
// typed error instead.
func Assert(cond bool) {
	if !cond {
		panic("assertion failed")
	}
}

// AssertMsg is Assert with a formatted panic message.
func AssertMsg(cond bool, msg string) {
	if !cond {
		panic("assertion failed: " + msg)
	}
}

// AssertNoErr panics if err != nil. Reserved for errors that the caller
// has already proven cannot occur (e.g. re-parsing a URL this package
// itself constructed).
func AssertNoErr(err error) {
	if err != nil {
		panic(fmt.Sprintf("unexpected error: %v", err))
	}
}
