// Package clock provides a tiny time abstraction.
//
// Production code should depend on the Clocker interface instead of calling
// time.Now or time.After directly. Tests swap in a fake clock that returns a
// fixed time and fires waits immediately, so paced loops run without sleeping.
package clock
