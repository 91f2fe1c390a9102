// Package mail composes outbound messages and drives an authenticated
// submission session against an SMTP relay.
//
// A Session moves through an explicit state machine:
//
//	Unconnected -> Connected -> Secured -> Authenticated -> Closed
//
// Any failure moves it to Failed. Calling an operation from the wrong state is
// a programming error and panics. Close is valid from every state and may be
// called more than once.
//
// Message composition is handled by Builder, which produces a
// multipart/mixed document with a plain-text part and one binary attachment.
package mail
