package mail

import (
	"errors"
	"fmt"
	"strings"

	"github.com/emersion/go-smtp"
)

var (
	// ErrHostPortRequired is returned when the relay host or port is missing.
	ErrHostPortRequired = errors.New("smtp host and port are required")

	// ErrConnect classifies failures to reach the relay or read its greeting.
	ErrConnect = errors.New("relay connect failed")
	// ErrTLS classifies failures to upgrade the channel with STARTTLS.
	ErrTLS = errors.New("relay secure channel failed")
	// ErrAuth classifies credential rejections and auth exchange failures.
	ErrAuth = errors.New("relay authentication failed")
	// ErrSubmit classifies failures while handing one message to the relay.
	ErrSubmit = errors.New("relay submission failed")
	// ErrAttachment classifies failures to encode the attachment part.
	ErrAttachment = errors.New("attachment encoding failed")
	// ErrInvalidAddress marks a recipient rejected before any relay exchange.
	ErrInvalidAddress = errors.New("invalid address")

	errStartTLSUnsupported = errors.New("server does not advertise STARTTLS")
	errEmptyAttachment     = errors.New("attachment is empty")
)

// ErrSessionUnusable is returned for recipients that come after the channel
// broke. It matches ErrSubmit.
var ErrSessionUnusable error = &Error{
	Kind: ErrSubmit,
	Op:   "submit",
	Err:  errors.New("session is no longer authenticated"),
}

// credentialsNotAccepted is the reply fragment Gmail sends when an account
// password is used where an app password is required.
const credentialsNotAccepted = "Username and Password not accepted"

// Error carries the failing relay operation together with its cause.
//
// errors.Is matches an Error against its Kind sentinel.
type Error struct {
	// Kind is one of ErrConnect, ErrTLS, ErrAuth, ErrSubmit, ErrAttachment.
	Kind error
	// Op names the protocol step, e.g. "dial", "starttls", "rcpt to".
	Op string
	// Err is the underlying cause.
	Err error
	// Code is the SMTP reply code when the relay answered, zero otherwise.
	Code int
	// CredentialsRejected is set when the relay refused the credentials.
	CredentialsRejected bool
	// AppPasswordRequired is set when the rejection carries the provider
	// signature asking for an application-specific password.
	AppPasswordRequired bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the Kind of this error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func newError(kind error, op string, err error) *Error {
	e := &Error{Kind: kind, Op: op, Err: err}

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		e.Code = smtpErr.Code
	}

	return e
}

func newAuthError(err error) *Error {
	e := newError(ErrAuth, "auth", err)

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		e.CredentialsRejected = smtpErr.Code == 535 || smtpErr.Code == 534
		e.AppPasswordRequired = strings.Contains(smtpErr.Message, credentialsNotAccepted)
	}
	if !e.AppPasswordRequired && strings.Contains(err.Error(), credentialsNotAccepted) {
		e.AppPasswordRequired = true
	}
	if e.AppPasswordRequired {
		e.CredentialsRejected = true
	}

	return e
}

// AppPasswordRequired reports whether err is an authentication rejection
// that asks for an application-specific password.
func AppPasswordRequired(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.AppPasswordRequired
}

// CredentialsRejected reports whether err is a credential rejection.
func CredentialsRejected(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.CredentialsRejected
}
