package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/sethvargo/go-retry"
	"go.uber.org/atomic"
)

const (
	// DefaultTimeout bounds dialing and every protocol exchange when the
	// caller does not supply a timeout.
	DefaultTimeout = 30 * time.Second

	defaultConnectBackoff = 500 * time.Millisecond

	// localName is announced in the EHLO sent over the upgraded channel.
	localName = "localhost"

	// smtpTLSNotAvailable is the STARTTLS reply for a temporary TLS outage.
	smtpTLSNotAvailable = 454
	// startTLSUnsupportedReply is how go-smtp reports a relay that does not
	// advertise STARTTLS.
	startTLSUnsupportedReply = "doesn't support STARTTLS"
)

// State is the lifecycle position of a Session.
type State int

const (
	// StateUnconnected is the zero state before a channel is open.
	StateUnconnected State = iota
	// StateConnected means the TCP channel is open and the greeting is
	// still unread.
	StateConnected
	// StateSecured means the channel was upgraded with STARTTLS.
	StateSecured
	// StateAuthenticated means the relay accepted the credentials.
	StateAuthenticated
	// StateClosed means the session was released.
	StateClosed
	// StateFailed means a step failed and the session can only be closed.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnected:
		return "connected"
	case StateSecured:
		return "secured"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DialerConfig configures a Dialer.
type DialerConfig struct {
	// Host is the relay hostname; it is also the TLS server name.
	Host string
	// Port is the submission port, usually 587.
	Port int
	// TLSConfig is cloned for every STARTTLS upgrade.
	TLSConfig *tls.Config
	// ConnectAttempts is the number of dial attempts. Defaults to 1.
	ConnectAttempts uint64
	// ConnectBackoff is the pause between dial attempts.
	ConnectBackoff time.Duration
}

// Dialer opens sessions against one relay.
type Dialer struct {
	addr      string
	host      string
	tlsConfig *tls.Config
	attempts  uint64
	backoff   time.Duration
	netDialer *net.Dialer
}

// NewDialer validates cfg and returns a Dialer.
func NewDialer(cfg DialerConfig) (*Dialer, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, ErrHostPortRequired
	}

	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.TLSConfig != nil {
		tlsConfig = cfg.TLSConfig.Clone()
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = cfg.Host
	}

	attempts := cfg.ConnectAttempts
	if attempts == 0 {
		attempts = 1
	}

	backoff := cfg.ConnectBackoff
	if backoff <= 0 {
		backoff = defaultConnectBackoff
	}

	return &Dialer{
		addr:      net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		host:      cfg.Host,
		tlsConfig: tlsConfig,
		attempts:  attempts,
		backoff:   backoff,
		netDialer: &net.Dialer{},
	}, nil
}

// Host returns the relay hostname.
func (d *Dialer) Host() string {
	return d.host
}

// Open dials the relay. The greeting is read by Secure.
//
// ctx bounds the whole session: when it is done the underlying connection is
// closed and any pending exchange fails. timeout bounds each dial attempt and
// each protocol exchange.
func (d *Dialer) Open(ctx context.Context, timeout time.Duration) (*Session, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var conn net.Conn
	b := retry.WithMaxRetries(d.attempts-1, retry.NewConstant(d.backoff))
	if err := retry.Do(ctx, b, func(ctx context.Context) error {
		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		c, err := d.netDialer.DialContext(dialCtx, "tcp", d.addr)
		if err != nil {
			return retry.RetryableError(err)
		}

		conn = c
		return nil
	}); err != nil {
		return nil, newError(ErrConnect, "dial "+d.addr, err)
	}

	stop := context.AfterFunc(ctx, func() {
		//nolint:errcheck,gosec // unblocks pending exchanges
		conn.Close()
	})

	return &Session{
		conn:      conn,
		tlsConfig: d.tlsConfig,
		timeout:   timeout,
		stop:      stop,
		state:     StateConnected,
		closed:    atomic.NewBool(false),
	}, nil
}

// Session is one authenticated submission channel.
//
// A Session is owned by a single goroutine.
type Session struct {
	conn      net.Conn
	client    *smtp.Client
	tlsConfig *tls.Config
	timeout   time.Duration
	stop      func() bool
	state     State
	closed    *atomic.Bool
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Usable reports whether Submit may be called.
func (s *Session) Usable() bool {
	return s.state == StateAuthenticated
}

// Secure reads the relay greeting, exchanges EHLO and upgrades the channel
// with STARTTLS. A refused greeting or a dropped channel is reported as
// ErrConnect; a missing or failed upgrade as ErrTLS.
func (s *Session) Secure() error {
	s.require("Secure", StateConnected)

	//nolint:errcheck,gosec // a dead conn fails the exchange below
	s.conn.SetDeadline(time.Now().Add(s.timeout))

	client, err := smtp.NewClientStartTLS(s.conn, s.tlsConfig.Clone())
	if err != nil {
		s.state = StateFailed
		return secureError(err)
	}

	// the handshake runs with the first command over the upgraded channel
	if err := client.Hello(localName); err != nil {
		s.state = StateFailed
		//nolint:errcheck,gosec // best effort
		client.Close()
		return newError(ErrTLS, "starttls", err)
	}

	//nolint:errcheck,gosec // the client sets its own deadlines from here on
	s.conn.SetDeadline(time.Time{})
	client.CommandTimeout = s.timeout
	client.SubmissionTimeout = s.timeout

	s.client = client
	s.state = StateSecured
	return nil
}

// secureError classifies a failure of the greeting/EHLO/STARTTLS exchange.
func secureError(err error) error {
	var (
		smtpErr *smtp.SMTPError
		netErr  net.Error
	)
	switch {
	case strings.Contains(err.Error(), startTLSUnsupportedReply):
		return newError(ErrTLS, "starttls", errStartTLSUnsupported)
	case errors.As(err, &smtpErr) && smtpErr.Code == smtpTLSNotAvailable:
		return newError(ErrTLS, "starttls", err)
	case errors.As(err, &smtpErr), errors.Is(err, io.EOF), errors.As(err, &netErr):
		return newError(ErrConnect, "greeting", err)
	default:
		return newError(ErrTLS, "starttls", err)
	}
}

// Authenticate performs SASL PLAIN with the given credentials.
func (s *Session) Authenticate(identity, secret string) error {
	s.require("Authenticate", StateSecured)

	if err := s.client.Auth(sasl.NewPlainClient("", identity, secret)); err != nil {
		s.state = StateFailed
		return newAuthError(err)
	}

	s.state = StateAuthenticated
	return nil
}

// Submit hands one message to the relay.
//
// A rejection of the envelope or the content leaves the session usable. A
// broken channel moves it to StateFailed.
func (s *Session) Submit(msg *Outbound) error {
	s.require("Submit", StateAuthenticated)

	if err := s.client.Mail(msg.From, nil); err != nil {
		return s.rejected("mail from", err, true)
	}

	if err := s.client.Rcpt(msg.To, nil); err != nil {
		return s.rejected("rcpt to", err, true)
	}

	w, err := s.client.Data()
	if err != nil {
		return s.rejected("data", err, true)
	}

	if _, err := w.Write(msg.Data); err != nil {
		s.state = StateFailed
		return newError(ErrSubmit, "data", err)
	}

	if err := w.Close(); err != nil {
		return s.rejected("data", err, false)
	}

	return nil
}

// Close releases the session. It is valid from every state, never fails, and
// only the first call has an effect.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	if s.stop != nil {
		s.stop()
	}

	switch {
	case s.client == nil:
		//nolint:errcheck,gosec // best effort
		s.conn.Close()
	case s.state != StateFailed:
		//nolint:errcheck,gosec // best effort
		s.client.Quit()
		fallthrough
	default:
		//nolint:errcheck,gosec // best effort
		s.client.Close()
	}

	s.state = StateClosed
}

func (s *Session) rejected(op string, err error, reset bool) error {
	var smtpErr *smtp.SMTPError
	switch {
	case !errors.As(err, &smtpErr):
		s.state = StateFailed
	case reset:
		if rerr := s.client.Reset(); rerr != nil {
			s.state = StateFailed
		}
	}

	return newError(ErrSubmit, op, err)
}

func (s *Session) require(op string, want State) {
	if s.state != want {
		panic(fmt.Sprintf("mail: %s called in state %s, want %s", op, s.state, want))
	}
}
