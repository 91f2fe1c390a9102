package mail

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOutbound(to string) *Outbound {
	return &Outbound{
		From: "sender@example.com",
		To:   to,
		Data: []byte("Subject: hi\r\n\r\nhello\r\n"),
	}
}

func TestNewDialer(t *testing.T) {
	_, err := NewDialer(DialerConfig{Host: "smtp.example.com"})
	assert.ErrorIs(t, err, ErrHostPortRequired)

	d, err := NewDialer(DialerConfig{Host: "smtp.example.com", Port: 587})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com", d.Host())
	assert.Equal(t, "smtp.example.com:587", d.addr)
	assert.Equal(t, "smtp.example.com", d.tlsConfig.ServerName)
	assert.Equal(t, uint64(1), d.attempts)
}

func TestSession_FullExchange(t *testing.T) {
	// Arrange
	relay := startTestRelay(t)
	ctx := context.Background()

	// Act
	sess, err := relay.dialer(t).Open(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateConnected, sess.State())

	require.NoError(t, sess.Secure())
	assert.Equal(t, StateSecured, sess.State())

	require.NoError(t, sess.Authenticate("sender@example.com", "app-password"))
	assert.True(t, sess.Usable())

	require.NoError(t, sess.Submit(testOutbound("one@example.com")))
	require.NoError(t, sess.Submit(testOutbound("two@example.com")))
	sess.Close()

	// Assert
	assert.Equal(t, StateClosed, sess.State())
	got := relay.deliveries()
	require.Len(t, got, 2)
	assert.Equal(t, "sender@example.com", got[0].from)
	assert.Equal(t, []string{"one@example.com"}, got[0].to)
	assert.Equal(t, []string{"two@example.com"}, got[1].to)
	assert.Contains(t, string(got[0].data), "hello")
}

func TestSession_RejectedRecipientKeepsSessionUsable(t *testing.T) {
	relay := startTestRelay(t, withRejectedRecipient("ghost@example.com"))

	sess, err := relay.dialer(t).Open(context.Background(), 5*time.Second)
	require.NoError(t, err)
	defer sess.Close()
	require.NoError(t, sess.Secure())
	require.NoError(t, sess.Authenticate("sender@example.com", "app-password"))

	err = sess.Submit(testOutbound("ghost@example.com"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubmit)

	var merr *Error
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "rcpt to", merr.Op)
	assert.Equal(t, 550, merr.Code)
	assert.True(t, sess.Usable())

	require.NoError(t, sess.Submit(testOutbound("real@example.com")))
	require.Len(t, relay.deliveries(), 1)
}

func TestSession_AuthenticationRejected(t *testing.T) {
	tests := []struct {
		name            string
		reply           *smtp.SMTPError
		wantAppPassword bool
	}{
		{
			name: "generic rejection",
		},
		{
			name: "app password signature",
			reply: &smtp.SMTPError{
				Code:         535,
				EnhancedCode: smtp.EnhancedCode{5, 7, 8},
				Message:      "Username and Password not accepted. Learn more at https://support.google.com/mail/?p=BadCredentials",
			},
			wantAppPassword: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []relayOption
			if tt.reply != nil {
				opts = append(opts, withAuthReply(tt.reply))
			}
			relay := startTestRelay(t, opts...)

			sess, err := relay.dialer(t).Open(context.Background(), 5*time.Second)
			require.NoError(t, err)
			require.NoError(t, sess.Secure())

			err = sess.Authenticate("sender@example.com", "wrong")

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrAuth)
			assert.True(t, CredentialsRejected(err))
			assert.Equal(t, tt.wantAppPassword, AppPasswordRequired(err))
			assert.Equal(t, StateFailed, sess.State())
			assert.False(t, sess.Usable())

			sess.Close()
			sess.Close()
			assert.Equal(t, StateClosed, sess.State())
		})
	}
}

func TestSession_SecureWithoutStartTLS(t *testing.T) {
	relay := startTestRelay(t, withoutTLS())

	sess, err := relay.dialer(t).Open(context.Background(), 5*time.Second)
	require.NoError(t, err)

	err = sess.Secure()

	assert.ErrorIs(t, err, ErrTLS)
	assert.Equal(t, StateFailed, sess.State())
	sess.Close()
}

func TestSession_SecureUntrustedCertificate(t *testing.T) {
	relay := startTestRelay(t)
	d, err := NewDialer(DialerConfig{Host: relay.host, Port: relay.port})
	require.NoError(t, err)

	sess, err := d.Open(context.Background(), 5*time.Second)
	require.NoError(t, err)

	err = sess.Secure()

	assert.ErrorIs(t, err, ErrTLS)
	assert.Equal(t, StateFailed, sess.State())
	sess.Close()
	assert.Equal(t, StateClosed, sess.State())
}

func TestSession_SecureGreetingRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("554 5.3.2 no service\r\n")) //nolint:errcheck // test relay
	}()

	_, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	d, err := NewDialer(DialerConfig{Host: "127.0.0.1", Port: p})
	require.NoError(t, err)

	sess, err := d.Open(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StateConnected, sess.State())

	err = sess.Secure()

	assert.ErrorIs(t, err, ErrConnect)
	assert.NotErrorIs(t, err, ErrTLS)
	assert.Equal(t, StateFailed, sess.State())
	sess.Close()
	assert.Equal(t, StateClosed, sess.State())
}

func TestSession_WrongStatePanics(t *testing.T) {
	relay := startTestRelay(t)

	sess, err := relay.dialer(t).Open(context.Background(), 5*time.Second)
	require.NoError(t, err)
	defer sess.Close()

	assert.Panics(t, func() {
		//nolint:errcheck // panics before returning
		sess.Submit(testOutbound("one@example.com"))
	})
	assert.Panics(t, func() {
		//nolint:errcheck // panics before returning
		sess.Authenticate("sender@example.com", "app-password")
	})
}

func TestDialer_OpenConnectFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	require.NoError(t, l.Close())

	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	d, err := NewDialer(DialerConfig{
		Host:            "127.0.0.1",
		Port:            p,
		ConnectAttempts: 2,
		ConnectBackoff:  10 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = d.Open(context.Background(), time.Second)

	assert.ErrorIs(t, err, ErrConnect)
	assert.False(t, CredentialsRejected(err))
}

func TestDialer_OpenCanceledContext(t *testing.T) {
	relay := startTestRelay(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := relay.dialer(t).Open(ctx, time.Second)

	assert.ErrorIs(t, err, ErrConnect)
}

func TestSession_ContextCancelBreaksChannel(t *testing.T) {
	relay := startTestRelay(t)
	ctx, cancel := context.WithCancel(context.Background())

	sess, err := relay.dialer(t).Open(ctx, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, sess.Secure())
	require.NoError(t, sess.Authenticate("sender@example.com", "app-password"))

	cancel()
	time.Sleep(50 * time.Millisecond)

	err = sess.Submit(testOutbound("one@example.com"))
	assert.ErrorIs(t, err, ErrSubmit)
	assert.False(t, sess.Usable())
	sess.Close()
	assert.Empty(t, relay.deliveries())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "authenticated", StateAuthenticated.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestErrSessionUnusable(t *testing.T) {
	assert.ErrorIs(t, ErrSessionUnusable, ErrSubmit)
	assert.NotErrorIs(t, ErrSessionUnusable, ErrAuth)
}
