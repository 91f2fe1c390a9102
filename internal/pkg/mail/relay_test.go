package mail

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/require"
)

// testRelay is an in-process submission server used by session tests.
type testRelay struct {
	mu        sync.Mutex
	user      string
	pass      string
	authReply *smtp.SMTPError
	rejectTo  map[string]bool
	delivered []delivery

	host string
	port int
}

type delivery struct {
	from string
	to   []string
	data []byte
}

func (r *testRelay) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &testSession{relay: r}, nil
}

func (r *testRelay) deliveries() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.delivered...)
}

type testSession struct {
	relay  *testRelay
	authed bool
	from   string
	to     []string
}

func (s *testSession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *testSession) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(_, username, password string) error {
		if username != s.relay.user || password != s.relay.pass {
			if s.relay.authReply != nil {
				return s.relay.authReply
			}
			return &smtp.SMTPError{Code: 535, EnhancedCode: smtp.EnhancedCode{5, 7, 8}, Message: "Invalid credentials"}
		}
		s.authed = true
		return nil
	}), nil
}

func (s *testSession) Mail(from string, _ *smtp.MailOptions) error {
	if !s.authed {
		return smtp.ErrAuthRequired
	}
	s.from = from
	return nil
}

func (s *testSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	if s.relay.rejectTo[to] {
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "No such user"}
	}
	s.to = append(s.to, to)
	return nil
}

func (s *testSession) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	s.relay.mu.Lock()
	s.relay.delivered = append(s.relay.delivered, delivery{from: s.from, to: s.to, data: b})
	s.relay.mu.Unlock()
	return nil
}

func (s *testSession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *testSession) Logout() error {
	return nil
}

type relayOption func(*smtp.Server, *testRelay)

func withoutTLS() relayOption {
	return func(s *smtp.Server, _ *testRelay) {
		s.TLSConfig = nil
	}
}

func withAuthReply(reply *smtp.SMTPError) relayOption {
	return func(_ *smtp.Server, r *testRelay) {
		r.authReply = reply
	}
}

func withRejectedRecipient(addr string) relayOption {
	return func(_ *smtp.Server, r *testRelay) {
		r.rejectTo[addr] = true
	}
}

func startTestRelay(t *testing.T, opts ...relayOption) *testRelay {
	t.Helper()

	relay := &testRelay{
		user:     "sender@example.com",
		pass:     "app-password",
		rejectTo: map[string]bool{},
	}

	srv := smtp.NewServer(relay)
	srv.Domain = "localhost"
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second
	srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{selfSignedCert(t)}}
	for _, opt := range opts {
		opt(srv, relay)
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		//nolint:errcheck // returns on Close
		srv.Serve(l)
	}()
	t.Cleanup(func() {
		//nolint:errcheck // test teardown
		srv.Close()
	})

	host, port, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	relay.host = host
	relay.port, err = strconv.Atoi(port)
	require.NoError(t, err)

	return relay
}

func (r *testRelay) dialer(t *testing.T) *Dialer {
	t.Helper()

	d, err := NewDialer(DialerConfig{
		Host: r.host,
		Port: r.port,
		//nolint:gosec // self-signed test certificate
		TLSConfig: &tls.Config{InsecureSkipVerify: true},
	})
	require.NoError(t, err)
	return d
}

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:     []string{"localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}
