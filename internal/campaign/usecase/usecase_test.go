package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/gosend/internal/campaign/entity"
	"github.com/shandysiswandi/gosend/internal/pkg/config"
	"github.com/shandysiswandi/gosend/internal/pkg/goroutine"
	"github.com/shandysiswandi/gosend/internal/pkg/idempotency"
	"github.com/shandysiswandi/gosend/internal/pkg/instrument"
	"github.com/shandysiswandi/gosend/internal/pkg/mail"
	"github.com/shandysiswandi/gosend/internal/pkg/uid"
	"github.com/shandysiswandi/gosend/internal/pkg/validator"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

const testConfig = `
modules:
  campaign:
    pacing_interval_ms: 1000
    max_recipients: 5
    max_attachment_bytes: 1024
relay:
  connect_timeout_seconds: 15
  probe_timeout_seconds: 5
  app_password_url: https://example.com/app-passwords
`

var testPDF = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n")

type fakeSession struct {
	secureErr error
	authErr   error
	submitErr map[string]error
	// unusableAfter makes Usable report false once this many submits happened.
	unusableAfter int

	mu        sync.Mutex
	submitted []string
	closed    int
}

func (f *fakeSession) Secure(context.Context) error { return f.secureErr }

func (f *fakeSession) Authenticate(context.Context, string, string) error { return f.authErr }

func (f *fakeSession) Submit(_ context.Context, msg *mail.Outbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submitted = append(f.submitted, msg.To)
	return f.submitErr[msg.To]
}

func (f *fakeSession) Usable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.unusableAfter == 0 || len(f.submitted) < f.unusableAfter
}

func (f *fakeSession) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed++
}

func (f *fakeSession) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}

type fakeRelay struct {
	openErr error
	session *fakeSession

	opens   *atomic.Int32
	timeout *atomic.Duration
}

func newFakeRelay(sess *fakeSession) *fakeRelay {
	return &fakeRelay{session: sess, opens: atomic.NewInt32(0), timeout: atomic.NewDuration(0)}
}

func (f *fakeRelay) Host() string { return "smtp.example.com" }

func (f *fakeRelay) Open(_ context.Context, timeout time.Duration) (RelaySession, error) {
	f.opens.Inc()
	f.timeout.Store(timeout)

	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.session, nil
}

type fakeClock struct {
	now    time.Time
	pauses *atomic.Int32
	last   *atomic.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		pauses: atomic.NewInt32(0),
		last:   atomic.NewDuration(0),
	}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.pauses.Inc()
	c.last.Store(d)

	ch := make(chan time.Time, 1)
	ch <- c.now.Add(d)
	return ch
}

type testEnv struct {
	uc    *Usecase
	relay *fakeRelay
	clock *fakeClock
	gm    *goroutine.Manager
}

type envOption func(*Dependency)

func withIdempotency(idemp idempotency.Idempotency) envOption {
	return func(d *Dependency) { d.Idempotency = idemp }
}

func withGoroutine(gm *goroutine.Manager) envOption {
	return func(d *Dependency) { d.Goroutine = gm }
}

func withConfigYAML(t *testing.T, yaml string) envOption {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml))
	require.NoError(t, err)
	return func(d *Dependency) { d.Config = cfg }
}

func newTestEnv(t *testing.T, relay *fakeRelay, opts ...envOption) *testEnv {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(testConfig))
	require.NoError(t, err)

	v, err := validator.NewV10Validator()
	require.NoError(t, err)

	clk := newFakeClock()
	dep := Dependency{
		RepoRelay:  relay,
		Builder:    mail.NewBuilder(clk),
		Config:     cfg,
		UUID:       uid.NewUUID(),
		Clock:      clk,
		Goroutine:  goroutine.NewManager(4),
		Validator:  v,
		Instrument: instrument.NewNoop(),
	}
	for _, opt := range opts {
		opt(&dep)
	}

	return &testEnv{uc: NewCampaign(dep), relay: relay, clock: clk, gm: dep.Goroutine}
}

func validInput(recipients ...string) StartCampaignInput {
	return StartCampaignInput{
		SenderAddress:  "sender@example.com",
		SenderName:     "Jane Doe",
		SenderSecret:   "app-password",
		Subject:        "Application",
		Body:           "Please find my CV attached.",
		Recipients:     recipients,
		AttachmentName: "cv.pdf",
		Attachment:     testPDF,
	}
}

func collect(t *testing.T, events <-chan entity.Event) []entity.Event {
	t.Helper()

	var got []entity.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatal("event stream did not close")
			return got
		}
	}
}

func info(msg string) entity.Event {
	return entity.Log{Message: msg, Severity: entity.SeverityInfo}
}

func success(msg string) entity.Event {
	return entity.Log{Message: msg, Severity: entity.SeveritySuccess}
}

func failure(msg string) entity.Event {
	return entity.Log{Message: msg, Severity: entity.SeverityError}
}
