package relay

import (
	"context"
	"time"

	"github.com/shandysiswandi/gosend/internal/campaign/usecase"
	"github.com/shandysiswandi/gosend/internal/pkg/instrument"
	"github.com/shandysiswandi/gosend/internal/pkg/mail"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "campaign.outbound.relay"

type Relay struct {
	dialer *mail.Dialer
	ins    instrument.Instrumentation
}

func New(dialer *mail.Dialer, ins instrument.Instrumentation) *Relay {
	return &Relay{dialer: dialer, ins: ins}
}

func (r *Relay) Host() string {
	return r.dialer.Host()
}

func (r *Relay) Open(ctx context.Context, timeout time.Duration) (usecase.RelaySession, error) {
	ctx, span := r.ins.Tracer(tracerName).Start(ctx, "Open")
	defer span.End()
	span.SetAttributes(attribute.String("relay.host", r.dialer.Host()))

	sess, err := r.dialer.Open(ctx, timeout)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	return &Session{sess: sess, ins: r.ins}, nil
}

// Session traces each step of a mail.Session.
type Session struct {
	sess *mail.Session
	ins  instrument.Instrumentation
}

func (s *Session) Secure(ctx context.Context) error {
	_, span := s.ins.Tracer(tracerName).Start(ctx, "Secure")
	defer span.End()

	if err := s.sess.Secure(); err != nil {
		recordError(span, err)
		return err
	}

	return nil
}

func (s *Session) Authenticate(ctx context.Context, identity, secret string) error {
	_, span := s.ins.Tracer(tracerName).Start(ctx, "Authenticate")
	defer span.End()

	if err := s.sess.Authenticate(identity, secret); err != nil {
		recordError(span, err)
		return err
	}

	return nil
}

func (s *Session) Submit(ctx context.Context, msg *mail.Outbound) error {
	_, span := s.ins.Tracer(tracerName).Start(ctx, "Submit")
	defer span.End()

	if err := s.sess.Submit(msg); err != nil {
		recordError(span, err)
		return err
	}

	return nil
}

func (s *Session) Usable() bool {
	return s.sess.Usable()
}

func (s *Session) State() mail.State {
	return s.sess.State()
}

func (s *Session) Close() {
	s.sess.Close()
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
