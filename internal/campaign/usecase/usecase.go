package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/gosend/internal/pkg/clock"
	"github.com/shandysiswandi/gosend/internal/pkg/config"
	"github.com/shandysiswandi/gosend/internal/pkg/goroutine"
	"github.com/shandysiswandi/gosend/internal/pkg/idempotency"
	"github.com/shandysiswandi/gosend/internal/pkg/instrument"
	"github.com/shandysiswandi/gosend/internal/pkg/mail"
	"github.com/shandysiswandi/gosend/internal/pkg/uid"
	"github.com/shandysiswandi/gosend/internal/pkg/validator"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultConnectTimeout = 30 * time.Second
	defaultProbeTimeout   = 10 * time.Second
	defaultIdempotencyTTL = time.Hour
	defaultPacingInterval = time.Second
	defaultAppPasswordURL = "https://myaccount.google.com/apppasswords"
)

// RelaySession is one relay channel exclusively owned by a dispatch run or a
// credential probe.
type RelaySession interface {
	Secure(ctx context.Context) error
	Authenticate(ctx context.Context, identity, secret string) error
	Submit(ctx context.Context, msg *mail.Outbound) error
	Usable() bool
	Close()
}

type repoRelay interface {
	Host() string
	Open(ctx context.Context, timeout time.Duration) (RelaySession, error)
}

type messageBuilder interface {
	Build(msg mail.Message) (*mail.Outbound, error)
}

type Usecase struct {
	relay     repoRelay
	builder   messageBuilder
	idemp     idempotency.Idempotency
	cfg       config.Config
	uuid      uid.StringID
	clock     clock.Clocker
	goroutine *goroutine.Manager
	validator validator.Validator
	ins       instrument.Instrumentation

	recipientCounter metric.Int64Counter
	runCounter       metric.Int64Counter
}

type Dependency struct {
	RepoRelay  repoRelay
	Builder    messageBuilder
	// Idempotency is optional; nil disables Idempotency-Key handling.
	Idempotency idempotency.Idempotency
	Config      config.Config
	UUID        uid.StringID
	Clock       clock.Clocker
	Goroutine   *goroutine.Manager
	Validator   validator.Validator
	Instrument  instrument.Instrumentation
}

func NewCampaign(dep Dependency) *Usecase {
	meter := dep.Instrument.Meter("campaign.usecase")

	recipientCounter, err := meter.Int64Counter("campaign.recipients", metric.WithDescription("Recipients processed by dispatch runs"))
	if err != nil {
		slog.Error("failed to create campaign recipient counter", "error", err)
	}

	runCounter, err := meter.Int64Counter("campaign.runs", metric.WithDescription("Dispatch runs by result"))
	if err != nil {
		slog.Error("failed to create campaign run counter", "error", err)
	}

	return &Usecase{
		relay:            dep.RepoRelay,
		builder:          dep.Builder,
		idemp:            dep.Idempotency,
		cfg:              dep.Config,
		uuid:             dep.UUID,
		clock:            dep.Clock,
		goroutine:        dep.Goroutine,
		validator:        dep.Validator,
		ins:              dep.Instrument,
		recipientCounter: recipientCounter,
		runCounter:       runCounter,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("campaign.usecase").Start(ctx, name)
}

func (s *Usecase) countRecipient(ctx context.Context, outcome, reason string) {
	if s.recipientCounter == nil {
		return
	}

	attrs := []attribute.KeyValue{attribute.String("outcome", outcome)}
	if reason != "" {
		attrs = append(attrs, attribute.String("reason", reason))
	}
	s.recipientCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (s *Usecase) countRun(ctx context.Context, result runResult) {
	if s.runCounter == nil {
		return
	}
	s.runCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result.String())))
}

func (s *Usecase) durationOr(key string, fallback time.Duration) time.Duration {
	if d := s.cfg.GetSecond(key); d > 0 {
		return d
	}
	return fallback
}

// pacingInterval falls back to defaultPacingInterval only when the key is
// absent. An explicit 0 disables the pause between recipients.
func (s *Usecase) pacingInterval() time.Duration {
	const key = "modules.campaign.pacing_interval_ms"
	if s.cfg.GetString(key) == "" {
		return defaultPacingInterval
	}
	return s.cfg.GetMillisecond(key)
}

func (s *Usecase) idempotencyTTL() time.Duration {
	if d := s.cfg.GetMinute("modules.campaign.idempotency_ttl_minutes"); d > 0 {
		return d
	}
	return defaultIdempotencyTTL
}

func (s *Usecase) appPasswordURL() string {
	if u := s.cfg.GetString("relay.app_password_url"); u != "" {
		return u
	}
	return defaultAppPasswordURL
}
