package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shandysiswandi/gosend/internal/campaign/entity"
	"github.com/shandysiswandi/gosend/internal/pkg/goerror"
	"github.com/shandysiswandi/gosend/internal/pkg/idempotency"
	"go.opentelemetry.io/otel/attribute"
)

type StartCampaignInput struct {
	SenderAddress  string   `validate:"required,email,max=254"`
	SenderName     string   `validate:"max=100"`
	SenderSecret   string   `validate:"required"`
	Subject        string   `validate:"required,max=200"`
	Body           string   `validate:"required,max=5000"`
	Recipients     []string `validate:"required,min=1,dive,required"`
	AttachmentName string   `validate:"required,pdf"`
	Attachment     []byte   `validate:"required,pdf"`
	IdempotencyKey string   `validate:"max=128"`
}

// StartCampaign validates the request and launches a dispatch run. The
// returned channel delivers the run's events in order and is closed when the
// run ends. Cancelling ctx abandons the run.
func (s *Usecase) StartCampaign(ctx context.Context, in StartCampaignInput) (<-chan entity.Event, error) {
	ctx, span := s.startSpan(ctx, "StartCampaign")
	defer span.End()

	in.SenderAddress = strings.TrimSpace(in.SenderAddress)
	in.SenderName = strings.TrimSpace(in.SenderName)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)

	if err := s.validator.Validate(in); err != nil {
		return nil, goerror.NewInvalidInput(err)
	}

	if limit := s.cfg.GetInt("modules.campaign.max_recipients"); limit > 0 && len(in.Recipients) > limit {
		return nil, goerror.NewInvalidInput(nil, "recipients", fmt.Sprintf("Maximum %d recipients allowed", limit))
	}

	if limit := s.cfg.GetInt64("modules.campaign.max_attachment_bytes"); limit > 0 && int64(len(in.Attachment)) > limit {
		return nil, goerror.NewInvalidInput(nil, "attachment", "File is too large")
	}

	key, err := s.acquire(ctx, in.SenderAddress, in.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	c := entity.Campaign{
		ID: s.uuid.Generate(),
		Sender: entity.Sender{
			Address:     in.SenderAddress,
			DisplayName: in.SenderName,
			Secret:      in.SenderSecret,
		},
		Subject:    in.Subject,
		Body:       in.Body,
		Recipients: in.Recipients,
		Attachment: entity.Attachment{
			Filename: in.AttachmentName,
			Content:  in.Attachment,
		},
	}

	d := newDispatch(c)
	d.relay = s.relay
	d.builder = s.builder
	d.clock = s.clock
	d.connectTimeout = s.durationOr("relay.connect_timeout_seconds", defaultConnectTimeout)
	d.pacing = s.pacingInterval()
	d.appPasswordURL = s.appPasswordURL()
	d.observe = s.countRecipient

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout := s.cfg.GetSecond("modules.campaign.run_timeout_seconds"); timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	started := s.goroutine.Go(runCtx, func(ctx context.Context) error {
		defer cancel()

		ctx, span := s.startSpan(ctx, "Dispatch")
		defer span.End()
		span.SetAttributes(
			attribute.String("campaign.id", c.ID),
			attribute.Int("campaign.recipients", c.Total()),
		)

		slog.InfoContext(ctx, "campaign started", "campaign_id", c.ID, "recipients", c.Total())
		start := s.clock.Now()

		result := d.run(ctx)

		slog.InfoContext(ctx, "campaign finished",
			"campaign_id", c.ID,
			"result", result.String(),
			"sent", d.counters.Sent,
			"failed", d.counters.Failed,
			"elapsed", s.clock.Now().Sub(start).String(),
		)
		s.finish(context.WithoutCancel(ctx), key, result)

		return nil
	})
	if !started {
		cancel()
		s.release(context.WithoutCancel(ctx), key)
		return nil, goerror.NewBusiness("Too many campaigns are running, try again later", goerror.CodeTooManyRequest)
	}

	return d.events, nil
}

// acquire claims the idempotency key for this run. It returns the scoped key,
// or an empty key when deduplication does not apply.
func (s *Usecase) acquire(ctx context.Context, sender, token string) (string, error) {
	if s.idemp == nil || token == "" {
		return "", nil
	}

	key := "campaign:" + strings.ToLower(sender) + ":" + token

	state, err := s.idemp.Acquire(ctx, key, s.lockDuration())
	if err != nil {
		slog.ErrorContext(ctx, "failed to acquire campaign idempotency key", "error", err)
		return "", goerror.NewServer(err)
	}

	switch state {
	case idempotency.StateNone:
		return key, nil
	case idempotency.StateInProgress:
		return "", goerror.NewBusiness("Campaign with this idempotency key is already running", goerror.CodeConflict)
	case idempotency.StateCompleted:
		return "", goerror.NewBusiness("Campaign with this idempotency key was already sent", goerror.CodeConflict)
	case idempotency.StateFailed:
		return "", goerror.NewBusiness("Campaign with this idempotency key was interrupted", goerror.CodeConflict)
	default:
		return "", goerror.NewServer(idempotency.ErrInvalidState)
	}
}

func (s *Usecase) lockDuration() time.Duration {
	if d := s.cfg.GetSecond("modules.campaign.run_timeout_seconds"); d > 0 {
		return d
	}
	return s.idempotencyTTL()
}

func (s *Usecase) finish(ctx context.Context, key string, result runResult) {
	s.countRun(ctx, result)

	if key == "" {
		return
	}

	var err error
	switch result {
	case runCompleted:
		err = s.idemp.MarkCompleted(ctx, key, s.idempotencyTTL())
	case runInterrupted:
		err = s.idemp.MarkFailed(ctx, key, s.idempotencyTTL())
	default:
		err = s.idemp.Release(ctx, key)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to update campaign idempotency state", "result", result.String(), "error", err)
	}
}

func (s *Usecase) release(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.idemp.Release(ctx, key); err != nil {
		slog.ErrorContext(ctx, "failed to release campaign idempotency key", "error", err)
	}
}
