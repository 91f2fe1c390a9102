package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shandysiswandi/gosend/internal/campaign/entity"
	"github.com/shandysiswandi/gosend/internal/pkg/clock"
	"github.com/shandysiswandi/gosend/internal/pkg/mail"
)

type runResult int

const (
	// runAborted means the run ended before the first recipient was attempted.
	runAborted runResult = iota
	// runInterrupted means the run stopped with recipients left unprocessed.
	runInterrupted
	runCompleted
)

func (r runResult) String() string {
	switch r {
	case runAborted:
		return "aborted"
	case runInterrupted:
		return "interrupted"
	case runCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

const (
	outcomeSent   = "sent"
	outcomeFailed = "failed"
)

// dispatch is a single campaign run. It owns its relay session and is the
// only writer of events.
type dispatch struct {
	campaign       entity.Campaign
	relay          repoRelay
	builder        messageBuilder
	clock          clock.Clocker
	connectTimeout time.Duration
	pacing         time.Duration
	appPasswordURL string
	observe        func(ctx context.Context, outcome, reason string)

	events   chan entity.Event
	counters entity.Counters
	session  RelaySession
}

func newDispatch(c entity.Campaign) *dispatch {
	return &dispatch{
		campaign: c,
		events:   make(chan entity.Event),
		counters: entity.Counters{Total: c.Total()},
	}
}

// run drives the whole campaign. The events channel is closed and the session
// released on every exit path.
func (d *dispatch) run(ctx context.Context) runResult {
	defer close(d.events)
	defer d.closeSession()

	if !d.info(ctx, "Starting email campaign...") ||
		!d.info(ctx, fmt.Sprintf("Connecting to SMTP server (%s)...", d.relay.Host())) {
		return runAborted
	}

	sess, err := d.relay.Open(ctx, d.connectTimeout)
	if err != nil {
		d.fail(ctx, "Connection failed: "+err.Error())
		return runAborted
	}
	d.session = sess

	if err := sess.Secure(ctx); err != nil {
		// the greeting is read while securing, a refused one is a connect failure
		if errors.Is(err, mail.ErrConnect) {
			d.fail(ctx, "Connection failed: "+err.Error())
		} else {
			d.fail(ctx, "Secure channel failed: "+err.Error())
		}
		return runAborted
	}

	if !d.info(ctx, "Authenticating...") {
		return runAborted
	}

	if err := sess.Authenticate(ctx, d.campaign.Sender.Address, d.campaign.Sender.Secret); err != nil {
		d.authFailed(ctx, err)
		return runAborted
	}

	if !d.success(ctx, "Successfully authenticated") ||
		!d.info(ctx, fmt.Sprintf("Sending to %d recipients...", d.counters.Total)) {
		return runAborted
	}

	for i, rcpt := range d.campaign.Recipients {
		position := i + 1

		if !d.emit(ctx, d.deliver(ctx, rcpt)) || !d.emit(ctx, d.counters.Progress(position)) {
			return runInterrupted
		}

		if position < d.counters.Total && !d.pause(ctx) {
			return runInterrupted
		}
	}

	summary := fmt.Sprintf("Campaign completed! Sent: %d, Failed: %d", d.counters.Sent, d.counters.Failed)
	if !d.success(ctx, summary) || !d.emit(ctx, d.counters.Complete()) {
		return runInterrupted
	}

	return runCompleted
}

func (d *dispatch) deliver(ctx context.Context, rcpt string) entity.Log {
	if !mail.IsValidAddress(rcpt) {
		d.counters.Failed++
		d.observe(ctx, outcomeFailed, "invalid_address")
		return entity.Log{Message: "Invalid email: " + rcpt, Severity: entity.SeverityError}
	}

	if err := d.send(ctx, rcpt); err != nil {
		d.counters.Failed++
		d.observe(ctx, outcomeFailed, failureReason(err))
		return entity.Log{Message: fmt.Sprintf("Failed to send to %s: %v", rcpt, err), Severity: entity.SeverityError}
	}

	d.counters.Sent++
	d.observe(ctx, outcomeSent, "")
	return entity.Log{Message: "Sent to: " + rcpt, Severity: entity.SeveritySuccess}
}

func (d *dispatch) send(ctx context.Context, rcpt string) error {
	msg, err := d.builder.Build(mail.Message{
		From:     d.campaign.Sender.Address,
		FromName: d.campaign.Sender.DisplayName,
		To:       rcpt,
		Subject:  d.campaign.Subject,
		TextBody: d.campaign.Body,
		Attachment: mail.Attachment{
			Filename: d.campaign.Attachment.Filename,
			Content:  d.campaign.Attachment.Content,
		},
	})
	if err != nil {
		return err
	}

	if !d.session.Usable() {
		return mail.ErrSessionUnusable
	}

	return d.session.Submit(ctx, msg)
}

func (d *dispatch) authFailed(ctx context.Context, err error) {
	if mail.AppPasswordRequired(err) {
		if d.fail(ctx, "Authentication failed! For Gmail, you need to use an App Password, not your regular password.") {
			d.fail(ctx, "Please go to "+d.appPasswordURL+" to generate one.")
		}
		return
	}

	d.fail(ctx, "Authentication failed: "+err.Error())
}

func (d *dispatch) pause(ctx context.Context) bool {
	if d.pacing <= 0 {
		return ctx.Err() == nil
	}

	select {
	case <-d.clock.After(d.pacing):
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *dispatch) closeSession() {
	if d.session != nil {
		d.session.Close()
	}
}

func (d *dispatch) info(ctx context.Context, msg string) bool {
	return d.emit(ctx, entity.Log{Message: msg, Severity: entity.SeverityInfo})
}

func (d *dispatch) success(ctx context.Context, msg string) bool {
	return d.emit(ctx, entity.Log{Message: msg, Severity: entity.SeveritySuccess})
}

func (d *dispatch) fail(ctx context.Context, msg string) bool {
	return d.emit(ctx, entity.Log{Message: msg, Severity: entity.SeverityError})
}

// emit blocks until the consumer takes ev. It reports false once the consumer
// is gone.
func (d *dispatch) emit(ctx context.Context, ev entity.Event) bool {
	select {
	case d.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, mail.ErrAttachment):
		return "attachment"
	case errors.Is(err, mail.ErrSubmit):
		return "submit"
	default:
		return "other"
	}
}
