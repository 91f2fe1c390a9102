package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shandysiswandi/gosend/internal/pkg/goerror"
	"github.com/shandysiswandi/gosend/internal/pkg/mail"
)

type ProbeCredentialsInput struct {
	SenderAddress string `validate:"required,email,max=254"`
	SenderSecret  string `validate:"required"`
}

// ProbeCredentials checks that the relay accepts the credentials without
// submitting any message.
func (s *Usecase) ProbeCredentials(ctx context.Context, in ProbeCredentialsInput) error {
	ctx, span := s.startSpan(ctx, "ProbeCredentials")
	defer span.End()

	in.SenderAddress = strings.TrimSpace(in.SenderAddress)

	if err := s.validator.Validate(in); err != nil {
		return goerror.NewInvalidInput(err)
	}

	sess, err := s.relay.Open(ctx, s.durationOr("relay.probe_timeout_seconds", defaultProbeTimeout))
	if err != nil {
		slog.WarnContext(ctx, "failed to connect to relay", "error", err)
		return goerror.NewBusinessWithCause(err, err.Error(), goerror.CodeInternal)
	}
	defer sess.Close()

	if err := sess.Secure(ctx); err != nil {
		slog.WarnContext(ctx, "failed to secure relay channel", "error", err)
		return goerror.NewBusinessWithCause(err, err.Error(), goerror.CodeInternal)
	}

	if err := sess.Authenticate(ctx, in.SenderAddress, in.SenderSecret); err != nil {
		if mail.CredentialsRejected(err) {
			msg := "Authentication failed. For Gmail, use an App Password: " + s.appPasswordURL()
			return goerror.NewBusinessWithCause(err, msg, goerror.CodeUnauthorized)
		}

		slog.WarnContext(ctx, "failed to authenticate with relay", "error", err)
		return goerror.NewBusinessWithCause(err, err.Error(), goerror.CodeInternal)
	}

	return nil
}
