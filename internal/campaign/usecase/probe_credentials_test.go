package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shandysiswandi/gosend/internal/pkg/goerror"
	"github.com/shandysiswandi/gosend/internal/pkg/mail"
	"github.com/stretchr/testify/assert"
)

func TestProbeCredentials(t *testing.T) {
	rejected := &mail.Error{Kind: mail.ErrAuth, Op: "auth", Err: errors.New("535 bad credentials"), Code: 535, CredentialsRejected: true}

	tests := []struct {
		name       string
		in         ProbeCredentialsInput
		openErr    error
		secureErr  error
		authErr    error
		wantCode   goerror.Code
		wantMsg    string
		wantErr    bool
		wantClosed int
	}{
		{
			name:       "accepted",
			in:         ProbeCredentialsInput{SenderAddress: " sender@example.com ", SenderSecret: "app-password"},
			wantClosed: 1,
		},
		{
			name:     "invalid input",
			in:       ProbeCredentialsInput{SenderAddress: "nobody"},
			wantErr:  true,
			wantCode: goerror.CodeInvalidInput,
		},
		{
			name:     "connect failure",
			in:       ProbeCredentialsInput{SenderAddress: "sender@example.com", SenderSecret: "x"},
			openErr:  errors.New("dial smtp.example.com:587: connection refused"),
			wantErr:  true,
			wantCode: goerror.CodeInternal,
			wantMsg:  "dial smtp.example.com:587: connection refused",
		},
		{
			name:       "secure channel failure",
			in:         ProbeCredentialsInput{SenderAddress: "sender@example.com", SenderSecret: "x"},
			secureErr:  errors.New("starttls: not supported"),
			wantErr:    true,
			wantCode:   goerror.CodeInternal,
			wantClosed: 1,
		},
		{
			name:       "credentials rejected",
			in:         ProbeCredentialsInput{SenderAddress: "sender@example.com", SenderSecret: "wrong"},
			authErr:    rejected,
			wantErr:    true,
			wantCode:   goerror.CodeUnauthorized,
			wantMsg:    "Authentication failed. For Gmail, use an App Password: https://example.com/app-passwords",
			wantClosed: 1,
		},
		{
			name:       "temporary auth failure",
			in:         ProbeCredentialsInput{SenderAddress: "sender@example.com", SenderSecret: "app-password"},
			authErr:    &mail.Error{Kind: mail.ErrAuth, Op: "auth", Err: errors.New("454 Temporary authentication failure"), Code: 454},
			wantErr:    true,
			wantCode:   goerror.CodeInternal,
			wantMsg:    "auth: 454 Temporary authentication failure",
			wantClosed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			sess := &fakeSession{secureErr: tt.secureErr, authErr: tt.authErr}
			relay := newFakeRelay(sess)
			relay.openErr = tt.openErr
			env := newTestEnv(t, relay)

			// Act
			err := env.uc.ProbeCredentials(context.Background(), tt.in)

			// Assert
			if !tt.wantErr {
				assert.NoError(t, err)
				assert.Equal(t, 5*time.Second, relay.timeout.Load())
			} else {
				ge := assertCode(t, err, tt.wantCode)
				if tt.wantMsg != "" {
					assert.Equal(t, tt.wantMsg, ge.Msg())
				}
			}
			assert.Empty(t, sess.submitted)
			assert.Equal(t, tt.wantClosed, sess.closeCount())
		})
	}

	t.Run("auth rejection keeps the cause", func(t *testing.T) {
		sess := &fakeSession{authErr: rejected}
		env := newTestEnv(t, newFakeRelay(sess))

		err := env.uc.ProbeCredentials(context.Background(), ProbeCredentialsInput{SenderAddress: "sender@example.com", SenderSecret: "wrong"})

		assert.ErrorIs(t, err, mail.ErrAuth)
		assert.True(t, mail.CredentialsRejected(err))
	})
}
