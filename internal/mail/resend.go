package mail

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"

	"github.com/kisaansetu/kisaan-setu/internal/logger"
)

// emailSender is the part of resend's Emails service used here.
type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendMailer sends through the Resend API.
type ResendMailer struct {
	emails emailSender
	from   string
}

// NewResendMailer creates a mailer sending as "KisaanSetu <fromAddress>".
func NewResendMailer(apiKey, fromAddress string) *ResendMailer {
	logger.GetLogger().Infow("Initializing resend mailer",
		"from", fromAddress, "apikey", logger.MaskSensitiveString(apiKey, 3, 4))
	client := resend.NewClient(apiKey)
	return &ResendMailer{
		emails: client.Emails,
		from:   fmt.Sprintf("%s <%s>", FromName, fromAddress),
	}
}

func (m *ResendMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}

	if _, err := m.emails.SendWithContext(ctx, params); err != nil {
		logger.GetLogger().Errorw("Failed to send email",
			"error", err,
			"to", logger.MaskEmail(msg.To),
			"subject", msg.Subject)
		return fmt.Errorf("email send failed: %w", err)
	}

	logSent("resend", msg)
	return nil
}
