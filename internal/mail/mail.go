// Package mail sends transactional email through Resend or an SMTP relay.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/kisaansetu/kisaan-setu/internal/logger"
)

const (
	FromName               = "KisaanSetu"
	VerificationSubject    = "Account Verification"
	verificationPath       = "/verify-email"
	verificationTokenParam = "token"
)

var ErrInvalidMessage = errors.New("invalid email message")

// Message is a single outgoing email.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("%w: missing recipient", ErrInvalidMessage)
	}
	if m.Subject == "" {
		return fmt.Errorf("%w: missing subject", ErrInvalidMessage)
	}
	if m.Text == "" && m.HTML == "" {
		return fmt.Errorf("%w: empty body", ErrInvalidMessage)
	}
	return nil
}

// Mailer delivers a message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Observer records delivery outcomes.
type Observer interface {
	ObserveEmail(elapsed time.Duration, err error)
}

type observedMailer struct {
	next     Mailer
	observer Observer
}

// WithObserver reports every Send on next to o.
func WithObserver(next Mailer, o Observer) Mailer {
	if o == nil {
		return next
	}
	return &observedMailer{next: next, observer: o}
}

func (m *observedMailer) Send(ctx context.Context, msg Message) error {
	start := time.Now()
	err := m.next.Send(ctx, msg)
	m.observer.ObserveEmail(time.Since(start), err)
	return err
}

var verificationTemplate = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<body>
  <p>Welcome to KisaanSetu.</p>
  <p>Please verify your account by clicking on the following link:</p>
  <p><a href="{{.Link}}">{{.Link}}</a></p>
</body>
</html>`))

// VerificationLink builds the front-end page link that confirms token.
func VerificationLink(frontendURL, token string) string {
	q := url.Values{}
	q.Set(verificationTokenParam, token)
	return strings.TrimRight(frontendURL, "/") + verificationPath + "?" + q.Encode()
}

// VerificationMessage renders the account verification email for to.
func VerificationMessage(to, token, frontendURL string) (Message, error) {
	link := VerificationLink(frontendURL, token)

	var html bytes.Buffer
	if err := verificationTemplate.Execute(&html, struct{ Link string }{link}); err != nil {
		return Message{}, fmt.Errorf("failed to execute template: %w", err)
	}

	return Message{
		To:      to,
		Subject: VerificationSubject,
		Text:    "Please verify your account by clicking on the following link: " + link,
		HTML:    html.String(),
	}, nil
}

func logSent(kind string, msg Message) {
	logger.GetLogger().Infow("Email sent successfully",
		"via", kind,
		"to", logger.MaskEmail(msg.To),
		"subject", msg.Subject)
}
