package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/kisaansetu/kisaan-setu/internal/logger"
)

// SMTPConfig describes a relay using PLAIN auth, such as Gmail's.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPMailer sends through an SMTP relay.
type SMTPMailer struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, sendMail: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	if err := m.sendMail(addr, auth, m.cfg.Username, []string{msg.To}, m.compose(msg)); err != nil {
		logger.GetLogger().Errorw("Failed to send email",
			"error", err,
			"to", logger.MaskEmail(msg.To),
			"subject", msg.Subject)
		return fmt.Errorf("email send failed: %w", err)
	}

	logSent("smtp", msg)
	return nil
}

func (m *SMTPMailer) compose(msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "From: %s <%s>\r\n", FromName, m.cfg.Username)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	if msg.HTML != "" {
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.HTML)
	} else {
		b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.Text)
	}
	return []byte(b.String())
}
