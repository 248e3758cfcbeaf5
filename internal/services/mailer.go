package services

import (
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/kokossimo/backend/internal/config"
)

// Mailer delivers plain-text email.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer sends mail through a single SMTP relay.
type SMTPMailer struct {
	addr     string
	host     string
	username string
	password string
	from     string
}

// NewSMTPMailer builds a mailer from the SMTP settings in cfg.
func NewSMTPMailer(cfg *config.Config) *SMTPMailer {
	return &SMTPMailer{
		addr:     cfg.SMTPHost + ":" + cfg.SMTPPort,
		host:     cfg.SMTPHost,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.DefaultFromEmail,
	}
}

// Send delivers one message. Auth is skipped when no username is configured.
func (m *SMTPMailer) Send(to, subject, body string) error {
	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	return smtp.SendMail(m.addr, auth, m.from, []string{to}, buildMessage(m.from, to, subject, body))
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.BEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
