// Package notify delivers job notifications over SMTP. Everything here runs
// unattended, so delivery problems collapse to a boolean and a log line.
package notify

import (
	"log/slog"
	"net/smtp"
	"strings"
)

// NoEmailsNeeded is the sentinel target meaning "nobody wants this mail".
// It predates empty-string handling in job descriptions and remains valid
// no-op input.
const NoEmailsNeeded = "no_emails_needed"

type Mailer struct {
	addr    string // host:port of the relay
	from    string
	enabled bool
}

func NewMailer(addr, from string, enabled bool) *Mailer {
	return &Mailer{addr: addr, from: from, enabled: enabled}
}

// Send delivers a single notification. Sentinel and empty targets succeed
// without contacting any transport; with notifications disabled every send
// is a quiet success. Only an actual delivery attempt can fail.
func (m *Mailer) Send(to, subject, body string) bool {
	if to == "" || to == NoEmailsNeeded {
		return true
	}
	if !m.enabled {
		slog.Info("notifications disabled, skipping send", "to", to)
		return true
	}

	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(m.addr, nil, m.from, []string{to}, []byte(msg)); err != nil {
		slog.Error("notification delivery failed", "to", to, "err", err)
		return false
	}
	return true
}

// Discard is a Notifier for deployments without a mail relay and for tests;
// it records nothing and always succeeds.
type Discard struct{}

func (Discard) Send(to, subject, body string) bool { return true }
