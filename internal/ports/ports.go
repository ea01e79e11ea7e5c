package ports

// Notifier delivers job notifications to interested parties. Send never
// panics and never returns an error: this path runs unattended, so failures
// collapse to a boolean. Empty targets and the "no_emails_needed" sentinel
// are a successful no-op.
type Notifier interface {
	Send(to, subject, body string) bool
}
