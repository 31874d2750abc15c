package mailer

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Mailer sends transactional mail. Sends are best-effort: the caller logs
// failures and carries on, it never fails the request over mail.
type Mailer interface {
	SendEditorInvite(toEmail, creatorName, inviteLink string) error
}

// SMTPMailer is the gomail-backed production implementation.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	logger *logrus.Logger
}

// NewSMTPMailer wires a mailer against the configured SMTP relay.
func NewSMTPMailer(host string, port int, username, password, from string, logger *logrus.Logger) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
		logger: logger,
	}
}

// SendEditorInvite emails an invitation link to a not-yet-registered editor.
func (m *SMTPMailer) SendEditorInvite(toEmail, creatorName, inviteLink string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", toEmail)
	msg.SetHeader("Subject", fmt.Sprintf("%s invited you to edit on Edio", creatorName))
	msg.SetBody("text/html", fmt.Sprintf(
		"<p>%s wants to work with you on Edio.</p><p><a href=%q>Accept the invitation</a></p>",
		creatorName, inviteLink,
	))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("error sending invite mail to %s: %w", toEmail, err)
	}
	m.logger.WithField("to", toEmail).Info("Invite mail sent")
	return nil
}
