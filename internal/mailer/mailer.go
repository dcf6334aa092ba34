package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// Sender delivers a verification code to an email address. A delivery
// failure is surfaced to the caller; the core never retries.
type Sender interface {
	SendVerificationCode(email, code string) error
}

type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(host string, port int, user, password, from string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   from,
	}
}

func (s *SMTPSender) SendVerificationCode(email, code string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Your verification code")

	body := fmt.Sprintf(`
		<h2>Confirm your email</h2>
		<p>Enter the following code to continue with your onboarding session:</p>
		<p style="font-size:24px;letter-spacing:4px"><strong>%s</strong></p>
		<p>The code expires in 10 minutes. If you did not request it, you can ignore this email.</p>
	`, code)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}
