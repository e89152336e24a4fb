package email

import (
	"fmt"
	"log"

	"gopkg.in/gomail.v2"
)

// Sender delivers transactional helpdesk email. All sends are best effort:
// workers log failures and move on, a bounced email never fails an event.
type Sender interface {
	SendTicketCreated(to, ticketNumber, description string) error
	SendTicketStatusChanged(to, ticketNumber, oldStatus, newStatus string) error
	SendTicketAssigned(to, ticketNumber, agentName string) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type SMTPSender struct {
	config SMTPConfig
	dialer *gomail.Dialer
}

func NewSMTPSender(config SMTPConfig) *SMTPSender {
	dialer := gomail.NewDialer(config.Host, config.Port, config.Username, config.Password)

	return &SMTPSender{
		config: config,
		dialer: dialer,
	}
}

func (s *SMTPSender) SendTicketCreated(to, ticketNumber, description string) error {
	subject := fmt.Sprintf("Support ticket %s received", ticketNumber)
	htmlBody := fmt.Sprintf(`
		<html>
		<body>
			<h2>We received your support request</h2>
			<p>Your ticket <strong>%s</strong> has been created and our team will get back to you shortly.</p>
			<p>Request summary:</p>
			<blockquote>%s</blockquote>
			<p>You can follow progress and chat with your agent from the app.</p>
		</body>
		</html>
	`, ticketNumber, description)

	plainBody := fmt.Sprintf(`
We received your support request.

Your ticket %s has been created and our team will get back to you shortly.

Request summary:
%s

You can follow progress and chat with your agent from the app.
	`, ticketNumber, description)

	return s.send(to, subject, htmlBody, plainBody)
}

func (s *SMTPSender) SendTicketStatusChanged(to, ticketNumber, oldStatus, newStatus string) error {
	subject := fmt.Sprintf("Ticket %s is now %s", ticketNumber, newStatus)
	htmlBody := fmt.Sprintf(`
		<html>
		<body>
			<h2>Ticket status updated</h2>
			<p>Your ticket <strong>%s</strong> changed from <strong>%s</strong> to <strong>%s</strong>.</p>
			<p>Open the app to see the details.</p>
		</body>
		</html>
	`, ticketNumber, oldStatus, newStatus)

	plainBody := fmt.Sprintf(`
Ticket status updated.

Your ticket %s changed from %s to %s.

Open the app to see the details.
	`, ticketNumber, oldStatus, newStatus)

	return s.send(to, subject, htmlBody, plainBody)
}

func (s *SMTPSender) SendTicketAssigned(to, ticketNumber, agentName string) error {
	subject := fmt.Sprintf("Ticket %s assigned to %s", ticketNumber, agentName)
	htmlBody := fmt.Sprintf(`
		<html>
		<body>
			<h2>An agent is on your ticket</h2>
			<p><strong>%s</strong> is now handling your ticket <strong>%s</strong>.</p>
			<p>You can chat with them directly from the app.</p>
		</body>
		</html>
	`, agentName, ticketNumber)

	plainBody := fmt.Sprintf(`
An agent is on your ticket.

%s is now handling your ticket %s.

You can chat with them directly from the app.
	`, agentName, ticketNumber)

	return s.send(to, subject, htmlBody, plainBody)
}

func (s *SMTPSender) send(to, subject, htmlBody, plainBody string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(s.config.From, s.config.FromName))
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", plainBody)
	m.AddAlternative("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	log.Printf("[Email] Send OK: to=%s subject=%q", to, subject)
	return nil
}
