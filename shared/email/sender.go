package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"twilight-stack/shared/config"
)

var alertTemplate = template.Must(template.New("alert").Parse(`<h2>Twilight streamer alert</h2>
<p><b>{{.Summary}}</b></p>
<p>Occurred at {{.At}} on {{.Host}}.</p>
<pre>{{.Status}}</pre>
`))

// Alert is one critical failure worth a mail.
type Alert struct {
	Summary string
	At      string
	Host    string
	Status  string
}

type Sender struct {
	config *config.EmailConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSender(cfg *config.EmailConfig) *Sender {
	return &Sender{
		config: cfg,
		send:   smtp.SendMail,
	}
}

func (s *Sender) Enabled() bool {
	return s.config != nil && s.config.Enabled()
}

// SendAlert mails a critical failure. It is a no-op when mail is not
// configured.
func (s *Sender) SendAlert(alert Alert) error {
	if !s.Enabled() {
		return nil
	}

	subject := fmt.Sprintf("Twilight streamer: %s", alert.Summary)
	if alert.At == "" {
		alert.At = time.Now().UTC().Format(time.RFC3339)
	}

	var body bytes.Buffer
	if err := alertTemplate.Execute(&body, alert); err != nil {
		return fmt.Errorf("failed to generate email body: %w", err)
	}
	return s.SendHTML(subject, body.String())
}

// SendHTML sends an email with custom HTML content
func (s *Sender) SendHTML(subject, htmlBody string) error {
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.SMTPServer)
	}

	from := s.config.FromEmail
	if from == "" {
		from = s.config.Username
	}

	addr := fmt.Sprintf("%s:%d", s.config.SMTPServer, s.config.SMTPPort)
	if err := s.send(addr, auth, from, []string{s.config.ToEmail}, buildMessage(from, s.config.ToEmail, subject, htmlBody)); err != nil {
		return fmt.Errorf("failed to send mail via %s: %w", addr, err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	return []byte(fmt.Sprintf("To: %s\r\n"+
		"From: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=UTF-8\r\n"+
		"\r\n"+
		"%s", to, from, subject, body))
}
