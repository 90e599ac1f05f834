package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/ymatsuda/cuprum/internal/contracts"
)

// EmailConfig holds SMTP settings
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// EmailNotifier sends alerts over plain SMTP
type EmailNotifier struct {
	config EmailConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmail creates the email channel
func NewEmail(config EmailConfig) *EmailNotifier {
	return &EmailNotifier{config: config, send: smtp.SendMail}
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) Send(_ context.Context, alert *contracts.Alert) error {
	subject := fmt.Sprintf("[%s] %s alert %s",
		alert.Severity, alert.Category, alert.Date.Format("2006-01-02"))

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", n.config.From)
	fmt.Fprintf(&body, "To: %s\r\n", strings.Join(n.config.To, ", "))
	fmt.Fprintf(&body, "Subject: %s\r\n\r\n", subject)
	fmt.Fprintf(&body, "%s\r\n\r\nFirst observed: %s\r\n",
		Format(alert), alert.FirstObserved.Format("2006-01-02"))

	addr := fmt.Sprintf("%s:%d", n.config.Host, n.config.Port)
	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	}

	if err := n.send(addr, auth, n.config.From, n.config.To, []byte(body.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
