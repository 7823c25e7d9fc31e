package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Password string
}

// SMTPEmailSender delivers email through a plain SMTP relay with STARTTLS.
// One connection per send; pooling is the relay's concern at this volume.
type SMTPEmailSender struct {
	cfg  SMTPConfig
	dial func(addr string) (*smtp.Client, error)
}

func NewSMTPEmailSender(cfg SMTPConfig) (*SMTPEmailSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}

	return &SMTPEmailSender{
		cfg:  cfg,
		dial: smtp.Dial,
	}, nil
}

func (s *SMTPEmailSender) Send(ctx context.Context, address, subject, body string) error {
	if s == nil {
		return fmt.Errorf("email sender is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(address) == "" {
		return &TransportError{Message: "recipient address is required"}
	}

	client, err := s.dial(fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		return &TransportError{
			Message:   "smtp dial failed",
			Transient: true,
			Cause:     err,
		}
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return &TransportError{Message: "smtp starttls failed", Transient: true, Cause: err}
		}
	}

	if s.cfg.Password != "" {
		auth := smtp.PlainAuth("", s.cfg.From, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return &TransportError{Message: "smtp auth failed", Cause: err}
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return &TransportError{Message: "smtp mail command failed", Transient: true, Cause: err}
	}
	if err := client.Rcpt(address); err != nil {
		// Rejected recipient addresses do not become deliverable by retrying.
		return &TransportError{Message: fmt.Sprintf("recipient rejected: %s", address), Cause: err}
	}

	writer, err := client.Data()
	if err != nil {
		return &TransportError{Message: "smtp data command failed", Transient: true, Cause: err}
	}

	message := buildMessage(s.cfg.From, address, subject, body)
	if _, err := writer.Write([]byte(message)); err != nil {
		writer.Close()
		return &TransportError{Message: "smtp write failed", Transient: true, Cause: err}
	}
	if err := writer.Close(); err != nil {
		return &TransportError{Message: "smtp message not accepted", Transient: true, Cause: err}
	}

	return client.Quit()
}

func buildMessage(from, to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}
