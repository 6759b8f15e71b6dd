package report

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

const DefaultSubject = "synping report"

// EmailSink sends reports by mail over an implicit TLS SMTP connection
// (port 465 style).
type EmailSink struct {
	Server   string // host:port
	From     string
	Password string // Optional, enables PLAIN auth
	To       []string
	Subject  string

	tlsConfig *tls.Config
}

func NewEmailSink(server, from, password string, to []string) (*EmailSink, error) {
	host, _, err := net.SplitHostPort(server)
	if err != nil {
		return nil, fmt.Errorf("invalid smtp server %q: %w", server, err)
	}
	if from == "" || len(to) == 0 {
		return nil, errors.New("email sender and recipient are required")
	}
	return &EmailSink{
		Server:    server,
		From:      from,
		Password:  password,
		To:        to,
		Subject:   DefaultSubject,
		tlsConfig: &tls.Config{ServerName: host},
	}, nil
}

func (e *EmailSink) Send(ctx context.Context, body string) error {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 10 * time.Second},
		Config:    e.tlsConfig,
	}
	conn, err := dialer.DialContext(ctx, "tcp", e.Server)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", e.Server, err)
	}

	host := e.tlsConfig.ServerName
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake with %s failed: %w", e.Server, err)
	}
	defer c.Close()

	if e.Password != "" {
		if err := c.Auth(smtp.PlainAuth("", e.From, e.Password, host)); err != nil {
			return fmt.Errorf("smtp auth failed: %w", err)
		}
	}
	if err := c.Mail(e.From); err != nil {
		return fmt.Errorf("smtp MAIL FROM failed: %w", err)
	}
	for _, rcpt := range e.To {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s failed: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA failed: %w", err)
	}
	if _, err := w.Write(e.message(body, time.Now())); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}
	return c.Quit()
}

func (e *EmailSink) message(body string, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", e.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
