package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"CourtWatch/internal/domain"
	"CourtWatch/internal/normalize"
	"CourtWatch/internal/ports"
)

const bodyChars = 1000

// Notifier delivers publication alerts over SMTP.
type Notifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
	send     func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

var _ ports.Notifier = (*Notifier)(nil)

func NewNotifier(host string, port int, username, password, from string, to []string) *Notifier {
	return &Notifier{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
		send:     smtp.SendMail,
	}
}

func (n *Notifier) Channel() domain.Channel {
	return domain.ChannelEmail
}

// Notify sends one publication message to the configured recipients.
func (n *Notifier) Notify(ctx context.Context, entity domain.Entity, rec domain.Record) error {
	if n.host == "" || len(n.to) == 0 {
		return fmt.Errorf("email notifier misconfigured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("Nova publicação: %s", entity.Name)
	if rec.Court != "" {
		subject = fmt.Sprintf("%s (%s)", subject, rec.Court)
	}

	var auth smtp.Auth
	if n.username != "" {
		auth = smtp.PlainAuth("", n.username, n.password, n.host)
	}
	addr := net.JoinHostPort(n.host, fmt.Sprintf("%d", n.port))
	msg := buildMessage(n.from, n.to, subject, entity, rec)

	if err := n.send(addr, auth, n.from, n.to, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func buildMessage(from string, to []string, subject string, entity domain.Entity, rec domain.Record) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "Monitorado: %s\r\n", entity.Name)
	if rec.Process != "" {
		fmt.Fprintf(&b, "Processo: %s\r\n", rec.Process)
	}
	if rec.Venue != "" {
		fmt.Fprintf(&b, "Órgão: %s\r\n", rec.Venue)
	}
	if rec.Kind != "" {
		fmt.Fprintf(&b, "Tipo: %s\r\n", rec.Kind)
	}
	if rec.Date != "" {
		fmt.Fprintf(&b, "Data: %s\r\n", rec.Date)
	}
	if text := normalize.Excerpt(rec.FullText, bodyChars); text != "" {
		b.WriteString("\r\n")
		b.WriteString(text)
		b.WriteString("\r\n")
	}
	if rec.Link != "" {
		b.WriteString("\r\n")
		b.WriteString(rec.Link)
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}
