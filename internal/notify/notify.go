// Package notify delivers availability notifications to alert owners
// by email.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/tgvmax-watcher/internal/availability"
	"gopkg.in/gomail.v2"
)

// Mailer sends the one notification an alert gets when a seat shows
// up. Errors surface to the caller: a lost notification must not be
// swallowed, the checker decides what it means for the alert.
type Mailer interface {
	SendAvailability(ctx context.Context, to, originName, destinationName string, windowStart time.Time, hours []string) error
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	loc    *time.Location
}

func NewSMTP(host string, port int, username, password, from string) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
		loc:    availability.Paris(),
	}
}

func (m *SMTPMailer) SendAvailability(ctx context.Context, to, originName, destinationName string, windowStart time.Time, hours []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject, body := BuildMessage(originName, destinationName, windowStart.In(m.loc), hours)

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send to %s: %w", to, err)
	}
	return nil
}

// BuildMessage renders the notification subject and HTML body. Kept
// pure so the content is testable without an SMTP server.
func BuildMessage(originName, destinationName string, windowStart time.Time, hours []string) (subject, body string) {
	day := windowStart.Format("02/01/2006")
	subject = fmt.Sprintf("TGVmax disponible : %s - %s le %s", originName, destinationName, day)

	var b strings.Builder
	fmt.Fprintf(&b, "<p>Bonne nouvelle ! Des places TGVmax sont disponibles de %s à %s le %s :</p>",
		originName, destinationName, day)
	b.WriteString("<ul>")
	for _, h := range hours {
		fmt.Fprintf(&b, "<li>départ à %s</li>", h)
	}
	b.WriteString("</ul>")
	b.WriteString("<p>Réservez vite, les places partent rapidement.</p>")
	return subject, b.String()
}
