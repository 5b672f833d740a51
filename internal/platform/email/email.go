package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"pms/internal/platform/config"
)

const (
	KindSendBack = "send-back"
	KindNotice   = "notice"

	dialTimeout = 10 * time.Second
	sendTimeout = 30 * time.Second
)

var ErrNoRecipient = errors.New("email: message has no recipient")

// Message is one outbound performance mail. Event names the review event it reports
// and is carried in the X-PMS-Event header so mailbox rules can route on it.
type Message struct {
	Kind    string
	Event   string
	From    string
	To      string
	Subject string
	Body    string
}

// SendBack is the mail an employee receives when a reviewer returns their document.
func SendBack(from, to, subject, reason string) Message {
	body := strings.TrimSpace(reason)
	if body == "" {
		body = "Your performance document was sent back for rework."
	}
	body += "\n\nOpen your performance document to review the comments and resubmit."
	return Message{Kind: KindSendBack, Event: KindSendBack, From: from, To: to, Subject: subject, Body: body}
}

// Notice is the mail copy of an in-app notification.
func Notice(from, to, event, title, body string) Message {
	return Message{Kind: KindNotice, Event: event, From: from, To: to, Subject: title, Body: body}
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	if strings.ContainsAny(m.To+m.From, "\r\n") {
		return fmt.Errorf("email: address contains a line break")
	}
	return nil
}

// encode renders the RFC 5322 message. Header values are folded onto one line.
func (m Message) encode(now time.Time, messageID string) []byte {
	oneLine := strings.NewReplacer("\r", " ", "\n", " ")
	headers := []string{
		"From: " + m.From,
		"To: " + m.To,
		"Subject: " + oneLine.Replace(m.Subject),
		"Date: " + now.Format(time.RFC1123Z),
		"Message-ID: <" + messageID + "@pms>",
		"X-PMS-Event: " + oneLine.Replace(m.Event),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
	}
	body := strings.ReplaceAll(strings.ReplaceAll(m.Body, "\r\n", "\n"), "\n", "\r\n")
	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + body)
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type noopSender struct{}

func (noopSender) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	slog.Debug("email delivery disabled", "kind", msg.Kind, "event", msg.Event, "to", msg.To)
	return nil
}

type smtpSender struct {
	host     string
	addr     string
	useTLS   bool
	user     string
	password string
	now      func() time.Time
}

func New(cfg config.Config) Sender {
	if !cfg.EmailEnabled || cfg.SMTPHost == "" {
		return noopSender{}
	}
	return &smtpSender{
		host:     cfg.SMTPHost,
		addr:     net.JoinHostPort(cfg.SMTPHost, fmt.Sprint(cfg.SMTPPort)),
		useTLS:   cfg.SMTPUseTLS,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		now:      time.Now,
	}
}

func (s *smtpSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	client, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("smtp %s: %w", s.addr, err)
	}
	defer client.Close()

	if err := s.transmit(client, msg); err != nil {
		return fmt.Errorf("send %s mail to %s: %w", msg.Kind, msg.To, err)
	}
	slog.Info("email sent", "kind", msg.Kind, "event", msg.Event, "to", msg.To)
	return nil
}

// dial opens an authenticated session bounded by the context deadline or sendTimeout.
func (s *smtpSender) dial(ctx context.Context) (*smtp.Client, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = s.now().Add(sendTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if s.useTLS {
		if err := client.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			client.Close()
			return nil, err
		}
	}
	if s.user != "" {
		if err := client.Auth(smtp.PlainAuth("", s.user, s.password, s.host)); err != nil {
			client.Close()
			return nil, err
		}
	}
	return client, nil
}

func (s *smtpSender) transmit(client *smtp.Client, msg Message) error {
	if err := client.Mail(msg.From); err != nil {
		return err
	}
	if err := client.Rcpt(msg.To); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg.encode(s.now(), uuid.NewString())); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}
