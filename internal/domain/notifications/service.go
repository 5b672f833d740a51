package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"pms/internal/platform/email"
)

type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

type Notification struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Context   json.RawMessage `json:"context,omitempty"`
	ReadAt    any             `json:"readAt"`
	CreatedAt any             `json:"createdAt"`
}

type Service struct {
	store       StoreAPI
	Mailer      Mailer
	DefaultFrom string
}

func New(store StoreAPI, mailer Mailer, from string) *Service {
	if from == "" {
		from = "no-reply@example.com"
	}
	return &Service{store: store, Mailer: mailer, DefaultFrom: from}
}

// Notify records an in-app notification and mails it when the recipient has an address.
// Mail failures are logged; only the record write is reported.
func (s *Service) Notify(ctx context.Context, kind, recipientID string, payload map[string]any) error {
	title, body := render(kind, payload)
	contextJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := s.store.CreateNotification(ctx, recipientID, kind, title, body, contextJSON); err != nil {
		return err
	}

	if s.Mailer == nil {
		return nil
	}
	address, err := s.store.UserEmail(ctx, recipientID)
	if err != nil {
		slog.Warn("notification email lookup failed", "err", err)
		return nil
	}
	if address == "" {
		return nil
	}
	if err := s.Mailer.Send(ctx, email.Notice(s.DefaultFrom, address, kind, title, body)); err != nil {
		slog.Warn("notification email send failed", "err", err)
	}
	return nil
}

// SendBackEmail mails the send-back reason. A recipient without an address is skipped.
func (s *Service) SendBackEmail(ctx context.Context, recipientID, subject, reason string) error {
	if s.Mailer == nil {
		return nil
	}
	address, err := s.store.UserEmail(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("lookup email for %s: %w", recipientID, err)
	}
	if address == "" {
		slog.Info("send-back email skipped, no address", "recipientId", recipientID)
		return nil
	}
	return s.Mailer.Send(ctx, email.SendBack(s.DefaultFrom, address, subject, reason))
}

func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Notification, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	return s.store.ListNotifications(ctx, userID, limit, offset)
}

func (s *Service) Count(ctx context.Context, userID string) (int, error) {
	return s.store.CountNotifications(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	return s.store.MarkRead(ctx, userID, notificationID)
}

func render(kind string, payload map[string]any) (string, string) {
	quarter, _ := payload["quarter"].(string)
	phase, _ := payload["phase"].(string)
	tmpl, ok := templates[kind]
	if !ok {
		return kind, fmt.Sprintf("Performance update for %s %s.", quarter, phase)
	}
	return tmpl.title, fmt.Sprintf(tmpl.body, quarter, phase)
}
