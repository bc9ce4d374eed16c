package notifications

import (
	"context"
	"log/slog"
	"strings"

	"notifycsc/internal/platform/email"
)

type Service struct {
	store       StoreAPI
	Mailer      email.Sender
	DefaultFrom string
}

func New(store StoreAPI, mailer email.Sender, defaultFrom string) *Service {
	if defaultFrom == "" {
		defaultFrom = "no-reply@notifycsc.local"
	}
	return &Service{store: store, Mailer: mailer, DefaultFrom: defaultFrom}
}

// Create stores an in-app notification and, when e-mail fan-out is enabled,
// mails a copy to the recipient. Mail failures are logged only.
func (s *Service) Create(ctx context.Context, userID, ntype, title, body string) error {
	if err := s.store.CreateNotification(ctx, userID, ntype, title, body); err != nil {
		return err
	}

	if s.Mailer == nil {
		return nil
	}

	settings, err := s.store.EmailSettings(ctx)
	if err != nil {
		slog.Warn("notification settings lookup failed", "err", err)
		return nil
	}
	if !settings.EmailEnabled {
		return nil
	}
	from := settings.EmailFrom
	if from == "" {
		from = s.DefaultFrom
	}

	address, err := s.store.UserEmail(ctx, userID)
	if err != nil {
		slog.Warn("notification email lookup failed", "userId", userID, "err", err)
		return nil
	}
	if address == "" {
		return nil
	}
	if err := s.Mailer.Send(ctx, email.Message{From: from, To: address, Subject: title, Body: body}); err != nil {
		slog.Warn("notification email send failed", "userId", userID, "err", err)
	}
	return nil
}

// Broadcast notifies every user id, continuing past individual failures.
func (s *Service) Broadcast(ctx context.Context, userIDs []string, ntype, title, body string) int {
	sent := 0
	for _, userID := range userIDs {
		if err := s.Create(ctx, userID, ntype, title, body); err != nil {
			slog.Warn("notification create failed", "userId", userID, "type", ntype, "err", err)
			continue
		}
		sent++
	}
	return sent
}

func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]Notification, error) {
	return s.store.ListNotifications(ctx, userID, unreadOnly, limit, offset)
}

func (s *Service) Count(ctx context.Context, userID string, unreadOnly bool) (int, error) {
	return s.store.CountNotifications(ctx, userID, unreadOnly)
}

func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	return s.store.MarkRead(ctx, userID, notificationID)
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}

func (s *Service) GetSettings(ctx context.Context) (Settings, error) {
	return s.store.EmailSettings(ctx)
}

func (s *Service) UpdateSettings(ctx context.Context, settings Settings) error {
	settings.EmailFrom = strings.TrimSpace(settings.EmailFrom)
	return s.store.UpdateSettings(ctx, settings)
}
