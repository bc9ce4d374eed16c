package announcements

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"

	"notifycsc/internal/domain/auth"
	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/domain/notifications"
)

type Broadcaster interface {
	Broadcast(ctx context.Context, userIDs []string, ntype, title, body string) int
}

type Directory interface {
	UserIDsByRole(ctx context.Context, roles ...auth.Role) ([]string, error)
}

type Service struct {
	store     StoreAPI
	notifier  Broadcaster
	directory Directory
	clock     clockwork.Clock
}

func NewService(store StoreAPI, notifier Broadcaster, directory Directory, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{store: store, notifier: notifier, directory: directory, clock: clock}
}

func build(in Input) (Announcement, error) {
	if in.StartsAt != nil && in.EndsAt != nil && !in.StartsAt.Before(*in.EndsAt) {
		return Announcement{}, ErrInvalidWindow
	}
	body := strings.TrimSpace(in.BodyMarkdown)
	html, err := RenderHTML(body)
	if err != nil {
		return Announcement{}, fmt.Errorf("render markdown: %w", err)
	}
	return Announcement{
		Title:        strings.TrimSpace(in.Title),
		BodyMarkdown: body,
		BodyHTML:     html,
		IsTicker:     in.IsTicker,
		Published:    in.Published,
		StartsAt:     in.StartsAt,
		EndsAt:       in.EndsAt,
	}, nil
}

func (s *Service) Create(ctx context.Context, actorID string, in Input) (Announcement, error) {
	a, err := build(in)
	if err != nil {
		return Announcement{}, err
	}
	a.CreatedBy = actorID
	created, err := s.store.Create(ctx, a)
	if err != nil {
		return Announcement{}, err
	}
	if created.Published {
		s.notifyOperators(ctx, created)
	}
	return created, nil
}

// Update notifies operators only on the draft to published transition.
func (s *Service) Update(ctx context.Context, id string, in Input) (Announcement, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return Announcement{}, err
	}
	a, err := build(in)
	if err != nil {
		return Announcement{}, err
	}
	a.ID = id
	updated, err := s.store.Update(ctx, a)
	if err != nil {
		return Announcement{}, err
	}
	if updated.Published && !current.Published {
		s.notifyOperators(ctx, updated)
	}
	return updated, nil
}

func (s *Service) notifyOperators(ctx context.Context, a Announcement) {
	if s.notifier == nil || s.directory == nil {
		return
	}
	operators, err := s.directory.UserIDsByRole(ctx, auth.RoleVLE)
	if err != nil {
		slog.Warn("operator lookup failed", "announcementId", a.ID, "err", err)
		return
	}
	s.notifier.Broadcast(ctx, operators, notifications.TypeAnnouncementPublished, a.Title, "A new announcement has been published.")
}

// Get hides drafts from callers without write access.
func (s *Service) Get(ctx context.Context, id string, includeDrafts bool) (Announcement, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return Announcement{}, err
	}
	if !a.Published && !includeDrafts {
		return Announcement{}, ErrNotFound
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, q listquery.Query, includeDrafts, tickerOnly bool) (listquery.Result[Announcement], error) {
	q = q.Normalize(listquery.DefaultPageSize)
	items, total, err := s.store.List(ctx, Filter{
		PublishedOnly: !includeDrafts,
		TickerOnly:    tickerOnly,
		Search:        q.Search,
		Limit:         q.Limit,
		Offset:        q.Offset(),
	})
	if err != nil {
		return listquery.Result[Announcement]{}, err
	}
	return listquery.NewResult(items, total, q.Limit), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func (s *Service) ActiveTickers(ctx context.Context) ([]Announcement, error) {
	return s.store.ActiveTickers(ctx, s.clock.Now())
}
