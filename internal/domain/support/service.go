package support

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/domain/notifications"
)

type Notifier interface {
	Create(ctx context.Context, userID, ntype, title, body string) error
}

type Service struct {
	store    StoreAPI
	notifier Notifier
}

func NewService(store StoreAPI, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

func (s *Service) Create(ctx context.Context, actor Actor, subject, description string) (Ticket, error) {
	return s.store.Create(ctx, strings.TrimSpace(subject), strings.TrimSpace(description), actor.UserID)
}

func (s *Service) List(ctx context.Context, actor Actor, q listquery.Query) (listquery.Result[Ticket], error) {
	q = q.Normalize(listquery.DefaultPageSize)
	filter := Filter{Search: q.Search, Limit: q.Limit, Offset: q.Offset()}
	if q.Status != "" {
		status, ok := ParseStatus(q.Status)
		if !ok {
			return listquery.Result[Ticket]{}, ErrInvalidStatus
		}
		filter.Status = status
	}
	if !actor.Staff {
		filter.CreatedBy = actor.UserID
	}
	tickets, total, err := s.store.List(ctx, filter)
	if err != nil {
		return listquery.Result[Ticket]{}, err
	}
	return listquery.NewResult(tickets, total, q.Limit), nil
}

func (s *Service) visibleTicket(ctx context.Context, actor Actor, id string) (Ticket, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return Ticket{}, err
	}
	if !actor.Staff && t.CreatedBy != actor.UserID {
		return Ticket{}, ErrNotFound
	}
	return t, nil
}

// Get returns the ticket with its thread in posting order.
func (s *Service) Get(ctx context.Context, actor Actor, id string) (Ticket, error) {
	t, err := s.visibleTicket(ctx, actor, id)
	if err != nil {
		return Ticket{}, err
	}
	comments, err := s.store.Comments(ctx, id)
	if err != nil {
		return Ticket{}, err
	}
	t.Comments = comments
	return t, nil
}

func (s *Service) AddComment(ctx context.Context, actor Actor, id, body string) (Comment, error) {
	t, err := s.visibleTicket(ctx, actor, id)
	if err != nil {
		return Comment{}, err
	}
	if t.Status == StatusClosed {
		return Comment{}, ErrTicketClosed
	}
	c, err := s.store.AddComment(ctx, id, actor.UserID, actor.Staff, strings.TrimSpace(body))
	if err != nil {
		return Comment{}, err
	}
	if actor.Staff && t.CreatedBy != actor.UserID {
		s.notifyOwner(ctx, t, notifications.TypeTicketReply, "New reply on your ticket",
			fmt.Sprintf("Support replied to %q.", t.Subject))
	}
	return c, nil
}

// ChangeStatus lets staff make any allowed move. Owners may close their own
// ticket or reopen it once resolved.
func (s *Service) ChangeStatus(ctx context.Context, actor Actor, id string, to Status) (Ticket, error) {
	if _, ok := ParseStatus(string(to)); !ok {
		return Ticket{}, ErrInvalidStatus
	}
	t, err := s.visibleTicket(ctx, actor, id)
	if err != nil {
		return Ticket{}, err
	}
	if t.Status == StatusClosed {
		return Ticket{}, ErrTicketClosed
	}
	if !CanTransition(t.Status, to) {
		return Ticket{}, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, t.Status, to)
	}
	if !actor.Staff && to != StatusClosed && !(t.Status == StatusResolved && to == StatusOpen) {
		return Ticket{}, ErrForbidden
	}
	updated, err := s.store.UpdateStatus(ctx, id, t.Status, to)
	if err != nil {
		return Ticket{}, err
	}
	if actor.Staff && t.CreatedBy != actor.UserID {
		s.notifyOwner(ctx, updated, notifications.TypeTicketStatusChanged, "Ticket status changed",
			fmt.Sprintf("%q is now %s.", updated.Subject, strings.ReplaceAll(string(to), "_", " ")))
	}
	return updated, nil
}

func (s *Service) notifyOwner(ctx context.Context, t Ticket, ntype, title, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Create(ctx, t.CreatedBy, ntype, title, body); err != nil {
		slog.Warn("ticket notification failed", "ticketId", t.ID, "err", err)
	}
}
