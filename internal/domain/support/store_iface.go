package support

import "context"

type StoreAPI interface {
	Create(ctx context.Context, subject, description, createdBy string) (Ticket, error)
	Get(ctx context.Context, id string) (Ticket, error)
	List(ctx context.Context, filter Filter) ([]Ticket, int, error)
	Comments(ctx context.Context, ticketID string) ([]Comment, error)
	AddComment(ctx context.Context, ticketID, authorID string, isStaff bool, body string) (Comment, error)
	UpdateStatus(ctx context.Context, id string, from, to Status) (Ticket, error)
}
