package announcements

import (
	"context"
	"time"
)

type StoreAPI interface {
	Create(ctx context.Context, a Announcement) (Announcement, error)
	Update(ctx context.Context, a Announcement) (Announcement, error)
	Get(ctx context.Context, id string) (Announcement, error)
	List(ctx context.Context, filter Filter) ([]Announcement, int, error)
	Delete(ctx context.Context, id string) error
	ActiveTickers(ctx context.Context, now time.Time) ([]Announcement, error)
}
