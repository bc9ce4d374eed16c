package policy

import (
	"context"
	"time"
)

type StoreAPI interface {
	Create(ctx context.Context, rec Record) (Record, error)
	Update(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context, filter Filter) ([]Record, int, error)
	SoftDelete(ctx context.Context, id string) error
	RecordReminder(ctx context.Context, policyID, sentBy, channel string, daysRemaining int, at time.Time) (Reminder, error)
	Reminders(ctx context.Context, policyID string) ([]Reminder, error)
	FindByVehicle(ctx context.Context, vehicleNumber string, limit int) ([]Record, error)
	FindByMobileDigest(ctx context.Context, digest string, limit int) ([]Record, error)
}
