package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"time"

	"github.com/Masterminds/squirrel"

	"notifycsc/internal/platform/db"
	"notifycsc/internal/platform/querier"
	"notifycsc/internal/requestctx"
)

const (
	ActionLogin               = "auth.login"
	ActionPasswordReset       = "auth.password_reset"
	ActionMFAEnable           = "auth.mfa_enable"
	ActionMFADisable          = "auth.mfa_disable"
	ActionUserCreate          = "user.create"
	ActionUserStatus          = "user.status"
	ActionPolicyCreate        = "policy.create"
	ActionPolicyUpdate        = "policy.update"
	ActionPolicyDelete        = "policy.delete"
	ActionPolicyRemind        = "policy.remind"
	ActionCategoryCreate      = "document_category.create"
	ActionDocumentUpload      = "document.upload"
	ActionDocumentApprove     = "document.approve"
	ActionDocumentReject      = "document.reject"
	ActionDocumentDelete      = "document.delete"
	ActionAnnouncementCreate  = "announcement.create"
	ActionAnnouncementUpdate  = "announcement.update"
	ActionAnnouncementDelete  = "announcement.delete"
	ActionTicketCreate        = "ticket.create"
	ActionTicketStatus        = "ticket.status"
	ActionSettingsUpdate      = "settings.update"
	ActionNotificationsUpdate = "notification_settings.update"
)

type Event struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	RequestID  string          `json:"requestId"`
	IP         string          `json:"ip"`
	CreatedAt  time.Time       `json:"createdAt"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	ActorUser  string
}

func (f Filter) where() squirrel.And {
	where := squirrel.And{}
	if f.Action != "" {
		where = append(where, squirrel.Eq{"action": f.Action})
	}
	if f.EntityType != "" {
		where = append(where, squirrel.Eq{"entity_type": f.EntityType})
	}
	if f.EntityID != "" {
		where = append(where, squirrel.Eq{"entity_id": f.EntityID})
	}
	if f.ActorUser != "" {
		where = append(where, squirrel.Expr("actor_user_id::text = ?", f.ActorUser))
	}
	return where
}

type Service struct {
	DB querier.Querier
}

func New(q querier.Querier) *Service {
	return &Service{DB: q}
}

// Record writes one audit row. Request id and client IP come from ctx.
// An empty actorID is stored as NULL (public or system actions).
func (s *Service) Record(ctx context.Context, actorID, action, entityType, entityID string, before, after any) error {
	beforeJSON, err := marshalOptional(before)
	if err != nil {
		return err
	}
	afterJSON, err := marshalOptional(after)
	if err != nil {
		return err
	}

	query, args, err := db.Builder().
		Insert("audit_events").
		Columns("actor_user_id", "action", "entity_type", "entity_id", "before_json", "after_json", "request_id", "ip").
		Values(nullable(actorID), action, entityType, entityID, beforeJSON, afterJSON,
			requestctx.GetRequestID(ctx), requestctx.GetClientIP(ctx)).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, query, args...)
	return err
}

func (s *Service) Count(ctx context.Context, filter Filter) (int, error) {
	query, args, err := db.Builder().Select("COUNT(1)").From("audit_events").Where(filter.where()).ToSql()
	if err != nil {
		return 0, err
	}
	var total int
	if err := s.DB.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Service) List(ctx context.Context, filter Filter, includeDetails bool, limit, offset int) ([]Event, error) {
	builder := listQuery(filter, includeDetails).Limit(uint64(limit)).Offset(uint64(offset))
	return s.scan(ctx, builder, includeDetails)
}

func (s *Service) ListExport(ctx context.Context, filter Filter) ([]Event, error) {
	return s.scan(ctx, listQuery(filter, false), false)
}

func listQuery(filter Filter, includeDetails bool) squirrel.SelectBuilder {
	cols := []string{"id", "COALESCE(actor_user_id::text, '')", "action", "entity_type", "entity_id", "COALESCE(request_id, '')", "COALESCE(ip, '')", "created_at"}
	if includeDetails {
		cols = append(cols, "before_json", "after_json")
	}
	return db.Builder().Select(cols...).From("audit_events").Where(filter.where()).OrderBy("created_at DESC")
}

func (s *Service) scan(ctx context.Context, builder squirrel.SelectBuilder, includeDetails bool) ([]Event, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var evt Event
		dest := []any{&evt.ID, &evt.ActorID, &evt.Action, &evt.EntityType, &evt.EntityID, &evt.RequestID, &evt.IP, &evt.CreatedAt}
		if includeDetails {
			dest = append(dest, &evt.Before, &evt.After)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

var csvHeader = []string{"id", "actor_user_id", "action", "entity_type", "entity_id", "request_id", "ip", "created_at"}

// WriteCSV renders events in export column order.
func WriteCSV(w io.Writer, events []Event) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}
	for _, evt := range events {
		record := []string{evt.ID, evt.ActorID, evt.Action, evt.EntityType, evt.EntityID, evt.RequestID, evt.IP, evt.CreatedAt.UTC().Format(time.RFC3339)}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func marshalOptional(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
