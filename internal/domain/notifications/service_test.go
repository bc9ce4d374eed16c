package notifications

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifycsc/internal/platform/email"
)

type fakeStore struct {
	mu       sync.Mutex
	created  []Notification
	owners   []string
	settings Settings
	emails   map[string]string
	failFor  string
}

func (f *fakeStore) CreateNotification(_ context.Context, userID, ntype, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if userID == f.failFor {
		return errors.New("insert failed")
	}
	f.created = append(f.created, Notification{Type: ntype, Title: title, Body: body})
	f.owners = append(f.owners, userID)
	return nil
}

func (f *fakeStore) UserEmail(_ context.Context, userID string) (string, error) {
	return f.emails[userID], nil
}

func (f *fakeStore) ListNotifications(context.Context, string, bool, int, int) ([]Notification, error) {
	return f.created, nil
}

func (f *fakeStore) CountNotifications(context.Context, string, bool) (int, error) {
	return len(f.created), nil
}

func (f *fakeStore) MarkRead(context.Context, string, string) error { return nil }

func (f *fakeStore) MarkAllRead(context.Context, string) (int64, error) { return 0, nil }

func (f *fakeStore) EmailSettings(context.Context) (Settings, error) { return f.settings, nil }

func (f *fakeStore) UpdateSettings(_ context.Context, s Settings) error {
	f.settings = s
	return nil
}

type captureSender struct {
	mu       sync.Mutex
	messages []email.Message
}

func (c *captureSender) Send(_ context.Context, msg email.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	return nil
}

func TestCreateSkipsEmailWhenDisabled(t *testing.T) {
	t.Parallel()
	store := &fakeStore{emails: map[string]string{"u1": "u1@example.com"}}
	sender := &captureSender{}
	svc := New(store, sender, "")

	require.NoError(t, svc.Create(context.Background(), "u1", TypeReminderSent, "Reminder sent", "KL07AB1234"))
	assert.Len(t, store.created, 1)
	assert.Empty(t, sender.messages)
}

func TestCreateMailsWhenEnabled(t *testing.T) {
	t.Parallel()
	store := &fakeStore{
		emails:   map[string]string{"u1": "u1@example.com"},
		settings: Settings{EmailEnabled: true},
	}
	sender := &captureSender{}
	svc := New(store, sender, "alerts@notifycsc.local")

	require.NoError(t, svc.Create(context.Background(), "u1", TypeTicketReply, "New reply", "Staff replied"))
	require.Len(t, sender.messages, 1)
	assert.Equal(t, "alerts@notifycsc.local", sender.messages[0].From)
	assert.Equal(t, "u1@example.com", sender.messages[0].To)
	assert.Equal(t, "New reply", sender.messages[0].Subject)
}

func TestBroadcastContinuesPastFailures(t *testing.T) {
	t.Parallel()
	store := &fakeStore{failFor: "u2"}
	svc := New(store, nil, "")

	sent := svc.Broadcast(context.Background(), []string{"u1", "u2", "u3"}, TypeAnnouncementPublished, "Notice", "")
	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"u1", "u3"}, store.owners)
}

func TestUpdateSettingsTrimsFrom(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	svc := New(store, nil, "")
	require.NoError(t, svc.UpdateSettings(context.Background(), Settings{EmailEnabled: true, EmailFrom: "  ops@csc.in "}))
	got, err := svc.GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ops@csc.in", got.EmailFrom)
}
