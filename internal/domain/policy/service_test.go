package policy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifycsc/internal/domain/expiry"
	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/platform/email"
)

var testNow = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

type memStore struct {
	mu         sync.Mutex
	records    map[string]Record
	reminders  []Reminder
	lastFilter *Filter
	seq        int
}

func newMemStore() *memStore {
	return &memStore{records: map[string]Record{}}
}

func (m *memStore) Create(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	rec.ID = fmt.Sprintf("p%d", m.seq)
	rec.CreatedAt = testNow
	rec.UpdatedAt = testNow
	m.records[rec.ID] = rec
	return rec, nil
}

func (m *memStore) Update(_ context.Context, rec Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; !ok {
		return Record{}, ErrNotFound
	}
	m.records[rec.ID] = rec
	return rec, nil
}

func (m *memStore) Get(_ context.Context, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *memStore) List(_ context.Context, filter Filter) ([]Record, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = &filter
	var out []Record
	for _, rec := range m.records {
		if filter.ExpiryFrom != nil && rec.ExpiryDate.Before(*filter.ExpiryFrom) {
			continue
		}
		if filter.ExpiryTo != nil && rec.ExpiryDate.After(*filter.ExpiryTo) {
			continue
		}
		out = append(out, rec)
	}
	return out, len(out), nil
}

func (m *memStore) SoftDelete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memStore) RecordReminder(_ context.Context, policyID, sentBy, channel string, days int, at time.Time) (Reminder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[policyID]
	rec.ReminderCount++
	rec.LastReminderAt = &at
	m.records[policyID] = rec
	r := Reminder{ID: fmt.Sprintf("r%d", len(m.reminders)+1), PolicyID: policyID, SentBy: sentBy, Channel: channel, DaysRemaining: days, CreatedAt: at}
	m.reminders = append(m.reminders, r)
	return r, nil
}

func (m *memStore) Reminders(_ context.Context, policyID string) ([]Reminder, error) {
	var out []Reminder
	for _, r := range m.reminders {
		if r.PolicyID == policyID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) FindByVehicle(_ context.Context, vehicle string, _ int) ([]Record, error) {
	var out []Record
	for _, rec := range m.records {
		if rec.VehicleNumber == vehicle {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) FindByMobileDigest(_ context.Context, digest string, _ int) ([]Record, error) {
	var out []Record
	for _, rec := range m.records {
		if rec.MobileDigest == digest {
			out = append(out, rec)
		}
	}
	return out, nil
}

type prefixBox struct{}

func (prefixBox) SealString(v string) ([]byte, error) { return []byte("enc:" + v), nil }

func (prefixBox) OpenString(b []byte) (string, error) {
	if !bytes.HasPrefix(b, []byte("enc:")) {
		return "", errors.New("not sealed")
	}
	return string(b[4:]), nil
}

func (prefixBox) Digest(v string) string { return "d:" + v }

type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingNotifier) Create(_ context.Context, userID, ntype, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, userID+"|"+ntype+"|"+title)
	return nil
}

type captureMailer struct {
	messages []email.Message
	err      error
}

func (c *captureMailer) Send(_ context.Context, msg email.Message) error {
	if c.err != nil {
		return c.err
	}
	c.messages = append(c.messages, msg)
	return nil
}

func newTestService(store StoreAPI, opts ...Option) *Service {
	base := []Option{WithClock(clockwork.NewFakeClockAt(testNow)), WithLocation(time.UTC)}
	return NewService(store, prefixBox{}, append(base, opts...)...)
}

func inputExpiring(offsetDays int) Input {
	expiryDate := testNow.AddDate(0, 0, offsetDays)
	return Input{
		PolicyNumber:  "POL-1",
		HolderName:    "  Anil   Kumar ",
		VehicleNumber: "kl-07 ab 1234",
		Insurer:       "United India",
		Mobile:        "9876543210",
		Email:         "Anil@Example.com",
		StartDate:     expiryDate.AddDate(-1, 0, 1),
		ExpiryDate:    expiryDate,
	}
}

func TestCreateNormalizesAndSeals(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	svc := newTestService(store)

	view, err := svc.Create(context.Background(), "u1", inputExpiring(5))
	require.NoError(t, err)

	assert.Equal(t, "KL07AB1234", view.VehicleNumber)
	assert.Equal(t, "Anil Kumar", view.HolderName)
	assert.Equal(t, "anil@example.com", view.Email)
	assert.Equal(t, "9876543210", view.Mobile)

	stored := store.records[view.ID]
	assert.Equal(t, []byte("enc:9876543210"), stored.MobileEnc)
	assert.Equal(t, "d:9876543210", stored.MobileDigest)
	assert.Equal(t, "3210", stored.MobileLast4)
	assert.Equal(t, "u1", stored.CreatedBy)
}

func TestCreateRejectsExpiryNotAfterStart(t *testing.T) {
	t.Parallel()
	svc := newTestService(newMemStore())
	in := inputExpiring(5)
	in.StartDate = in.ExpiryDate

	_, err := svc.Create(context.Background(), "u1", in)
	require.ErrorIs(t, err, ErrInvalidDates)
}

func TestExpiringInFiveDaysIsSoonAndRemindable(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	mailer := &captureMailer{}
	notifier := &recordingNotifier{}
	svc := newTestService(store, WithMailer(mailer, "alerts@csc.in"), WithNotifier(notifier))

	created, err := svc.Create(context.Background(), "u1", inputExpiring(5))
	require.NoError(t, err)
	assert.Equal(t, 5, created.DaysRemaining)
	assert.Equal(t, expiry.StatusExpiringSoon, created.ExpiryStatus)
	assert.Equal(t, "Expiring Soon", created.ExpiryLabel)
	assert.True(t, created.ReminderEligible)
	assert.Empty(t, created.ReminderReason)

	result, err := svc.SendReminder(context.Background(), "u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, ChannelEmail, result.Reminder.Channel)
	assert.Equal(t, 5, result.Reminder.DaysRemaining)
	assert.Equal(t, 1, result.Policy.ReminderCount)

	require.Len(t, mailer.messages, 1)
	assert.Equal(t, "anil@example.com", mailer.messages[0].To)
	assert.Contains(t, mailer.messages[0].Body, "in 5 day(s)")
	require.Len(t, notifier.calls, 1)
	assert.True(t, strings.HasPrefix(notifier.calls[0], "u1|reminder_sent|"))
}

func TestExpiredYesterdayIsNotRemindable(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	svc := newTestService(store)

	created, err := svc.Create(context.Background(), "u1", inputExpiring(-1))
	require.NoError(t, err)
	assert.Equal(t, -1, created.DaysRemaining)
	assert.Equal(t, expiry.StatusExpired, created.ExpiryStatus)
	assert.False(t, created.ReminderEligible)
	assert.Equal(t, expiry.ReminderUnavailableReason, created.ReminderReason)

	_, err = svc.SendReminder(context.Background(), "u1", created.ID)
	require.ErrorIs(t, err, ErrReminderNotEligible)
	assert.Empty(t, store.reminders)
}

func TestReminderFallsBackToInAppWhenMailFails(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	svc := newTestService(store, WithMailer(&captureMailer{err: errors.New("smtp down")}, ""))

	created, err := svc.Create(context.Background(), "u1", inputExpiring(30))
	require.NoError(t, err)

	result, err := svc.SendReminder(context.Background(), "u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, ChannelInApp, result.Reminder.Channel)
}

func TestReminderOutsideWindowAtThirtyOne(t *testing.T) {
	t.Parallel()
	svc := newTestService(newMemStore())
	created, err := svc.Create(context.Background(), "u1", inputExpiring(31))
	require.NoError(t, err)
	assert.Equal(t, expiry.StatusActive, created.ExpiryStatus)

	_, err = svc.SendReminder(context.Background(), "u1", created.ID)
	require.ErrorIs(t, err, ErrReminderNotEligible)
}

func TestListTranslatesStatusToWindow(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	svc := newTestService(store)
	for _, offset := range []int{-3, 2, 10, 20, 60} {
		_, err := svc.Create(context.Background(), "u1", inputExpiring(offset))
		require.NoError(t, err)
	}

	result, err := svc.List(context.Background(), listquery.Query{Status: "expiring_warning"})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, 10, result.Items[0].DaysRemaining)
	assert.Equal(t, 1, result.Pages)

	require.NotNil(t, store.lastFilter)
	assert.Equal(t, "2026-03-18", store.lastFilter.ExpiryFrom.Format(dateLayout))
	assert.Equal(t, "2026-03-25", store.lastFilter.ExpiryTo.Format(dateLayout))
	assert.Equal(t, listquery.DefaultPageSize, store.lastFilter.Limit)
}

func TestListIntersectsStatusWithExplicitRange(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	svc := newTestService(store)

	from := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	_, err := svc.List(context.Background(), listquery.Query{Status: "EXPIRING_SOON", ExpiryFrom: &from})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-12", store.lastFilter.ExpiryFrom.Format(dateLayout))
	assert.Equal(t, "2026-03-17", store.lastFilter.ExpiryTo.Format(dateLayout))
}

func TestListEmptyIntersectionSkipsStore(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	svc := newTestService(store)

	to := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	result, err := svc.List(context.Background(), listquery.Query{Status: "ACTIVE", ExpiryTo: &to})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Zero(t, result.Total)
	assert.Nil(t, store.lastFilter)
}

func TestListRejectsUnknownStatusAndInvertedRange(t *testing.T) {
	t.Parallel()
	svc := newTestService(newMemStore())

	_, err := svc.List(context.Background(), listquery.Query{Status: "LAPSED"})
	require.ErrorIs(t, err, ErrInvalidStatus)

	from := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.List(context.Background(), listquery.Query{ExpiryFrom: &from, ExpiryTo: &to})
	require.ErrorIs(t, err, listquery.ErrInvalidDateRange)
}

func TestLookupMasksPersonalData(t *testing.T) {
	t.Parallel()
	svc := newTestService(newMemStore())
	_, err := svc.Create(context.Background(), "u1", inputExpiring(12))
	require.NoError(t, err)

	byVehicle, err := svc.Lookup(context.Background(), listquery.LookupVehicle, "KL 07 AB 1234")
	require.NoError(t, err)
	require.Len(t, byVehicle, 1)
	assert.Equal(t, "KL07****34", byVehicle[0].VehicleNumber)
	assert.Equal(t, "A*** K****", byVehicle[0].HolderName)
	assert.Equal(t, "******3210", byVehicle[0].Mobile)
	assert.Equal(t, expiry.StatusExpiringWarning, byVehicle[0].ExpiryStatus)

	byMobile, err := svc.Lookup(context.Background(), listquery.LookupMobile, "9876543210")
	require.NoError(t, err)
	assert.Len(t, byMobile, 1)

	_, err = svc.Lookup(context.Background(), listquery.LookupVehicle, "K1")
	require.ErrorIs(t, err, ErrInvalidLookup)
}

func TestWriteNoticeProducesPDF(t *testing.T) {
	t.Parallel()
	svc := newTestService(newMemStore())
	created, err := svc.Create(context.Background(), "u1", inputExpiring(5))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.WriteNotice(context.Background(), created.ID, &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))

	require.ErrorIs(t, svc.WriteNotice(context.Background(), "missing", &buf), ErrNotFound)
}
