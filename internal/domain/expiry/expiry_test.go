package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForDaysBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		days int
		want Status
	}{
		{-30, StatusExpired},
		{-1, StatusExpired},
		{0, StatusExpiringSoon},
		{7, StatusExpiringSoon},
		{8, StatusExpiringWarning},
		{15, StatusExpiringWarning},
		{16, StatusExpiringUpcoming},
		{30, StatusExpiringUpcoming},
		{31, StatusActive},
		{365, StatusActive},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.want, StatusForDays(tt.days), "days=%d", tt.days)
	}
}

func TestReminderEligible(t *testing.T) {
	t.Parallel()

	assert.False(t, ReminderEligible(-1))
	assert.True(t, ReminderEligible(0))
	assert.True(t, ReminderEligible(15))
	assert.True(t, ReminderEligible(30))
	assert.False(t, ReminderEligible(31))
}

func TestClassifyIgnoresTimeOfDay(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 22, 45, 0, 0, time.UTC)
	expiryDate := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	got := Classify(expiryDate, now)
	assert.Equal(t, 5, got.DaysRemaining)
	assert.Equal(t, StatusExpiringSoon, got.Status)
}

func TestClassifyEndToEnd(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	soon := Classify(now.AddDate(0, 0, 5), now)
	assert.Equal(t, 5, soon.DaysRemaining)
	assert.Equal(t, StatusExpiringSoon, soon.Status)
	assert.True(t, ReminderEligible(soon.DaysRemaining))

	lapsed := Classify(now.AddDate(0, 0, -1), now)
	assert.Equal(t, -1, lapsed.DaysRemaining)
	assert.Equal(t, StatusExpired, lapsed.Status)
	assert.False(t, ReminderEligible(lapsed.DaysRemaining))
}

func TestClassifyAcrossLocations(t *testing.T) {
	t.Parallel()

	kolkata := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2026, 1, 1, 1, 0, 0, 0, kolkata)
	expiryDate := time.Date(2026, 1, 8, 0, 0, 0, 0, kolkata)

	assert.Equal(t, 7, DaysRemaining(expiryDate, now))
}

func TestLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Expiring Soon", StatusExpiringSoon.Label())
	assert.Equal(t, "Expiring Upcoming", StatusExpiringUpcoming.Label())
	assert.Equal(t, "Expired", StatusExpired.Label())
	assert.Equal(t, "Active", StatusActive.Label())
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	status, ok := ParseStatus(" expiring_warning ")
	require.True(t, ok)
	assert.Equal(t, StatusExpiringWarning, status)

	_, ok = ParseStatus("RENEWED")
	assert.False(t, ok)
}

func TestWindowMatchesClassification(t *testing.T) {
	t.Parallel()

	today := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	for offset := -5; offset <= 40; offset++ {
		day := today.AddDate(0, 0, offset)
		status := Classify(day, today).Status
		from, to := Window(status, today)
		if from != nil {
			assert.Falsef(t, day.Before(*from), "offset %d before window of %s", offset, status)
		}
		if to != nil {
			assert.Falsef(t, day.After(*to), "offset %d after window of %s", offset, status)
		}
	}
}

func TestSuggestExpiry(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), SuggestExpiry(start, 1))
	assert.Equal(t, time.Date(2028, 12, 31, 0, 0, 0, 0, time.UTC), SuggestExpiry(start, 3))
	assert.Equal(t, time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC), SuggestExpiry(start, 0))
}
