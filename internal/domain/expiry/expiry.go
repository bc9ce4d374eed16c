package expiry

import (
	"strings"
	"time"
)

type Status string

const (
	StatusExpired          Status = "EXPIRED"
	StatusExpiringSoon     Status = "EXPIRING_SOON"
	StatusExpiringWarning  Status = "EXPIRING_WARNING"
	StatusExpiringUpcoming Status = "EXPIRING_UPCOMING"
	StatusActive           Status = "ACTIVE"
)

// Bucket upper bounds in days, inclusive.
const (
	SoonMaxDays     = 7
	WarningMaxDays  = 15
	UpcomingMaxDays = 30

	// ReminderWindowDays is the last day on which a renewal reminder may be sent.
	ReminderWindowDays = UpcomingMaxDays
)

var Statuses = []Status{
	StatusExpired,
	StatusExpiringSoon,
	StatusExpiringWarning,
	StatusExpiringUpcoming,
	StatusActive,
}

const ReminderUnavailableReason = "unavailable — too early or expired"

type Classification struct {
	DaysRemaining int    `json:"daysRemaining"`
	Status        Status `json:"expiryStatus"`
}

// ParseStatus accepts the enum value case-insensitively. Empty input means no filter.
func ParseStatus(raw string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(raw)))
	for _, status := range Statuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

func (s Status) Valid() bool {
	_, ok := ParseStatus(string(s))
	return ok
}

// Label renders EXPIRING_SOON as "Expiring Soon".
func (s Status) Label() string {
	words := strings.Fields(strings.ReplaceAll(string(s), "_", " "))
	for i, word := range words {
		lower := strings.ToLower(word)
		words[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(words, " ")
}

// DaysRemaining counts whole calendar days from now's date to the expiry date,
// both taken in now's location. Negative once the expiry date has passed.
func DaysRemaining(expiryDate, now time.Time) int {
	loc := now.Location()
	expiryDay := civilDay(expiryDate.In(loc))
	today := civilDay(now)
	return int(expiryDay.Sub(today).Hours() / 24)
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func StatusForDays(days int) Status {
	switch {
	case days < 0:
		return StatusExpired
	case days <= SoonMaxDays:
		return StatusExpiringSoon
	case days <= WarningMaxDays:
		return StatusExpiringWarning
	case days <= UpcomingMaxDays:
		return StatusExpiringUpcoming
	default:
		return StatusActive
	}
}

func Classify(expiryDate, now time.Time) Classification {
	days := DaysRemaining(expiryDate, now)
	return Classification{DaysRemaining: days, Status: StatusForDays(days)}
}

// ReminderEligible reports whether a renewal reminder may be triggered.
func ReminderEligible(daysRemaining int) bool {
	return daysRemaining >= 0 && daysRemaining <= ReminderWindowDays
}

// Window returns the inclusive expiry-date range covered by status relative to today.
// A nil bound is open-ended.
func Window(status Status, today time.Time) (from, to *time.Time) {
	y, m, d := today.Date()
	base := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	day := func(offset int) *time.Time {
		value := base.AddDate(0, 0, offset)
		return &value
	}
	switch status {
	case StatusExpired:
		return nil, day(-1)
	case StatusExpiringSoon:
		return day(0), day(SoonMaxDays)
	case StatusExpiringWarning:
		return day(SoonMaxDays + 1), day(WarningMaxDays)
	case StatusExpiringUpcoming:
		return day(WarningMaxDays + 1), day(UpcomingMaxDays)
	case StatusActive:
		return day(UpcomingMaxDays + 1), nil
	}
	return nil, nil
}

// SuggestExpiry is the pre-filled default end date: start plus years, minus one day.
// Callers treat it as an editable suggestion only.
func SuggestExpiry(start time.Time, years int) time.Time {
	if years <= 0 {
		years = 1
	}
	return start.AddDate(years, 0, -1)
}
