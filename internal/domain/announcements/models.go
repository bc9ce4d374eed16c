package announcements

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("announcement not found")
	ErrInvalidWindow = errors.New("announcement must start before it ends")
)

type Announcement struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	BodyMarkdown string     `json:"bodyMarkdown"`
	BodyHTML     string     `json:"bodyHtml"`
	IsTicker     bool       `json:"isTicker"`
	Published    bool       `json:"published"`
	StartsAt     *time.Time `json:"startsAt,omitempty"`
	EndsAt       *time.Time `json:"endsAt,omitempty"`
	CreatedBy    string     `json:"createdBy,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// ActiveAt reports whether a published announcement is inside its display
// window. Open bounds never exclude.
func (a Announcement) ActiveAt(now time.Time) bool {
	if !a.Published {
		return false
	}
	if a.StartsAt != nil && now.Before(*a.StartsAt) {
		return false
	}
	if a.EndsAt != nil && !now.Before(*a.EndsAt) {
		return false
	}
	return true
}

type Input struct {
	Title        string
	BodyMarkdown string
	IsTicker     bool
	Published    bool
	StartsAt     *time.Time
	EndsAt       *time.Time
}

type Filter struct {
	PublishedOnly bool
	TickerOnly    bool
	Search        string
	Limit         int
	Offset        int
}
