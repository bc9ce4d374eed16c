package support

import (
	"errors"
	"strings"
	"time"
)

type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

var Statuses = []Status{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}

var transitions = map[Status][]Status{
	StatusOpen:       {StatusInProgress, StatusResolved, StatusClosed},
	StatusInProgress: {StatusOpen, StatusResolved, StatusClosed},
	StatusResolved:   {StatusOpen, StatusClosed},
	StatusClosed:     nil,
}

func ParseStatus(raw string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, status := range Statuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// CanTransition reports whether from may move to to. Closed is terminal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	ErrNotFound          = errors.New("ticket not found")
	ErrInvalidTransition = errors.New("ticket status change not allowed")
	ErrTicketClosed      = errors.New("ticket is closed")
	ErrInvalidStatus     = errors.New("unknown ticket status")
	ErrForbidden         = errors.New("not allowed to change this ticket")
)

type Ticket struct {
	ID            string     `json:"id"`
	Subject       string     `json:"subject"`
	Description   string     `json:"description"`
	Status        Status     `json:"status"`
	CreatedBy     string     `json:"createdBy"`
	CreatedByName string     `json:"createdByName,omitempty"`
	CommentCount  int        `json:"commentCount"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	ClosedAt      *time.Time `json:"closedAt,omitempty"`
	Comments      []Comment  `json:"comments,omitempty"`
}

type Comment struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticketId"`
	AuthorID   string    `json:"authorId,omitempty"`
	AuthorName string    `json:"authorName,omitempty"`
	IsStaff    bool      `json:"isStaff"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Actor is the caller. Staff see and manage every ticket; others only their own.
type Actor struct {
	UserID string
	Staff  bool
}

type Filter struct {
	Status    Status
	Search    string
	CreatedBy string
	Limit     int
	Offset    int
}
