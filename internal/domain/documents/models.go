package documents

import (
	"errors"
	"io"
	"strings"
	"time"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var Statuses = []Status{StatusPending, StatusApproved, StatusRejected}

func ParseStatus(raw string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, status := range Statuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

var (
	ErrNotFound          = errors.New("document not found")
	ErrCategoryNotFound  = errors.New("document category not found")
	ErrDuplicateCategory = errors.New("a category with this name already exists")
	ErrAlreadyReviewed   = errors.New("document has already been reviewed")
	ErrReasonRequired    = errors.New("a rejection reason is required")
	ErrForbidden         = errors.New("not allowed to modify this document")
	ErrEmptyFile         = errors.New("uploaded file is empty")
)

type Category struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	DocumentCount int       `json:"documentCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Document struct {
	ID              string     `json:"id"`
	CategoryID      string     `json:"categoryId,omitempty"`
	CategoryName    string     `json:"categoryName,omitempty"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	FileName        string     `json:"fileName"`
	ContentType     string     `json:"contentType"`
	SizeBytes       int64      `json:"sizeBytes"`
	StorageKey      string     `json:"storageKey"`
	Status          Status     `json:"status"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	UploadedBy      string     `json:"uploadedBy,omitempty"`
	ReviewedBy      string     `json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Viewer scopes reads: without Reviewer a user sees approved documents and
// their own uploads.
type Viewer struct {
	UserID   string
	Reviewer bool
}

type Filter struct {
	Status     Status
	Search     string
	CategoryID string
	Viewer     Viewer
	Limit      int
	Offset     int
}

type UploadInput struct {
	CategoryID  string
	Title       string
	Description string
	FileName    string
	ContentType string
	Size        int64
}

// Download is either a redirect URL or an open object stream.
type Download struct {
	Document Document
	URL      string
	Body     io.ReadCloser
}
