package policy

import (
	"time"

	"notifycsc/internal/domain/expiry"
)

const (
	ChannelEmail = "email"
	ChannelInApp = "in_app"

	dateLayout = "2006-01-02"
)

// Record is the stored row. The mobile number only exists sealed.
type Record struct {
	ID             string
	PolicyNumber   string
	HolderName     string
	VehicleNumber  string
	VehicleType    string
	Insurer        string
	MobileEnc      []byte
	MobileDigest   string
	MobileLast4    string
	Email          string
	StartDate      time.Time
	ExpiryDate     time.Time
	Notes          string
	ReminderCount  int
	LastReminderAt *time.Time
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Input carries a create or update payload after handler validation.
type Input struct {
	PolicyNumber  string
	HolderName    string
	VehicleNumber string
	VehicleType   string
	Insurer       string
	Mobile        string
	Email         string
	StartDate     time.Time
	ExpiryDate    time.Time
	Notes         string
}

// View is the staff-facing representation. Expiry fields are derived on every read.
type View struct {
	ID               string        `json:"id"`
	PolicyNumber     string        `json:"policyNumber"`
	HolderName       string        `json:"holderName"`
	VehicleNumber    string        `json:"vehicleNumber"`
	VehicleType      string        `json:"vehicleType"`
	Insurer          string        `json:"insurer"`
	Mobile           string        `json:"mobile"`
	Email            string        `json:"email,omitempty"`
	PolicyStartDate  string        `json:"policyStartDate"`
	PolicyExpiryDate string        `json:"policyExpiryDate"`
	Notes            string        `json:"notes,omitempty"`
	ReminderCount    int           `json:"reminderCount"`
	LastReminderAt   *time.Time    `json:"lastReminderAt,omitempty"`
	DaysRemaining    int           `json:"daysRemaining"`
	ExpiryStatus     expiry.Status `json:"expiryStatus"`
	ExpiryLabel      string        `json:"expiryLabel"`
	ReminderEligible bool          `json:"reminderEligible"`
	ReminderReason   string        `json:"reminderUnavailableReason,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// Summary is what the public lookup returns: no full personal data.
type Summary struct {
	VehicleNumber    string        `json:"vehicleNumber"`
	HolderName       string        `json:"holderName"`
	Mobile           string        `json:"mobile"`
	Insurer          string        `json:"insurer"`
	PolicyExpiryDate string        `json:"policyExpiryDate"`
	DaysRemaining    int           `json:"daysRemaining"`
	ExpiryStatus     expiry.Status `json:"expiryStatus"`
	ExpiryLabel      string        `json:"expiryLabel"`
}

type Reminder struct {
	ID            string    `json:"id"`
	PolicyID      string    `json:"policyId"`
	SentBy        string    `json:"sentBy,omitempty"`
	Channel       string    `json:"channel"`
	DaysRemaining int       `json:"daysRemaining"`
	CreatedAt     time.Time `json:"createdAt"`
}

type ReminderResult struct {
	Reminder Reminder `json:"reminder"`
	Policy   View     `json:"policy"`
}

// Filter is the store-level list filter: search plus an inclusive expiry-date range.
type Filter struct {
	Search     string
	ExpiryFrom *time.Time
	ExpiryTo   *time.Time
	Limit      int
	Offset     int
}
