package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"notifycsc/internal/domain/expiry"
	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/domain/notifications"
	"notifycsc/internal/platform/email"
)

const lookupLimit = 5

// Sealer protects the mobile number at rest.
type Sealer interface {
	SealString(value string) ([]byte, error)
	OpenString(sealed []byte) (string, error)
	Digest(value string) string
}

type Notifier interface {
	Create(ctx context.Context, userID, ntype, title, body string) error
}

type Service struct {
	store    StoreAPI
	box      Sealer
	notifier Notifier
	mailer   email.Sender
	mailFrom string
	clock    clockwork.Clock
	loc      *time.Location
}

type Option func(*Service)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithLocation sets the zone in which "today" is evaluated.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMailer(sender email.Sender, from string) Option {
	return func(s *Service) {
		s.mailer = sender
		s.mailFrom = from
	}
}

func NewService(store StoreAPI, box Sealer, opts ...Option) *Service {
	s := &Service{store: store, box: box, clock: clockwork.NewRealClock(), loc: time.Local}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now() time.Time {
	return s.clock.Now().In(s.loc)
}

func (s *Service) Create(ctx context.Context, actorID string, in Input) (View, error) {
	rec, err := s.buildRecord(in)
	if err != nil {
		return View{}, err
	}
	rec.CreatedBy = actorID
	created, err := s.store.Create(ctx, rec)
	if err != nil {
		return View{}, err
	}
	return s.toView(created, s.now()), nil
}

func (s *Service) Update(ctx context.Context, id string, in Input) (View, error) {
	rec, err := s.buildRecord(in)
	if err != nil {
		return View{}, err
	}
	rec.ID = id
	updated, err := s.store.Update(ctx, rec)
	if err != nil {
		return View{}, err
	}
	return s.toView(updated, s.now()), nil
}

func (s *Service) buildRecord(in Input) (Record, error) {
	if !in.ExpiryDate.After(in.StartDate) {
		return Record{}, ErrInvalidDates
	}
	mobile := strings.TrimSpace(in.Mobile)
	sealed, err := s.box.SealString(mobile)
	if err != nil {
		return Record{}, fmt.Errorf("seal mobile: %w", err)
	}
	return Record{
		PolicyNumber:  strings.TrimSpace(in.PolicyNumber),
		HolderName:    strings.Join(strings.Fields(in.HolderName), " "),
		VehicleNumber: NormalizeVehicleNumber(in.VehicleNumber),
		VehicleType:   strings.TrimSpace(in.VehicleType),
		Insurer:       strings.TrimSpace(in.Insurer),
		MobileEnc:     sealed,
		MobileDigest:  s.box.Digest(mobile),
		MobileLast4:   lastFour(mobile),
		Email:         strings.ToLower(strings.TrimSpace(in.Email)),
		StartDate:     civilDate(in.StartDate),
		ExpiryDate:    civilDate(in.ExpiryDate),
		Notes:         strings.TrimSpace(in.Notes),
	}, nil
}

func (s *Service) Get(ctx context.Context, id string) (View, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	return s.toView(rec, s.now()), nil
}

// List translates a status filter into an expiry-date window and intersects
// it with any explicit range. An empty intersection returns no items without
// querying.
func (s *Service) List(ctx context.Context, q listquery.Query) (listquery.Result[View], error) {
	q = q.Normalize(listquery.DefaultPageSize)
	if err := q.Validate(); err != nil {
		return listquery.Result[View]{}, err
	}
	now := s.now()
	filter := Filter{
		Search:     q.Search,
		ExpiryFrom: q.ExpiryFrom,
		ExpiryTo:   q.ExpiryTo,
		Limit:      q.Limit,
		Offset:     q.Offset(),
	}
	if q.Status != "" {
		status, ok := expiry.ParseStatus(q.Status)
		if !ok {
			return listquery.Result[View]{}, ErrInvalidStatus
		}
		from, to := expiry.Window(status, now)
		filter.ExpiryFrom = later(filter.ExpiryFrom, from)
		filter.ExpiryTo = earlier(filter.ExpiryTo, to)
		if listquery.ValidateRange(filter.ExpiryFrom, filter.ExpiryTo) != nil {
			return listquery.NewResult[View](nil, 0, q.Limit), nil
		}
	}

	records, total, err := s.store.List(ctx, filter)
	if err != nil {
		return listquery.Result[View]{}, err
	}
	views := make([]View, 0, len(records))
	for _, rec := range records {
		views = append(views, s.toView(rec, now))
	}
	return listquery.NewResult(views, total, q.Limit), nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.SoftDelete(ctx, id)
}

// SendReminder re-checks the reminder window against the current date, mails
// the holder when an address is on file and records the attempt.
func (s *Service) SendReminder(ctx context.Context, actorID, id string) (ReminderResult, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return ReminderResult{}, err
	}
	now := s.now()
	class := s.classify(rec, now)
	if !expiry.ReminderEligible(class.DaysRemaining) {
		return ReminderResult{}, fmt.Errorf("%w: %d days remaining", ErrReminderNotEligible, class.DaysRemaining)
	}

	channel := ChannelInApp
	if rec.Email != "" && s.mailer != nil {
		msg := email.Message{
			From:    s.mailFrom,
			To:      rec.Email,
			Subject: fmt.Sprintf("Insurance renewal due for %s", rec.VehicleNumber),
			Body:    reminderBody(rec, class),
		}
		if err := s.mailer.Send(ctx, msg); err != nil {
			slog.Warn("reminder email failed", "policyId", rec.ID, "err", err)
		} else {
			channel = ChannelEmail
		}
	}

	reminder, err := s.store.RecordReminder(ctx, rec.ID, actorID, channel, class.DaysRemaining, now)
	if err != nil {
		return ReminderResult{}, err
	}

	if s.notifier != nil && actorID != "" {
		title := fmt.Sprintf("Reminder sent for %s", rec.VehicleNumber)
		body := fmt.Sprintf("%s: %s, %d days remaining", rec.HolderName, class.Status.Label(), class.DaysRemaining)
		if err := s.notifier.Create(ctx, actorID, notifications.TypeReminderSent, title, body); err != nil {
			slog.Warn("reminder notification failed", "policyId", rec.ID, "err", err)
		}
	}

	rec.ReminderCount++
	rec.LastReminderAt = &reminder.CreatedAt
	return ReminderResult{Reminder: reminder, Policy: s.toView(rec, now)}, nil
}

func reminderBody(rec Record, class expiry.Classification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", rec.HolderName)
	if class.DaysRemaining == 0 {
		fmt.Fprintf(&b, "The insurance for vehicle %s expires today (%s).\n", rec.VehicleNumber, rec.ExpiryDate.Format(dateLayout))
	} else {
		fmt.Fprintf(&b, "The insurance for vehicle %s expires on %s, in %d day(s).\n", rec.VehicleNumber, rec.ExpiryDate.Format(dateLayout), class.DaysRemaining)
	}
	if rec.Insurer != "" {
		fmt.Fprintf(&b, "Insurer: %s\n", rec.Insurer)
	}
	if rec.PolicyNumber != "" {
		fmt.Fprintf(&b, "Policy number: %s\n", rec.PolicyNumber)
	}
	b.WriteString("\nPlease visit your nearest CSC centre to renew.\n")
	return b.String()
}

func (s *Service) Reminders(ctx context.Context, id string) ([]Reminder, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Reminders(ctx, id)
}

// Lookup serves the public status check. value must already be validated
// for the lookup type; mobile numbers are matched by digest only.
func (s *Service) Lookup(ctx context.Context, kind listquery.LookupType, value string) ([]Summary, error) {
	var (
		records []Record
		err     error
	)
	switch kind {
	case listquery.LookupVehicle:
		vehicle := NormalizeVehicleNumber(value)
		if len(vehicle) < 4 {
			return nil, ErrInvalidLookup
		}
		records, err = s.store.FindByVehicle(ctx, vehicle, lookupLimit)
	case listquery.LookupMobile:
		if strings.TrimSpace(value) == "" {
			return nil, ErrInvalidLookup
		}
		records, err = s.store.FindByMobileDigest(ctx, s.box.Digest(strings.TrimSpace(value)), lookupLimit)
	default:
		return nil, ErrInvalidLookup
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]Summary, 0, len(records))
	for _, rec := range records {
		class := s.classify(rec, now)
		out = append(out, Summary{
			VehicleNumber:    MaskVehicleNumber(rec.VehicleNumber),
			HolderName:       MaskName(rec.HolderName),
			Mobile:           MaskMobile(rec.MobileLast4),
			Insurer:          rec.Insurer,
			PolicyExpiryDate: rec.ExpiryDate.Format(dateLayout),
			DaysRemaining:    class.DaysRemaining,
			ExpiryStatus:     class.Status,
			ExpiryLabel:      class.Status.Label(),
		})
	}
	return out, nil
}

func (s *Service) classify(rec Record, now time.Time) expiry.Classification {
	y, m, d := rec.ExpiryDate.Date()
	return expiry.Classify(time.Date(y, m, d, 0, 0, 0, 0, now.Location()), now)
}

func (s *Service) toView(rec Record, now time.Time) View {
	mobile, err := s.box.OpenString(rec.MobileEnc)
	if err != nil {
		slog.Warn("policy mobile decrypt failed", "policyId", rec.ID, "err", err)
		mobile = MaskMobile(rec.MobileLast4)
	}
	class := s.classify(rec, now)
	view := View{
		ID:               rec.ID,
		PolicyNumber:     rec.PolicyNumber,
		HolderName:       rec.HolderName,
		VehicleNumber:    rec.VehicleNumber,
		VehicleType:      rec.VehicleType,
		Insurer:          rec.Insurer,
		Mobile:           mobile,
		Email:            rec.Email,
		PolicyStartDate:  rec.StartDate.Format(dateLayout),
		PolicyExpiryDate: rec.ExpiryDate.Format(dateLayout),
		Notes:            rec.Notes,
		ReminderCount:    rec.ReminderCount,
		LastReminderAt:   rec.LastReminderAt,
		DaysRemaining:    class.DaysRemaining,
		ExpiryStatus:     class.Status,
		ExpiryLabel:      class.Status.Label(),
		ReminderEligible: expiry.ReminderEligible(class.DaysRemaining),
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
	if !view.ReminderEligible {
		view.ReminderReason = expiry.ReminderUnavailableReason
	}
	return view
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func later(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	}
	return a
}

func earlier(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	}
	return a
}
