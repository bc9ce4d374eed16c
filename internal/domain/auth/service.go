package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultSessionTTL = 8 * time.Hour
	ResetTokenTTL     = 2 * time.Hour
	mfaIssuer         = "Notify CSC"
)

// SecretBox seals MFA secrets at rest.
type SecretBox interface {
	Configured() bool
	SealString(value string) ([]byte, error)
	OpenString(sealed []byte) (string, error)
}

type Service struct {
	store  StoreAPI
	secret string
	ttl    time.Duration
	box    SecretBox
	clock  clockwork.Clock
}

type ServiceOption func(*Service)

func WithClock(clock clockwork.Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewService(store StoreAPI, secret string, box SecretBox, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		secret: secret,
		ttl:    DefaultSessionTTL,
		box:    box,
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Login(ctx context.Context, email, password, mfaCode string) (LoginResult, error) {
	user, err := s.store.FindActiveUserByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}
	if err := CheckPassword(user.Password, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if user.MFAEnabled {
		if strings.TrimSpace(mfaCode) == "" {
			return LoginResult{}, ErrMFARequired
		}
		secret, err := s.openSecret(user.MFASecretEn)
		if err != nil || secret == "" || !totp.Validate(mfaCode, secret) {
			return LoginResult{}, ErrMFAInvalid
		}
	}

	sessionID, err := NewOpaqueToken()
	if err != nil {
		return LoginResult{}, err
	}
	expires := s.clock.Now().Add(s.ttl)
	if err := s.store.CreateSession(ctx, user.ID, HashToken(sessionID), expires); err != nil {
		return LoginResult{}, fmt.Errorf("start session: %w", err)
	}

	token, err := GenerateToken(s.secret, Claims{
		UserID:    user.ID,
		RoleID:    user.RoleID,
		RoleName:  user.RoleName,
		SessionID: sessionID,
	}, s.ttl)
	if err != nil {
		return LoginResult{}, err
	}

	if err := s.store.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("update last_login failed", "userId", user.ID, "err", err)
	}

	return LoginResult{
		Token:     token,
		ExpiresAt: expires,
		User: User{
			ID:         user.ID,
			Email:      user.Email,
			Name:       user.Name,
			RoleID:     user.RoleID,
			Role:       user.RoleName,
			Status:     UserStatusActive,
			MFAEnabled: user.MFAEnabled,
		},
	}, nil
}

func (s *Service) Logout(ctx context.Context, user UserContext) error {
	if user.SessionID == "" {
		return nil
	}
	return s.store.RevokeSession(ctx, user.UserID, HashToken(user.SessionID))
}

// Refresh rotates the session behind a still-valid token and issues a new one.
func (s *Service) Refresh(ctx context.Context, rawToken string) (LoginResult, error) {
	claims, err := ParseToken(s.secret, rawToken)
	if err != nil {
		return LoginResult{}, ErrSessionExpired
	}

	newSessionID, err := NewOpaqueToken()
	if err != nil {
		return LoginResult{}, err
	}
	expires := s.clock.Now().Add(s.ttl)
	rotated, err := s.store.RotateSession(ctx, claims.UserID, HashToken(claims.SessionID), HashToken(newSessionID), expires)
	if err != nil {
		return LoginResult{}, fmt.Errorf("rotate session: %w", err)
	}
	if !rotated {
		return LoginResult{}, ErrSessionExpired
	}

	user, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		return LoginResult{}, err
	}
	token, err := GenerateToken(s.secret, Claims{
		UserID:    user.ID,
		RoleID:    user.RoleID,
		RoleName:  user.Role,
		SessionID: newSessionID,
	}, s.ttl)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, ExpiresAt: expires, User: user}, nil
}

// SessionActive backs the auth middleware: tokens whose session was revoked
// or has lapsed are treated as anonymous.
func (s *Service) SessionActive(ctx context.Context, userID, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	return s.store.SessionValid(ctx, userID, HashToken(sessionID))
}

func (s *Service) Me(ctx context.Context, userID string) (User, error) {
	return s.store.GetUser(ctx, userID)
}

func (s *Service) HasPermission(ctx context.Context, roleID, permission string) (bool, error) {
	return s.store.HasPermission(ctx, roleID, permission)
}

func (s *Service) SetupMFA(ctx context.Context, user UserContext) (MFASetup, error) {
	if s.box == nil || !s.box.Configured() {
		return MFASetup{}, ErrMFAUnavailable
	}
	profile, err := s.store.GetUser(ctx, user.UserID)
	if err != nil {
		return MFASetup{}, err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      mfaIssuer,
		AccountName: profile.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return MFASetup{}, err
	}
	sealed, err := s.box.SealString(key.Secret())
	if err != nil {
		return MFASetup{}, err
	}
	if err := s.store.UpdateMFASecret(ctx, user.UserID, sealed); err != nil {
		return MFASetup{}, err
	}
	return MFASetup{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

func (s *Service) EnableMFA(ctx context.Context, userID, code string) error {
	return s.toggleMFA(ctx, userID, code, true)
}

func (s *Service) DisableMFA(ctx context.Context, userID, code string) error {
	return s.toggleMFA(ctx, userID, code, false)
}

func (s *Service) toggleMFA(ctx context.Context, userID, code string, enabled bool) error {
	if s.box == nil || !s.box.Configured() {
		return ErrMFAUnavailable
	}
	sealed, err := s.store.GetMFASecret(ctx, userID)
	if err != nil {
		return err
	}
	if len(sealed) == 0 {
		return ErrMFANotSetUp
	}
	secret, err := s.box.OpenString(sealed)
	if err != nil {
		return ErrMFANotSetUp
	}
	if !totp.Validate(strings.TrimSpace(code), secret) {
		return ErrMFAInvalid
	}
	return s.store.SetMFAEnabled(ctx, userID, enabled)
}

// RequestPasswordReset returns the raw reset token for delivery. Unknown
// addresses return ErrUserNotFound, which callers must not reveal.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	userID, err := s.store.UserIDByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	token, err := NewOpaqueToken()
	if err != nil {
		return "", err
	}
	if err := s.store.CreatePasswordReset(ctx, userID, HashToken(token), s.clock.Now().Add(ResetTokenTTL)); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	_, err = s.store.ConsumePasswordReset(ctx, HashToken(strings.TrimSpace(token)), hash)
	return err
}

func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	role, ok := ParseRole(in.Role)
	if !ok {
		return User{}, ErrInvalidRole
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil {
		return User{}, fmt.Errorf("email: %w", err)
	}
	if err := ValidatePassword(in.Password); err != nil {
		return User{}, err
	}
	roleID, err := s.store.RoleID(ctx, role)
	if err != nil {
		return User{}, err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}
	return s.store.CreateUser(ctx, in.Email, in.Name, hash, roleID)
}

func (s *Service) ListUsers(ctx context.Context, role Role, limit, offset int) ([]User, int, error) {
	return s.store.ListUsers(ctx, role, limit, offset)
}

func (s *Service) SetUserStatus(ctx context.Context, userID, status string) error {
	if status != UserStatusActive && status != UserStatusDisabled {
		return fmt.Errorf("status must be %q or %q", UserStatusActive, UserStatusDisabled)
	}
	return s.store.SetUserStatus(ctx, userID, status)
}

func (s *Service) UserIDsByRole(ctx context.Context, roles ...Role) ([]string, error) {
	return s.store.UserIDsByRole(ctx, roles...)
}

// CleanupSessions deletes sessions that expired or were revoked before cutoff.
func (s *Service) CleanupSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx, cutoff)
}

func (s *Service) openSecret(sealed []byte) (string, error) {
	if s.box == nil || !s.box.Configured() {
		return string(sealed), nil
	}
	return s.box.OpenString(sealed)
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return ErrWeakPassword
	}
	return nil
}
