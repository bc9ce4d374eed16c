package auth

import "time"

// UserContext is the authenticated caller attached to a request context.
type UserContext struct {
	UserID    string
	RoleID    string
	RoleName  string
	SessionID string
}

func (u UserContext) Role() Role {
	role, _ := ParseRole(u.RoleName)
	return role
}

func (u UserContext) IsStaff() bool {
	return u.Role().IsStaff()
}

type AuthUser struct {
	ID          string
	Email       string
	Name        string
	RoleID      string
	RoleName    string
	Password    string
	MFAEnabled  bool
	MFASecretEn []byte
}

type User struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	RoleID     string     `json:"roleId"`
	Role       string     `json:"role"`
	Status     string     `json:"status"`
	MFAEnabled bool       `json:"mfaEnabled"`
	LastLogin  *time.Time `json:"lastLogin,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

type CreateUserInput struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type MFASetup struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
}
