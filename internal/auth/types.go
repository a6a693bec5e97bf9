package auth

import "time"

// User is the principal record. Email is unique and stored lower-cased.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	PasswordHash string         `json:"-"`
	AccessLevel  AccessLevel    `json:"user_role"`
	Profile      map[string]any `json:"userProfile"`
	Status       int            `json:"userStatus"`
	Settings     map[string]any `json:"userSettings,omitempty"`
	TokenVersion int            `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    *time.Time     `json:"deleted_at,omitempty"`
	IsDeleted    bool           `json:"is_deleted"`
}

// Organization is the tenant boundary.
type Organization struct {
	ID        string         `json:"id"`
	Name      string         `json:"organizationName"`
	Status    int            `json:"organizationStatus"`
	Personal  bool           `json:"organizationPersonal"`
	Settings  map[string]any `json:"organizationSettings,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt *time.Time     `json:"deleted_at,omitempty"`
	IsDeleted bool           `json:"is_deleted"`
}

// Role is a named permission label scoped to one organization.
type Role struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"org_id"`
	Name           string     `json:"roleName"`
	Description    string     `json:"roleDescription,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	IsDeleted      bool       `json:"is_deleted"`
}

// Member binds a user to an organization under a role.
type Member struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	OrganizationID string         `json:"org_id"`
	RoleID         string         `json:"role_id"`
	Name           string         `json:"memberName"`
	Status         int            `json:"memberStatus"`
	Settings       map[string]any `json:"memberSettings,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
	IsDeleted      bool           `json:"is_deleted"`
}

// RevokedToken is a blacklist entry. Only the SHA-256 of the token is kept.
type RevokedToken struct {
	ID        string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// UserUpdate carries the mutable user fields; nil pointers are left untouched.
type UserUpdate struct {
	PasswordHash *string
	AccessLevel  *AccessLevel
	TokenVersion *int
	Status       *int
}
