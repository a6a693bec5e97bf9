package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
// Unique violations surface as ErrDuplicate and missing rows as ErrNotFound.
type Store interface {
	Users() UserStore
	Organizations() OrganizationStore
	Roles() RoleStore
	Members() MemberStore
	Blacklist() BlacklistStore
	// WithTx runs fn against a view of the store whose writes commit together
	// when fn returns nil and are discarded otherwise. Nested calls join the
	// outer transaction.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// UserStore manages principals. Lookups skip soft-deleted rows.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, id string, upd UserUpdate) (*User, error)
	CountByAccessLevel(ctx context.Context, level AccessLevel) (int, error)
}

// OrganizationStore manages tenants.
type OrganizationStore interface {
	Create(ctx context.Context, org *Organization) error
	Find(ctx context.Context, id string) (*Organization, error)
	FindByName(ctx context.Context, name string) (*Organization, error)
}

// RoleStore manages organization-scoped roles. Names are unique per org.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, orgID, name string) (*Role, error)
}

// MemberStore manages user/organization bindings. Names are unique per org.
type MemberStore interface {
	Create(ctx context.Context, m *Member) error
	FindByName(ctx context.Context, orgID, name string) (*Member, error)
	FindByUser(ctx context.Context, orgID, userID string) (*Member, error)
	// Delete physically removes the row; it is the administrative path only.
	Delete(ctx context.Context, id string) error
}

// BlacklistStore persists revoked token hashes.
type BlacklistStore interface {
	// Add is idempotent on TokenHash.
	Add(ctx context.Context, tok *RevokedToken) error
	Exists(ctx context.Context, tokenHash string) (bool, error)
	// Prune drops entries whose original token expired before the cutoff.
	Prune(ctx context.Context, before time.Time) (int64, error)
}
