package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SignupInput creates a user together with the organization it owns.
type SignupInput struct {
	Email                string         `json:"email"`
	Password             string         `json:"password"`
	AccessLevel          AccessLevel    `json:"user_role"`
	Profile              map[string]any `json:"userProfile"`
	UserStatus           int            `json:"userStatus"`
	UserSettings         map[string]any `json:"userSettings"`
	OrganizationName     string         `json:"organizationName"`
	OrganizationStatus   int            `json:"organizationStatus"`
	OrganizationPersonal bool           `json:"organizationPersonal"`
	OrganizationSettings map[string]any `json:"organizationSettings"`
	MemberName           string         `json:"memberName"`
	MemberStatus         int            `json:"memberStatus"`
}

// MemberInput binds an existing user to an organization under a role.
type MemberInput struct {
	UserID         string         `json:"user_id"`
	OrganizationID string         `json:"org_id"`
	RoleID         string         `json:"role_id"`
	Name           string         `json:"memberName"`
	Status         int            `json:"memberStatus"`
	Settings       map[string]any `json:"memberSettings"`
}

// Tenants implements the organization, role and membership flows.
type Tenants struct {
	store       Store
	hasher      Hasher
	now         func() time.Time
	log         *zap.Logger
	signupLevel AccessLevel
}

// TenantOption configures Tenants behavior.
type TenantOption func(*Tenants)

// WithTenantClock overrides the time source used for timestamps.
func WithTenantClock(fn func() time.Time) TenantOption {
	return func(t *Tenants) {
		if fn != nil {
			t.now = fn
		}
	}
}

// WithTenantLogger sets the logger for tenant flows.
func WithTenantLogger(log *zap.Logger) TenantOption {
	return func(t *Tenants) {
		if log != nil {
			t.log = log
		}
	}
}

// WithSignupLevelCeiling sets the highest access level a signup may request.
// Requests above it are rejected with ErrForbidden. The default admits only
// LevelGuestUser, so higher levels are granted through ChangeUserLevel.
func WithSignupLevelCeiling(level AccessLevel) TenantOption {
	return func(t *Tenants) {
		if level.Valid() {
			t.signupLevel = level
		}
	}
}

// NewTenants constructs the tenant service.
func NewTenants(store Store, hasher Hasher, opts ...TenantOption) (*Tenants, error) {
	if store == nil || hasher == nil {
		return nil, errors.New("auth: tenant store and hasher are required")
	}
	t := &Tenants{store: store, hasher: hasher, now: time.Now, log: zap.NewNop(), signupLevel: LevelGuestUser}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// EnsureOwnerRole returns the organization's owner role, creating it on first
// use. Concurrent callers converge on the row that was committed first.
func (t *Tenants) EnsureOwnerRole(ctx context.Context, orgID string) (*Role, error) {
	return t.ensureOwnerRole(ctx, t.store, orgID)
}

func (t *Tenants) ensureOwnerRole(ctx context.Context, store Store, orgID string) (*Role, error) {
	roles := store.Roles()
	role, err := roles.FindByName(ctx, orgID, OwnerRoleName)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load owner role: %w", err)
	}
	now := t.now().UTC()
	candidate := &Role{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Name:           OwnerRoleName,
		Description:    "Owner of the Organization",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = roles.Create(ctx, candidate)
	if err == nil {
		return candidate, nil
	}
	if !errors.Is(err, ErrDuplicate) {
		return nil, fmt.Errorf("create owner role: %w", err)
	}
	t.log.Debug("owner role created concurrently", zap.String("org_id", orgID))
	role, err = roles.FindByName(ctx, orgID, OwnerRoleName)
	if err != nil {
		return nil, fmt.Errorf("reload owner role: %w", err)
	}
	return role, nil
}

// Signup creates the user, its organization, the owner role and the owner
// membership in one transaction. The returned member describes the new
// tenant owner.
func (t *Tenants) Signup(ctx context.Context, in SignupInput) (*Member, error) {
	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	orgName := strings.TrimSpace(in.OrganizationName)
	if orgName == "" {
		return nil, fmt.Errorf("%w: organization name is required", ErrInvalidInput)
	}
	memberName := strings.TrimSpace(in.MemberName)
	if memberName == "" {
		return nil, fmt.Errorf("%w: member name is required", ErrInvalidInput)
	}
	if !in.AccessLevel.Valid() {
		return nil, fmt.Errorf("%w: unknown access level %d", ErrInvalidInput, int(in.AccessLevel))
	}
	if in.AccessLevel > t.signupLevel {
		return nil, fmt.Errorf("%w: signup cannot request access level %s", ErrForbidden, in.AccessLevel)
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	digest, err := t.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := t.now().UTC()
	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: digest,
		AccessLevel:  in.AccessLevel,
		Profile:      in.Profile,
		Status:       in.UserStatus,
		Settings:     in.UserSettings,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	org := &Organization{
		ID:        uuid.NewString(),
		Name:      orgName,
		Status:    in.OrganizationStatus,
		Personal:  in.OrganizationPersonal,
		Settings:  in.OrganizationSettings,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var member *Member
	err = t.store.WithTx(ctx, func(tx Store) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return fmt.Errorf("%w: email is already registered", ErrDuplicate)
			}
			return fmt.Errorf("create user: %w", err)
		}
		if err := tx.Organizations().Create(ctx, org); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return fmt.Errorf("%w: organization name is taken", ErrDuplicate)
			}
			return fmt.Errorf("create organization: %w", err)
		}
		role, err := t.ensureOwnerRole(ctx, tx, org.ID)
		if err != nil {
			return err
		}
		member, err = t.createMember(ctx, tx, MemberInput{
			UserID:         user.ID,
			OrganizationID: org.ID,
			RoleID:         role.ID,
			Name:           memberName,
			Status:         in.MemberStatus,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// InviteMember binds an existing user to an organization. Only callers at the
// owner access level may invite.
func (t *Tenants) InviteMember(ctx context.Context, caller *User, in MemberInput) (*Member, error) {
	if err := AuthorizeLevel(caller, LevelOwner); err != nil {
		return nil, err
	}
	in.UserID = strings.TrimSpace(in.UserID)
	in.OrganizationID = strings.TrimSpace(in.OrganizationID)
	in.RoleID = strings.TrimSpace(in.RoleID)
	in.Name = strings.TrimSpace(in.Name)
	if in.UserID == "" || in.OrganizationID == "" || in.RoleID == "" || in.Name == "" {
		return nil, fmt.Errorf("%w: user_id, org_id, role_id and memberName are required", ErrInvalidInput)
	}
	if _, err := t.store.Organizations().Find(ctx, in.OrganizationID); err != nil {
		return nil, wrapLookup("organization", err)
	}
	if _, err := t.store.Users().Find(ctx, in.UserID); err != nil {
		return nil, wrapLookup("user", err)
	}
	role, err := t.store.Roles().Find(ctx, in.RoleID)
	if err != nil {
		return nil, wrapLookup("role", err)
	}
	if role.OrganizationID != in.OrganizationID {
		return nil, fmt.Errorf("%w: role does not belong to organization", ErrNotFound)
	}
	return t.createMember(ctx, t.store, in)
}

// ChangeUserLevel sets the access level of the user with email. The caller
// must hold the owner access level.
func (t *Tenants) ChangeUserLevel(ctx context.Context, caller *User, email string, level AccessLevel) (*User, error) {
	if err := AuthorizeLevel(caller, LevelOwner); err != nil {
		return nil, err
	}
	if !level.Valid() {
		return nil, fmt.Errorf("%w: unknown access level %d", ErrInvalidInput, int(level))
	}
	users := t.store.Users()
	target, err := users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, wrapLookup("user", err)
	}
	updated, err := users.Update(ctx, target.ID, UserUpdate{AccessLevel: &level})
	if err != nil {
		return nil, wrapLookup("user", err)
	}
	return updated, nil
}

// CountUsersByLevel counts live users at exactly level.
func (t *Tenants) CountUsersByLevel(ctx context.Context, level AccessLevel) (int, error) {
	if !level.Valid() {
		return 0, fmt.Errorf("%w: unknown access level %d", ErrInvalidInput, int(level))
	}
	return t.store.Users().CountByAccessLevel(ctx, level)
}

// DeleteMember physically removes a membership. The caller must hold the
// owner role inside the organization.
func (t *Tenants) DeleteMember(ctx context.Context, caller *User, orgID, memberName string) error {
	orgID = strings.TrimSpace(orgID)
	memberName = strings.TrimSpace(memberName)
	if orgID == "" || memberName == "" {
		return fmt.Errorf("%w: org_id and memberName are required", ErrInvalidInput)
	}
	if err := AuthorizeRole(ctx, t.store, caller, orgID, OwnerRoleName); err != nil {
		return err
	}
	members := t.store.Members()
	member, err := members.FindByName(ctx, orgID, memberName)
	if err != nil {
		return wrapLookup("member", err)
	}
	if err := members.Delete(ctx, member.ID); err != nil {
		return wrapLookup("member", err)
	}
	return nil
}

func (t *Tenants) createMember(ctx context.Context, store Store, in MemberInput) (*Member, error) {
	now := t.now().UTC()
	member := &Member{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		OrganizationID: in.OrganizationID,
		RoleID:         in.RoleID,
		Name:           in.Name,
		Status:         in.Status,
		Settings:       in.Settings,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := store.Members().Create(ctx, member); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, fmt.Errorf("%w: member is already registered", ErrDuplicate)
		}
		return nil, fmt.Errorf("create member: %w", err)
	}
	return member, nil
}

func wrapLookup(entity string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, entity)
	}
	return fmt.Errorf("load %s: %w", entity, err)
}
