package auth

import (
	"context"
	"errors"
	"fmt"
)

// OwnerRoleName is the organization role allowed to administer members.
const OwnerRoleName = "owner"

// AuthorizeLevel checks the global numeric access level.
func AuthorizeLevel(user *User, required AccessLevel) error {
	if user == nil {
		return ErrUnauthenticated
	}
	if user.AccessLevel < required {
		return fmt.Errorf("%w: requires access level %s", ErrForbidden, required)
	}
	return nil
}

// AuthorizeRole checks that user is a member of orgID under the named role.
// It is independent from the numeric access level.
func AuthorizeRole(ctx context.Context, store Store, user *User, orgID, roleName string) error {
	if user == nil {
		return ErrUnauthenticated
	}
	member, err := store.Members().FindByUser(ctx, orgID, user.ID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: not a member of organization", ErrForbidden)
	}
	if err != nil {
		return fmt.Errorf("load membership: %w", err)
	}
	role, err := store.Roles().Find(ctx, member.RoleID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: membership role missing", ErrForbidden)
	}
	if err != nil {
		return fmt.Errorf("load role: %w", err)
	}
	if role.OrganizationID != orgID || role.Name != roleName {
		return fmt.Errorf("%w: requires role %q", ErrForbidden, roleName)
	}
	return nil
}
