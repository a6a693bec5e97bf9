package pg

import (
	"context"
	"database/sql"

	"tenantauth.org/internal/auth"
)

type orgStore struct{ db querier }

const orgColumns = `id, name, status, personal, settings, created_at, updated_at, deleted_at, is_deleted`

func (s orgStore) Create(ctx context.Context, org *auth.Organization) error {
	if s.db == nil {
		return errNoDB
	}
	settings, err := encodeDoc(org.Settings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into organizations (id, name, status, personal, settings, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, org.ID, org.Name, org.Status, org.Personal, settings, org.CreatedAt, org.UpdatedAt)
	return mapWriteErr(err, "organization name")
}

func (s orgStore) Find(ctx context.Context, id string) (*auth.Organization, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	return scanOrganization(s.db.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where id = $1 and not is_deleted`, id))
}

func (s orgStore) FindByName(ctx context.Context, name string) (*auth.Organization, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	return scanOrganization(s.db.QueryRowContext(ctx,
		`select `+orgColumns+` from organizations where name = $1 and not is_deleted`, name))
}

func scanOrganization(row rowScanner) (*auth.Organization, error) {
	var (
		org      auth.Organization
		settings []byte
		deleted  sql.NullTime
	)
	err := row.Scan(&org.ID, &org.Name, &org.Status, &org.Personal, &settings,
		&org.CreatedAt, &org.UpdatedAt, &deleted, &org.IsDeleted)
	if err != nil {
		return nil, mapReadErr(err)
	}
	if org.Settings, err = decodeDoc(settings); err != nil {
		return nil, err
	}
	org.DeletedAt = deletedAt(deleted)
	return &org, nil
}

type roleStore struct{ db querier }

const roleColumns = `id, organization_id, name, description, created_at, updated_at, deleted_at, is_deleted`

func (s roleStore) Create(ctx context.Context, role *auth.Role) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into roles (id, organization_id, name, description, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)
	`, role.ID, role.OrganizationID, role.Name, nullIfEmpty(role.Description), role.CreatedAt, role.UpdatedAt)
	return mapWriteErr(err, "role name")
}

func (s roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	return scanRole(s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where id = $1 and not is_deleted`, id))
}

func (s roleStore) FindByName(ctx context.Context, orgID, name string) (*auth.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	return scanRole(s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where organization_id = $1 and name = $2 and not is_deleted`, orgID, name))
}

func scanRole(row rowScanner) (*auth.Role, error) {
	var (
		role    auth.Role
		desc    sql.NullString
		deleted sql.NullTime
	)
	err := row.Scan(&role.ID, &role.OrganizationID, &role.Name, &desc,
		&role.CreatedAt, &role.UpdatedAt, &deleted, &role.IsDeleted)
	if err != nil {
		return nil, mapReadErr(err)
	}
	role.Description = desc.String
	role.DeletedAt = deletedAt(deleted)
	return &role, nil
}

type memberStore struct{ db querier }

const memberColumns = `id, user_id, organization_id, role_id, name, status, settings,
	created_at, updated_at, deleted_at, is_deleted`

func (s memberStore) Create(ctx context.Context, m *auth.Member) error {
	if s.db == nil {
		return errNoDB
	}
	settings, err := encodeDoc(m.Settings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into members (id, user_id, organization_id, role_id, name, status, settings, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, m.ID, m.UserID, m.OrganizationID, m.RoleID, m.Name, m.Status, settings, m.CreatedAt, m.UpdatedAt)
	return mapWriteErr(err, "member name")
}

func (s memberStore) FindByName(ctx context.Context, orgID, name string) (*auth.Member, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	return scanMember(s.db.QueryRowContext(ctx,
		`select `+memberColumns+` from members where organization_id = $1 and name = $2 and not is_deleted`, orgID, name))
}

func (s memberStore) FindByUser(ctx context.Context, orgID, userID string) (*auth.Member, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	return scanMember(s.db.QueryRowContext(ctx,
		`select `+memberColumns+` from members where organization_id = $1 and user_id = $2 and not is_deleted
		order by created_at, id limit 1`, orgID, userID))
}

func (s memberStore) Delete(ctx context.Context, id string) error {
	if s.db == nil {
		return errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from members where id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func scanMember(row rowScanner) (*auth.Member, error) {
	var (
		m        auth.Member
		settings []byte
		deleted  sql.NullTime
	)
	err := row.Scan(&m.ID, &m.UserID, &m.OrganizationID, &m.RoleID, &m.Name, &m.Status, &settings,
		&m.CreatedAt, &m.UpdatedAt, &deleted, &m.IsDeleted)
	if err != nil {
		return nil, mapReadErr(err)
	}
	if m.Settings, err = decodeDoc(settings); err != nil {
		return nil, err
	}
	m.DeletedAt = deletedAt(deleted)
	return &m, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
