package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tenantauth.org/internal/auth"
)

const userColumns = `id, email, password_hash, access_level, profile, status, settings,
	token_version, created_at, updated_at, deleted_at, is_deleted`

type userStore struct{ db querier }

func (s userStore) Create(ctx context.Context, u *auth.User) error {
	if s.db == nil {
		return errNoDB
	}
	profile, err := encodeDoc(u.Profile)
	if err != nil {
		return err
	}
	settings, err := encodeDoc(u.Settings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into users (id, email, password_hash, access_level, profile, status, settings,
			token_version, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, u.ID, strings.ToLower(u.Email), u.PasswordHash, int(u.AccessLevel), profile, u.Status, settings,
		u.TokenVersion, u.CreatedAt, u.UpdatedAt)
	return mapWriteErr(err, "user email")
}

func (s userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1 and not is_deleted`, id)
	return scanUser(row)
}

func (s userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1 and not is_deleted`, strings.ToLower(email))
	return scanUser(row)
}

func (s userStore) Update(ctx context.Context, id string, upd auth.UserUpdate) (*auth.User, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.PasswordHash != nil {
		sets = append(sets, fmt.Sprintf("password_hash = $%d", idx))
		args = append(args, *upd.PasswordHash)
		idx++
	}
	if upd.AccessLevel != nil {
		sets = append(sets, fmt.Sprintf("access_level = $%d", idx))
		args = append(args, int(*upd.AccessLevel))
		idx++
	}
	if upd.TokenVersion != nil {
		sets = append(sets, fmt.Sprintf("token_version = $%d", idx))
		args = append(args, *upd.TokenVersion)
		idx++
	}
	if upd.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", idx))
		args = append(args, *upd.Status)
		idx++
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update users set %s where id = $%d and not is_deleted`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, mapWriteErr(err, "user")
		}
		if err := expectAffected(res); err != nil {
			return nil, err
		}
	}
	return s.Find(ctx, id)
}

func (s userStore) CountByAccessLevel(ctx context.Context, level auth.AccessLevel) (int, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from users where access_level = $1 and not is_deleted`, int(level)).Scan(&n)
	return n, err
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u        auth.User
		level    int
		profile  []byte
		settings []byte
		deleted  sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &level, &profile, &u.Status, &settings,
		&u.TokenVersion, &u.CreatedAt, &u.UpdatedAt, &deleted, &u.IsDeleted)
	if err != nil {
		return nil, mapReadErr(err)
	}
	u.AccessLevel = auth.AccessLevel(level)
	if u.Profile, err = decodeDoc(profile); err != nil {
		return nil, err
	}
	if u.Settings, err = decodeDoc(settings); err != nil {
		return nil, err
	}
	u.DeletedAt = deletedAt(deleted)
	return &u, nil
}
