package pg

import (
	"context"
	"time"

	"tenantauth.org/internal/auth"
)

type blacklistStore struct{ db querier }

func (s blacklistStore) Add(ctx context.Context, tok *auth.RevokedToken) error {
	if s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		insert into token_blacklist (id, token_hash, expires_at, created_at)
		values ($1, $2, $3, $4)
		on conflict (token_hash) do nothing
	`, tok.ID, tok.TokenHash, tok.ExpiresAt, tok.CreatedAt)
	return err
}

func (s blacklistStore) Exists(ctx context.Context, tokenHash string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from token_blacklist where token_hash = $1)`, tokenHash).Scan(&exists)
	return exists, err
}

func (s blacklistStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from token_blacklist where expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
