package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"tenantauth.org/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

var userCols = []string{"id", "email", "password_hash", "access_level", "profile", "status", "settings",
	"token_version", "created_at", "updated_at", "deleted_at", "is_deleted"}

func TestUserFindByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery("select .* from users where email = \\$1 and not is_deleted").
		WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u1", "a@x.com", "digest", 100, []byte(`{"name":"Alice"}`), 0, []byte(`{}`), 2, now, now, nil, false))

	u, err := store.Users().FindByEmail(context.Background(), "A@x.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if u.ID != "u1" || u.AccessLevel != auth.LevelOwner || u.TokenVersion != 2 {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.Profile["name"] != "Alice" {
		t.Fatalf("profile not decoded: %v", u.Profile)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserFindMissing(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select .* from users where id = \\$1").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(userCols))

	if _, err := store.Users().Find(context.Background(), "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUserCreateDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Users().Create(context.Background(), &auth.User{ID: "u1", Email: "a@x.com"})
	if !errors.Is(err, auth.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestUserUpdateBuildsSetClause(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	hash := "new-digest"
	version := 3
	mock.ExpectExec("update users set password_hash = \\$1, token_version = \\$2, updated_at = now\\(\\) where id = \\$3").
		WithArgs(hash, version, "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select .* from users where id = \\$1").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u1", "a@x.com", hash, 0, nil, 0, nil, version, now, now, nil, false))

	u, err := store.Users().Update(context.Background(), "u1", auth.UserUpdate{PasswordHash: &hash, TokenVersion: &version})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if u.PasswordHash != hash || u.TokenVersion != version {
		t.Fatalf("unexpected user: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserUpdateMissing(t *testing.T) {
	store, mock := newMockStore(t)
	level := auth.LevelManager
	mock.ExpectExec("update users set access_level").
		WithArgs(int(level), "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if _, err := store.Users().Update(context.Background(), "u1", auth.UserUpdate{AccessLevel: &level}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRoleFindByNameAndDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	cols := []string{"id", "organization_id", "name", "description", "created_at", "updated_at", "deleted_at", "is_deleted"}
	mock.ExpectExec("insert into roles").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectQuery("select .* from roles where organization_id = \\$1 and name = \\$2").
		WithArgs("org-1", "owner").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("r1", "org-1", "owner", nil, now, now, nil, false))

	err := store.Roles().Create(context.Background(), &auth.Role{ID: "r2", OrganizationID: "org-1", Name: "owner"})
	if !errors.Is(err, auth.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	role, err := store.Roles().FindByName(context.Background(), "org-1", "owner")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if role.ID != "r1" || role.Description != "" {
		t.Fatalf("unexpected role: %+v", role)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMemberCreateMissingReference(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("insert into members").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	err := store.Members().Create(context.Background(), &auth.Member{ID: "m1", OrganizationID: "nope", Name: "Alice"})
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemberDelete(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("delete from members where id = \\$1").
		WithArgs("m1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from members where id = \\$1").
		WithArgs("m1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Members().Delete(context.Background(), "m1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Members().Delete(context.Background(), "m1"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBlacklistRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)
	exp := time.Now().Add(time.Hour).UTC()
	mock.ExpectExec("insert into token_blacklist .* on conflict \\(token_hash\\) do nothing").
		WithArgs("id-1", "hash-1", exp, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("select exists").
		WithArgs("hash-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("delete from token_blacklist where expires_at < \\$1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	bl := store.Blacklist()
	ctx := context.Background()
	if err := bl.Add(ctx, &auth.RevokedToken{ID: "id-1", TokenHash: "hash-1", ExpiresAt: exp, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	ok, err := bl.Exists(ctx, "hash-1")
	if err != nil || !ok {
		t.Fatalf("Exists: %v %v", ok, err)
	}
	n, err := bl.Prune(ctx, time.Now())
	if err != nil || n != 4 {
		t.Fatalf("Prune: %d %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTxCommits(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into organizations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	err := store.WithTx(ctx, func(tx auth.Store) error {
		if err := tx.Users().Create(ctx, &auth.User{ID: "u1", Email: "a@x.com"}); err != nil {
			return err
		}
		return tx.Organizations().Create(ctx, &auth.Organization{ID: "o1", Name: "Acme"})
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("insert into users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into organizations").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	ctx := context.Background()
	err := store.WithTx(ctx, func(tx auth.Store) error {
		if err := tx.Users().Create(ctx, &auth.User{ID: "u1", Email: "b@x.com"}); err != nil {
			return err
		}
		return tx.WithTx(ctx, func(inner auth.Store) error {
			return inner.Organizations().Create(ctx, &auth.Organization{ID: "o1", Name: "Acme"})
		})
	})
	if !errors.Is(err, auth.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWithTxWithoutDB(t *testing.T) {
	store := New(nil)
	err := store.WithTx(context.Background(), func(auth.Store) error { return nil })
	if !errors.Is(err, errNoDB) {
		t.Fatalf("expected errNoDB, got %v", err)
	}
	if err := store.Users().Create(context.Background(), &auth.User{ID: "u1"}); !errors.Is(err, errNoDB) {
		t.Fatalf("expected errNoDB from sub-store, got %v", err)
	}
}
