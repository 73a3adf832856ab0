package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/MrEthical07/authcore/identity"
	"github.com/jackc/pgx/v5/pgconn"
)

var columns = []string{
	"id", "name", "email", "password_hash", "email_verified", "enable_mfa",
	"email_notifications", "totp_secret", "created_at", "updated_at",
}

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return New(db), mock
}

func userRow(id, email string, verified, mfa bool, secret string) *sqlmock.Rows {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(columns).
		AddRow(id, "Alice", email, "hash", verified, mfa, false, secret, now, now)
}

func TestCreate_Success(t *testing.T) {
	s, mock := newStoreWithMock(t)

	q := `(?s)^INSERT\s+INTO\s+users\s*\(id,\s*name,\s*email,\s*password_hash\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*RETURNING\s+id,`
	mock.ExpectQuery(q).
		WithArgs(sqlmock.AnyArg(), "Alice", "alice@example.com", "hash").
		WillReturnRows(userRow("6f1c0f8e-6a0e-4c55-9b8a-0d3f2f1e2a11", "alice@example.com", false, false, ""))

	u, err := s.Create(context.Background(), identity.NewUser{Name: "Alice", Email: "alice@example.com", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if u.ID != "6f1c0f8e-6a0e-4c55-9b8a-0d3f2f1e2a11" || u.Email != "alice@example.com" || u.EmailVerified {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	_, err := s.Create(context.Background(), identity.NewUser{Name: "Alice", Email: "alice@example.com", PasswordHash: "hash"})
	if !errors.Is(err, identity.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+users`).WillReturnError(errors.New("db down"))

	_, err := s.Create(context.Background(), identity.NewUser{Name: "Alice", Email: "alice@example.com", PasswordHash: "hash"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestByEmail(t *testing.T) {
	s, mock := newStoreWithMock(t)

	q := `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+email\s*=\s*\$1$`
	mock.ExpectQuery(q).
		WithArgs("alice@example.com").
		WillReturnRows(userRow("u-1", "alice@example.com", true, true, "JBSWY3DPEHPK3PXP"))
	mock.ExpectQuery(q).
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	u, err := s.ByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("ByEmail error: %v", err)
	}
	if !u.EmailVerified || !u.Preferences.EnableMFA || u.Preferences.TOTPSecret != "JBSWY3DPEHPK3PXP" {
		t.Fatalf("unexpected user: %+v", u)
	}

	if _, err := s.ByEmail(context.Background(), "nobody@example.com"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestByID_NotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*WHERE\s+id\s*=\s*\$1$`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(columns))

	if _, err := s.ByID(context.Background(), "missing"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkEmailVerified(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)^UPDATE\s+users\s+SET\s+email_verified\s*=\s*TRUE.*RETURNING`).
		WithArgs("u-1").
		WillReturnRows(userRow("u-1", "alice@example.com", true, false, ""))

	u, err := s.MarkEmailVerified(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("MarkEmailVerified error: %v", err)
	}
	if !u.EmailVerified {
		t.Fatal("expected verified user")
	}
}

func TestUpdates(t *testing.T) {
	s, mock := newStoreWithMock(t)
	ctx := context.Background()

	mock.ExpectExec(`^UPDATE\s+users\s+SET\s+password_hash\s*=\s*\$2`).
		WithArgs("u-1", "new-hash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^UPDATE\s+users\s+SET\s+totp_secret\s*=\s*\$2`).
		WithArgs("u-1", "SECRET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^UPDATE\s+users\s+SET\s+enable_mfa\s*=\s*TRUE`).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^UPDATE\s+users\s+SET\s+enable_mfa\s*=\s*FALSE,\s*totp_secret\s*=\s*''`).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpdatePasswordHash(ctx, "u-1", "new-hash"); err != nil {
		t.Fatalf("UpdatePasswordHash error: %v", err)
	}
	if err := s.SetTOTPSecret(ctx, "u-1", "SECRET"); err != nil {
		t.Fatalf("SetTOTPSecret error: %v", err)
	}
	if err := s.EnableMFA(ctx, "u-1"); err != nil {
		t.Fatalf("EnableMFA error: %v", err)
	}
	if err := s.DisableMFA(ctx, "u-1"); err != nil {
		t.Fatalf("DisableMFA error: %v", err)
	}
}

func TestUpdate_NotFoundAndError(t *testing.T) {
	s, mock := newStoreWithMock(t)
	ctx := context.Background()

	mock.ExpectExec(`^UPDATE\s+users`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`^UPDATE\s+users`).
		WithArgs("u-1").
		WillReturnError(errors.New("conn reset"))

	if err := s.EnableMFA(ctx, "missing"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.EnableMFA(ctx, "u-1"); err == nil || !regexp.MustCompile(`db error: .*conn reset`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	data, err := migrations.ReadFile("migrations/00001_create_users.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if !regexp.MustCompile(`(?s)-- \+goose Up.*CREATE TABLE IF NOT EXISTS users.*-- \+goose Down`).Match(data) {
		t.Fatalf("unexpected migration content:\n%s", data)
	}
}
