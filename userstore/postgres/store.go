// Package postgres implements identity.Store on PostgreSQL through the pgx
// database/sql driver. The schema ships as embedded goose migrations.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/identity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

// DBTX is the subset of database/sql the store uses. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db   DBTX
	conn *sql.DB
}

var _ identity.Store = (*Store)(nil)

func New(db DBTX) *Store {
	return &Store{db: db}
}

// Open connects to dsn, checks the connection and applies pending
// migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	s := New(db)
	s.conn = db
	return s, nil
}

// Migrate applies the embedded migrations to db.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

// Close closes the connection pool opened by Open. It is a no-op for
// stores built with New.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

const userColumns = `id, name, email, password_hash, email_verified, enable_mfa,
       email_notifications, totp_secret, created_at, updated_at`

func scanUser(row *sql.Row) (*identity.User, error) {
	u := &identity.User{}
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.EmailVerified,
		&u.Preferences.EnableMFA, &u.Preferences.EmailNotifications, &u.Preferences.TOTPSecret,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, identity.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (s *Store) Create(ctx context.Context, u identity.NewUser) (*identity.User, error) {
	query :=
		`INSERT INTO users (id, name, email, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING ` + userColumns

	user, err := scanUser(s.db.QueryRowContext(ctx, query, uuid.NewString(), u.Name, u.Email, u.PasswordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, identity.ErrEmailTaken
		}
		return nil, err
	}
	return user, nil
}

func (s *Store) ByID(ctx context.Context, id string) (*identity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) ByEmail(ctx context.Context, email string) (*identity.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *Store) MarkEmailVerified(ctx context.Context, id string) (*identity.User, error) {
	query :=
		`UPDATE users SET email_verified = TRUE, updated_at = now()
		 WHERE id = $1
		 RETURNING ` + userColumns
	return scanUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
}

func (s *Store) SetTOTPSecret(ctx context.Context, id, secret string) error {
	return s.exec(ctx, `UPDATE users SET totp_secret = $2, updated_at = now() WHERE id = $1`, id, secret)
}

func (s *Store) EnableMFA(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE users SET enable_mfa = TRUE, updated_at = now() WHERE id = $1`, id)
}

// DisableMFA turns MFA off and clears the TOTP secret in one statement.
func (s *Store) DisableMFA(ctx context.Context, id string) error {
	return s.exec(ctx, `UPDATE users SET enable_mfa = FALSE, totp_secret = '', updated_at = now() WHERE id = $1`, id)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}
