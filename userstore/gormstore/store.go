// Package gormstore implements identity.Store on GORM. With the SQLite
// driver it is the single-node and development default.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type userRecord struct {
	ID                 string `gorm:"primaryKey;size:36"`
	Name               string `gorm:"size:255;not null"`
	Email              string `gorm:"size:255;not null;uniqueIndex"`
	PasswordHash       string `gorm:"not null"`
	EmailVerified      bool   `gorm:"not null;default:false"`
	EnableMFA          bool   `gorm:"column:enable_mfa;not null;default:false"`
	EmailNotifications bool   `gorm:"not null;default:false"`
	TOTPSecret         string `gorm:"column:totp_secret;size:255"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (userRecord) TableName() string { return "users" }

func (r *userRecord) toUser() *identity.User {
	return &identity.User{
		ID:            r.ID,
		Name:          r.Name,
		Email:         r.Email,
		PasswordHash:  r.PasswordHash,
		EmailVerified: r.EmailVerified,
		Preferences: identity.Preferences{
			EnableMFA:          r.EnableMFA,
			EmailNotifications: r.EmailNotifications,
			TOTPSecret:         r.TOTPSecret,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// Store persists users through a *gorm.DB.
type Store struct {
	db *gorm.DB
}

var _ identity.Store = (*Store)(nil)

// New wraps db. The connection should be opened with TranslateError so
// duplicate emails surface as identity.ErrEmailTaken.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// OpenSQLite opens (or creates) the SQLite database at path and migrates
// the users table.
func OpenSQLite(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("gormstore: open %s: %w", path, err)
	}

	// Every ":memory:" connection is a separate database.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	s := New(db)
	if err := s.Migrate(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates or updates the users table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&userRecord{}); err != nil {
		return fmt.Errorf("gormstore: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Create(ctx context.Context, u identity.NewUser) (*identity.User, error) {
	rec := userRecord{
		ID:           uuid.NewString(),
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, identity.ErrEmailTaken
		}
		return nil, fmt.Errorf("gormstore: create user: %w", err)
	}
	return rec.toUser(), nil
}

func (s *Store) ByID(ctx context.Context, id string) (*identity.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *Store) ByEmail(ctx context.Context, email string) (*identity.User, error) {
	return s.first(ctx, "email = ?", email)
}

func (s *Store) first(ctx context.Context, query string, arg any) (*identity.User, error) {
	var rec userRecord
	err := s.db.WithContext(ctx).Where(query, arg).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("gormstore: find user: %w", err)
	}
	return rec.toUser(), nil
}

func (s *Store) MarkEmailVerified(ctx context.Context, id string) (*identity.User, error) {
	if err := s.update(ctx, id, map[string]any{"email_verified": true}); err != nil {
		return nil, err
	}
	return s.ByID(ctx, id)
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.update(ctx, id, map[string]any{"password_hash": hash})
}

func (s *Store) SetTOTPSecret(ctx context.Context, id, secret string) error {
	return s.update(ctx, id, map[string]any{"totp_secret": secret})
}

func (s *Store) EnableMFA(ctx context.Context, id string) error {
	return s.update(ctx, id, map[string]any{"enable_mfa": true})
}

// DisableMFA turns MFA off and clears the TOTP secret in one statement.
func (s *Store) DisableMFA(ctx context.Context, id string) error {
	return s.update(ctx, id, map[string]any{"enable_mfa": false, "totp_secret": ""})
}

func (s *Store) update(ctx context.Context, id string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("gormstore: update user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return identity.ErrNotFound
	}
	return nil
}
