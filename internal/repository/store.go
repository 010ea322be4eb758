// Package repository implements the entity store for users and diary entries.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"diary/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	// CreateUser assigns the next id and stores the user. Duplicate usernames fail with CONFLICT.
	CreateUser(ctx context.Context, user models.User) (*models.User, error)
	// GetUser fails with NOT_FOUND for unknown ids.
	GetUser(ctx context.Context, id uint) (*models.User, error)
	// GetUserByUsername returns (nil, nil) when no user has that name.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// EntryRepository defines persistence operations for diary entries.
// Ownership is not checked here; callers enforce it.
type EntryRepository interface {
	CreateEntry(ctx context.Context, ownerID uint, fields models.EntryFields) (*models.DiaryEntry, error)
	// GetEntries returns the owner's entries, newest first.
	GetEntries(ctx context.Context, ownerID uint) ([]*models.DiaryEntry, error)
	// GetEntry fails with NOT_FOUND for unknown ids.
	GetEntry(ctx context.Context, id uint) (*models.DiaryEntry, error)
	// UpdateEntry replaces title and content and refreshes updatedAt.
	UpdateEntry(ctx context.Context, id uint, fields models.EntryFields) (*models.DiaryEntry, error)
	// DeleteEntry is a no-op for unknown ids.
	DeleteEntry(ctx context.Context, id uint) error
}

// Store is the full entity store contract.
type Store interface {
	UserRepository
	EntryRepository
}

// Clock supplies the current time for timestamps.
type Clock func() time.Time

// Option configures a store.
type Option func(*options)

type options struct {
	now Clock
}

// WithClock overrides time.Now.
func WithClock(now Clock) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// timestamp normalizes to UTC at the precision Postgres keeps.
func timestamp(now Clock) time.Time {
	return now().UTC().Truncate(time.Microsecond)
}

// refreshedAt returns the new updatedAt for an entry last touched at prev.
// It never goes backwards, even if the clock does.
func refreshedAt(now Clock, prev time.Time) time.Time {
	t := timestamp(now)
	if !t.After(prev) {
		t = prev.Add(time.Microsecond)
	}
	return t
}

func entryNotFound(id uint) *models.AppError {
	return models.NewNotFoundError("Entry", id)
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint")
}
