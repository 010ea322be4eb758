// Package seed fills a store with demo users and diary entries for
// development and testing.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"diary/internal/middleware"
	"diary/internal/models"
	"diary/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every generated demo user.
const DefaultPassword = "diary-demo-password"

// Options configures Demo.
type Options struct {
	Users          int
	EntriesPerUser int
	Password       string
	// Seed makes the generated content reproducible; 0 picks a random seed.
	Seed int64
	// PasswordCost overrides bcrypt.DefaultCost.
	PasswordCost int
	// UsernamePrefix, when set, names users <prefix>_1, <prefix>_2, ... instead of fake names.
	UsernamePrefix string
}

// Summary reports what a seeding run created.
type Summary struct {
	Users   []*models.User
	Entries int
}

var unsafeUsernameChars = regexp.MustCompile(`[^a-z0-9_.-]`)

// Demo creates opts.Users users, each with opts.EntriesPerUser entries.
func Demo(ctx context.Context, store repository.Store, opts Options) (*Summary, error) {
	if opts.Users <= 0 {
		opts.Users = 3
	}
	if opts.EntriesPerUser < 0 {
		opts.EntriesPerUser = 0
	}
	if opts.Password == "" {
		opts.Password = DefaultPassword
	}

	faker := gofakeit.New(opts.Seed)
	hash, err := hashPassword(opts.Password, opts.PasswordCost)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for i := 0; i < opts.Users; i++ {
		user, err := store.CreateUser(ctx, models.User{
			Username: demoUsername(faker, opts.UsernamePrefix, i),
			Password: hash,
		})
		if err != nil {
			return summary, fmt.Errorf("create demo user %d: %w", i, err)
		}
		summary.Users = append(summary.Users, user)

		for j := 0; j < opts.EntriesPerUser; j++ {
			fields := models.EntryFields{
				Title:   strings.TrimSuffix(faker.Sentence(faker.Number(2, 6)), "."),
				Content: faker.Paragraph(faker.Number(1, 3), faker.Number(2, 5), 12, "\n\n"),
			}
			if _, err := store.CreateEntry(ctx, user.ID, fields); err != nil {
				return summary, fmt.Errorf("create entry for %s: %w", user.Username, err)
			}
			summary.Entries++
		}
	}

	middleware.Logger.InfoContext(ctx, "demo data seeded",
		slog.Int("users", len(summary.Users)),
		slog.Int("entries", summary.Entries),
	)
	return summary, nil
}

// demoUsername derives a valid, run-unique username from the prefix or a fake name.
func demoUsername(faker *gofakeit.Faker, prefix string, i int) string {
	base := prefix
	if base == "" {
		base = unsafeUsernameChars.ReplaceAllString(strings.ToLower(faker.Username()), "")
	}
	if len(base) > 24 {
		base = base[:24]
	}
	if base == "" {
		base = "diarist"
	}
	return fmt.Sprintf("%s_%d", base, i+1)
}

func hashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash seed password: %w", err)
	}
	return string(hash), nil
}

// Clean removes all entries and users. Entries go first because they reference users.
func Clean(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.DiaryEntry{}).Error; err != nil {
			return fmt.Errorf("clean entries: %w", err)
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.User{}).Error; err != nil {
			return fmt.Errorf("clean users: %w", err)
		}
		return nil
	})
}
