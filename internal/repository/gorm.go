package repository

import (
	"context"
	"errors"

	"diary/internal/cache"
	"diary/internal/models"
	"diary/internal/observability"

	"gorm.io/gorm"
)

// GormStore persists users and entries through gorm (postgres or sqlite).
// Entry reads go through the Redis cache when one is attached.
type GormStore struct {
	db    *gorm.DB
	cache *cache.Cache
	now   Clock
}

var _ Store = (*GormStore)(nil)

// NewGormStore returns a store over db. c may be nil.
func NewGormStore(db *gorm.DB, c *cache.Cache, opts ...Option) *GormStore {
	o := buildOptions(opts)
	return &GormStore{db: db, cache: c, now: o.now}
}

func (s *GormStore) CreateUser(ctx context.Context, user models.User) (*models.User, error) {
	defer observability.TrackQuery("users.create")()

	user.ID = 0
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, models.NewConflictError("Username already exists")
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (s *GormStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	defer observability.TrackQuery("users.get")()

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	defer observability.TrackQuery("users.get_by_username")()

	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (s *GormStore) CreateEntry(ctx context.Context, ownerID uint, fields models.EntryFields) (*models.DiaryEntry, error) {
	defer observability.TrackQuery("entries.create")()

	now := timestamp(s.now)
	entry := models.DiaryEntry{
		UserID:    ownerID,
		Title:     fields.Title,
		Content:   fields.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	s.cache.Invalidate(ctx, cache.UserEntriesKey(ownerID))
	return &entry, nil
}

func (s *GormStore) GetEntries(ctx context.Context, ownerID uint) ([]*models.DiaryEntry, error) {
	entries := make([]*models.DiaryEntry, 0)
	err := s.cache.Aside(ctx, cache.UserEntriesKey(ownerID), &entries, func() error {
		defer observability.TrackQuery("entries.list")()
		return s.db.WithContext(ctx).
			Where("user_id = ?", ownerID).
			Order("created_at DESC").
			Order("id DESC").
			Find(&entries).Error
	})
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return entries, nil
}

func (s *GormStore) GetEntry(ctx context.Context, id uint) (*models.DiaryEntry, error) {
	var entry models.DiaryEntry
	err := s.cache.Aside(ctx, cache.EntryKey(id), &entry, func() error {
		return s.loadEntry(ctx, id, &entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *GormStore) UpdateEntry(ctx context.Context, id uint, fields models.EntryFields) (*models.DiaryEntry, error) {
	var entry models.DiaryEntry
	if err := s.loadEntry(ctx, id, &entry); err != nil {
		return nil, err
	}

	defer observability.TrackQuery("entries.update")()

	updatedAt := refreshedAt(s.now, entry.UpdatedAt)
	res := s.db.WithContext(ctx).Model(&entry).Updates(map[string]any{
		"title":      fields.Title,
		"content":    fields.Content,
		"updated_at": updatedAt,
	})
	if res.Error != nil {
		return nil, models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, entryNotFound(id)
	}

	entry.Title = fields.Title
	entry.Content = fields.Content
	entry.UpdatedAt = updatedAt

	s.cache.Invalidate(ctx, cache.EntryKey(id), cache.UserEntriesKey(entry.UserID))
	return &entry, nil
}

func (s *GormStore) DeleteEntry(ctx context.Context, id uint) error {
	var entry models.DiaryEntry
	if err := s.loadEntry(ctx, id, &entry); err != nil {
		if models.IsNotFound(err) {
			return nil
		}
		return err
	}

	defer observability.TrackQuery("entries.delete")()

	if err := s.db.WithContext(ctx).Delete(&models.DiaryEntry{}, id).Error; err != nil {
		return models.NewInternalError(err)
	}

	s.cache.Invalidate(ctx, cache.EntryKey(id), cache.UserEntriesKey(entry.UserID))
	return nil
}

func (s *GormStore) loadEntry(ctx context.Context, id uint, dest *models.DiaryEntry) error {
	defer observability.TrackQuery("entries.get")()

	if err := s.db.WithContext(ctx).First(dest, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entryNotFound(id)
		}
		return models.NewInternalError(err)
	}
	return nil
}
