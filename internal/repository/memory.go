package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"diary/internal/models"
)

// MemoryStore keeps users and entries in process memory.
// Ids come from atomic counters; the maps are guarded by mu.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[uint]models.User
	usernames map[string]uint
	entries   map[uint]models.DiaryEntry

	userSeq  atomic.Uint64
	entrySeq atomic.Uint64

	now Clock
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		users:     make(map[uint]models.User),
		usernames: make(map[string]uint),
		entries:   make(map[uint]models.DiaryEntry),
		now:       o.now,
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, user models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.usernames[user.Username]; taken {
		return nil, models.NewConflictError("Username already exists")
	}

	user.ID = uint(s.userSeq.Add(1))
	s.users[user.ID] = user
	s.usernames[user.Username] = user.ID
	return &user, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id uint) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, models.NewNotFoundError("User", id)
	}
	return &user, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usernames[username]
	if !ok {
		return nil, nil
	}
	user := s.users[id]
	return &user, nil
}

func (s *MemoryStore) CreateEntry(_ context.Context, ownerID uint, fields models.EntryFields) (*models.DiaryEntry, error) {
	now := timestamp(s.now)
	entry := models.DiaryEntry{
		ID:        uint(s.entrySeq.Add(1)),
		UserID:    ownerID,
		Title:     fields.Title,
		Content:   fields.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.entries[entry.ID] = entry
	s.mu.Unlock()

	return &entry, nil
}

func (s *MemoryStore) GetEntries(_ context.Context, ownerID uint) ([]*models.DiaryEntry, error) {
	s.mu.RLock()
	out := make([]*models.DiaryEntry, 0)
	for _, e := range s.entries {
		e := e
		if e.UserID == ownerID {
			out = append(out, &e)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) GetEntry(_ context.Context, id uint) (*models.DiaryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, entryNotFound(id)
	}
	return &e, nil
}

func (s *MemoryStore) UpdateEntry(_ context.Context, id uint, fields models.EntryFields) (*models.DiaryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, entryNotFound(id)
	}
	e.Title = fields.Title
	e.Content = fields.Content
	e.UpdatedAt = refreshedAt(s.now, e.UpdatedAt)
	s.entries[id] = e
	return &e, nil
}

func (s *MemoryStore) DeleteEntry(_ context.Context, id uint) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

// sortNewestFirst orders by createdAt descending, then id descending.
func sortNewestFirst(entries []*models.DiaryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
