package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"diary/internal/auth"
	"diary/internal/models"
	"diary/internal/observability"
	"diary/internal/repository"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// publisherStub records published events.
type publisherStub struct {
	mu     sync.Mutex
	events []models.EntryEvent
	err    error
}

func (p *publisherStub) PublishEntryEvent(_ context.Context, event models.EntryEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *publisherStub) types() []models.EntryEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.EntryEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// entryRepoStub is a stub for repository.EntryRepository.
type entryRepoStub struct {
	createFn func(context.Context, uint, models.EntryFields) (*models.DiaryEntry, error)
	listFn   func(context.Context, uint) ([]*models.DiaryEntry, error)
	getFn    func(context.Context, uint) (*models.DiaryEntry, error)
	updateFn func(context.Context, uint, models.EntryFields) (*models.DiaryEntry, error)
	deleteFn func(context.Context, uint) error
}

func (s *entryRepoStub) CreateEntry(ctx context.Context, ownerID uint, f models.EntryFields) (*models.DiaryEntry, error) {
	return s.createFn(ctx, ownerID, f)
}
func (s *entryRepoStub) GetEntries(ctx context.Context, ownerID uint) ([]*models.DiaryEntry, error) {
	return s.listFn(ctx, ownerID)
}
func (s *entryRepoStub) GetEntry(ctx context.Context, id uint) (*models.DiaryEntry, error) {
	return s.getFn(ctx, id)
}
func (s *entryRepoStub) UpdateEntry(ctx context.Context, id uint, f models.EntryFields) (*models.DiaryEntry, error) {
	return s.updateFn(ctx, id, f)
}
func (s *entryRepoStub) DeleteEntry(ctx context.Context, id uint) error {
	return s.deleteFn(ctx, id)
}

func identity(userID uint) *auth.Identity {
	return &auth.Identity{UserID: userID, Username: "user", TokenID: "tok"}
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	return appErr.Code
}

func TestEntryServiceLifecycle(t *testing.T) {
	events := &publisherStub{}
	svc := NewEntryService(repository.NewMemoryStore(), events)
	ctx := context.Background()
	alice, bob := identity(1), identity(2)

	created, err := svc.Create(ctx, alice, models.EntryFields{Title: "Day 1", Content: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, uint(1), created.UserID)
	assert.True(t, created.CreatedAt.Equal(created.UpdatedAt))

	_, err = svc.Get(ctx, bob, created.ID)
	assert.Equal(t, models.CodeForbidden, errCode(t, err))

	got, err := svc.Get(ctx, alice, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", got.Content)

	updated, err := svc.Update(ctx, alice, created.ID, models.EntryFields{Title: "Day 1 v2", Content: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "Day 1 v2", updated.Title)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	list, err := svc.List(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	others, err := svc.List(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, others)

	require.NoError(t, svc.Delete(ctx, alice, created.ID))
	_, err = svc.Get(ctx, alice, created.ID)
	assert.Equal(t, models.CodeNotFound, errCode(t, err))

	assert.Equal(t, []models.EntryEventType{models.EntryCreated, models.EntryUpdated, models.EntryDeleted}, events.types())
	assert.Equal(t, created.ID, events.events[2].EntryID)
	assert.Equal(t, uint(1), events.events[2].UserID)
}

func TestEntryServiceRequiresSession(t *testing.T) {
	t.Parallel()
	svc := NewEntryService(repository.NewMemoryStore(), nil)
	ctx := context.Background()

	_, err := svc.List(ctx, nil)
	assert.Equal(t, models.CodeUnauthorized, errCode(t, err))

	// unauthenticated wins over invalid input
	_, err = svc.Create(ctx, nil, models.EntryFields{})
	assert.Equal(t, models.CodeUnauthorized, errCode(t, err))

	_, err = svc.Get(ctx, nil, 1)
	assert.Equal(t, models.CodeUnauthorized, errCode(t, err))
	_, err = svc.Update(ctx, nil, 1, models.EntryFields{})
	assert.Equal(t, models.CodeUnauthorized, errCode(t, err))
	assert.Equal(t, models.CodeUnauthorized, errCode(t, svc.Delete(ctx, nil, 1)))
}

func TestEntryServiceCheckOrder(t *testing.T) {
	t.Parallel()
	store := repository.NewMemoryStore()
	svc := NewEntryService(store, nil)
	ctx := context.Background()

	entry, err := store.CreateEntry(ctx, 1, models.EntryFields{Title: "secret", Content: "diary"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		who    *auth.Identity
		id     uint
		fields models.EntryFields
		want   string
	}{
		{"missing entry beats invalid payload", identity(1), 999, models.EntryFields{}, models.CodeNotFound},
		{"foreign entry beats invalid payload", identity(2), entry.ID, models.EntryFields{}, models.CodeForbidden},
		{"owner with empty title", identity(1), entry.ID, models.EntryFields{Title: "", Content: "x"}, models.CodeValidation},
		{"owner with empty content", identity(1), entry.ID, models.EntryFields{Title: "x", Content: ""}, models.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Update(ctx, tt.who, tt.id, tt.fields)
			assert.Nil(t, got)
			assert.Equal(t, tt.want, errCode(t, err))
		})
	}

	stored, err := store.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret", stored.Title)
}

func TestEntryServiceCreateValidation(t *testing.T) {
	t.Parallel()
	svc := NewEntryService(repository.NewMemoryStore(), nil)

	_, err := svc.Create(context.Background(), identity(1), models.EntryFields{Title: "", Content: "Hello"})
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "Title is required", appErr.Message)
	require.Len(t, appErr.Fields, 1)
	assert.Equal(t, "title", appErr.Fields[0].Field)
}

func TestEntryServiceForbiddenDeleteKeepsEntry(t *testing.T) {
	t.Parallel()
	store := repository.NewMemoryStore()
	svc := NewEntryService(store, nil)
	ctx := context.Background()

	entry, err := store.CreateEntry(ctx, 1, models.EntryFields{Title: "a", Content: "b"})
	require.NoError(t, err)

	assert.Equal(t, models.CodeForbidden, errCode(t, svc.Delete(ctx, identity(2), entry.ID)))
	_, err = store.GetEntry(ctx, entry.ID)
	assert.NoError(t, err)
}

func TestEntryServiceStoreFailures(t *testing.T) {
	t.Parallel()
	boom := errors.New("db down")
	events := &publisherStub{}
	stub := &entryRepoStub{
		createFn: func(context.Context, uint, models.EntryFields) (*models.DiaryEntry, error) { return nil, boom },
		listFn:   func(context.Context, uint) ([]*models.DiaryEntry, error) { return nil, boom },
		getFn: func(_ context.Context, id uint) (*models.DiaryEntry, error) {
			return &models.DiaryEntry{ID: id, UserID: 1}, nil
		},
		updateFn: func(context.Context, uint, models.EntryFields) (*models.DiaryEntry, error) { return nil, boom },
		deleteFn: func(context.Context, uint) error { return boom },
	}
	svc := NewEntryService(stub, events)
	ctx := context.Background()
	fields := models.EntryFields{Title: "t", Content: "c"}

	_, err := svc.List(ctx, identity(1))
	assert.ErrorIs(t, err, boom)
	_, err = svc.Create(ctx, identity(1), fields)
	assert.ErrorIs(t, err, boom)
	_, err = svc.Update(ctx, identity(1), 5, fields)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, svc.Delete(ctx, identity(1), 5), boom)

	assert.Empty(t, events.types())
}

func TestEntryServicePublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	events := &publisherStub{err: errors.New("redis gone")}
	svc := NewEntryService(repository.NewMemoryStore(), events)

	entry, err := svc.Create(context.Background(), identity(1), models.EntryFields{Title: "t", Content: "c"})
	require.NoError(t, err)
	assert.NotZero(t, entry.ID)
	assert.Len(t, events.types(), 1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishEntryEvent(ctx context.Context, event models.EntryEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func TestEntryServiceUpdatePublishesToOwner(t *testing.T) {
	t.Parallel()
	events := new(mockPublisher)
	store := repository.NewMemoryStore()
	svc := NewEntryService(store, events)
	ctx := context.Background()

	entry, err := store.CreateEntry(ctx, 7, models.EntryFields{Title: "t", Content: "c"})
	require.NoError(t, err)

	events.On("PublishEntryEvent", mock.Anything, mock.MatchedBy(func(e models.EntryEvent) bool {
		return e.Type == models.EntryUpdated && e.EntryID == entry.ID && e.UserID == 7 && !e.At.IsZero()
	})).Return(nil).Once()

	_, err = svc.Update(ctx, identity(7), entry.ID, models.EntryFields{Title: "t2", Content: "c2"})
	require.NoError(t, err)

	// a rejected update publishes nothing
	_, err = svc.Update(ctx, identity(8), entry.ID, models.EntryFields{Title: "x", Content: "y"})
	require.Error(t, err)

	events.AssertExpectations(t)
	events.AssertNumberOfCalls(t, "PublishEntryEvent", 1)
}

// not parallel: reads shared counters
func TestEntryServiceRejectUpdateCountsAsUpdate(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewEntryService(store, nil)
	ctx := context.Background()

	entry, err := store.CreateEntry(ctx, 1, models.EntryFields{Title: "t", Content: "c"})
	require.NoError(t, err)

	counter := func(op, code string) float64 {
		return testutil.ToFloat64(observability.EntryOperations.WithLabelValues(op, strings.ToLower(code)))
	}
	invalid := models.NewValidationError("Invalid request body")
	updValidation := counter("update", models.CodeValidation)
	updForbidden := counter("update", models.CodeForbidden)
	getValidation := counter("get", models.CodeValidation)
	getForbidden := counter("get", models.CodeForbidden)

	err = svc.RejectUpdate(ctx, identity(1), entry.ID, invalid)
	assert.Equal(t, models.CodeValidation, errCode(t, err))
	err = svc.RejectUpdate(ctx, identity(2), entry.ID, invalid)
	assert.Equal(t, models.CodeForbidden, errCode(t, err))
	err = svc.RejectUpdate(ctx, identity(1), 999, invalid)
	assert.Equal(t, models.CodeNotFound, errCode(t, err))
	err = svc.RejectUpdate(ctx, nil, entry.ID, invalid)
	assert.Equal(t, models.CodeUnauthorized, errCode(t, err))

	assert.Equal(t, updValidation+1, counter("update", models.CodeValidation))
	assert.Equal(t, updForbidden+1, counter("update", models.CodeForbidden))
	assert.Equal(t, getValidation, counter("get", models.CodeValidation))
	assert.Equal(t, getForbidden, counter("get", models.CodeForbidden))
}
