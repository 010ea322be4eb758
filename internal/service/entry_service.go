// Package service holds the access-controlled operations behind the HTTP handlers.
package service

import (
	"context"
	"log/slog"
	"time"

	"diary/internal/auth"
	"diary/internal/middleware"
	"diary/internal/models"
	"diary/internal/observability"
	"diary/internal/repository"
	"diary/internal/validation"

	"go.opentelemetry.io/otel/attribute"
)

// EntryPublisher delivers entry change events to the owner's live connections.
type EntryPublisher interface {
	PublishEntryEvent(ctx context.Context, event models.EntryEvent) error
}

// EntryService enforces session and ownership rules in front of the entry store.
type EntryService struct {
	entries repository.EntryRepository
	events  EntryPublisher
	now     func() time.Time
}

// NewEntryService wires the service. events may be nil.
func NewEntryService(entries repository.EntryRepository, events EntryPublisher) *EntryService {
	return &EntryService{entries: entries, events: events, now: time.Now}
}

// List returns the caller's entries, newest first.
func (s *EntryService) List(ctx context.Context, who *auth.Identity) (list []*models.DiaryEntry, err error) {
	ctx, done := s.track(ctx, "list", who, 0)
	defer func() { done(err) }()

	if err := requireSession(who); err != nil {
		return nil, err
	}
	return s.entries.GetEntries(ctx, who.UserID)
}

// Create stores a new entry owned by the caller.
func (s *EntryService) Create(ctx context.Context, who *auth.Identity, fields models.EntryFields) (entry *models.DiaryEntry, err error) {
	ctx, done := s.track(ctx, "create", who, 0)
	defer func() { done(err) }()

	if err := requireSession(who); err != nil {
		return nil, err
	}
	if err := validation.ValidateEntry(fields); err != nil {
		return nil, err
	}

	entry, err = s.entries.CreateEntry(ctx, who.UserID, fields)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, models.EntryCreated, entry)
	return entry, nil
}

// Get returns one of the caller's entries.
func (s *EntryService) Get(ctx context.Context, who *auth.Identity, id uint) (entry *models.DiaryEntry, err error) {
	ctx, done := s.track(ctx, "get", who, id)
	defer func() { done(err) }()

	return s.owned(ctx, who, id)
}

// Update replaces title and content of one of the caller's entries.
// Validation runs only once the caller is known to own the entry.
func (s *EntryService) Update(ctx context.Context, who *auth.Identity, id uint, fields models.EntryFields) (entry *models.DiaryEntry, err error) {
	ctx, done := s.track(ctx, "update", who, id)
	defer func() { done(err) }()

	if _, err := s.owned(ctx, who, id); err != nil {
		return nil, err
	}
	if err := validation.ValidateEntry(fields); err != nil {
		return nil, err
	}

	entry, err = s.entries.UpdateEntry(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, models.EntryUpdated, entry)
	return entry, nil
}

// RejectUpdate answers an update whose payload could not be decoded. Session
// and ownership errors still take precedence over invalid.
func (s *EntryService) RejectUpdate(ctx context.Context, who *auth.Identity, id uint, invalid error) (err error) {
	ctx, done := s.track(ctx, "update", who, id)
	defer func() { done(err) }()

	if _, err := s.owned(ctx, who, id); err != nil {
		return err
	}
	return invalid
}

// Delete removes one of the caller's entries.
func (s *EntryService) Delete(ctx context.Context, who *auth.Identity, id uint) (err error) {
	ctx, done := s.track(ctx, "delete", who, id)
	defer func() { done(err) }()

	entry, err := s.owned(ctx, who, id)
	if err != nil {
		return err
	}
	if err := s.entries.DeleteEntry(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, models.EntryDeleted, entry)
	return nil
}

// owned resolves an entry and checks the caller owns it. Another user's entry
// is reported as forbidden without any of its content.
func (s *EntryService) owned(ctx context.Context, who *auth.Identity, id uint) (*models.DiaryEntry, error) {
	if err := requireSession(who); err != nil {
		return nil, err
	}
	entry, err := s.entries.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if !who.Owns(entry.UserID) {
		return nil, models.NewForbiddenError("You do not have access to this entry")
	}
	return entry, nil
}

func requireSession(who *auth.Identity) error {
	if who == nil {
		return models.NewUnauthorizedError("Authentication required")
	}
	return nil
}

func (s *EntryService) publish(ctx context.Context, kind models.EntryEventType, entry *models.DiaryEntry) {
	if s.events == nil {
		return
	}
	event := models.EntryEvent{
		Type:    kind,
		EntryID: entry.ID,
		UserID:  entry.UserID,
		At:      s.now().UTC(),
	}
	if err := s.events.PublishEntryEvent(ctx, event); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to publish entry event",
			slog.String("type", string(kind)),
			slog.Uint64("entry_id", uint64(entry.ID)),
			slog.String("error", err.Error()),
		)
	}
}

// track opens a span for the operation and returns a func that closes it and
// records the outcome metric.
func (s *EntryService) track(ctx context.Context, op string, who *auth.Identity, id uint) (context.Context, func(error)) {
	span, ctx := observability.StartSpan(ctx, "entries."+op, attribute.String("entry.operation", op))
	if who != nil {
		span.AddAttributes(attribute.Int64("user.id", int64(who.UserID)))
	}
	if id != 0 {
		span.AddAttributes(attribute.Int64("entry.id", int64(id)))
	}
	return ctx, func(err error) {
		if observability.Outcome(err) == "error" {
			span.SetError(err)
		}
		span.End()
		observability.EntryOperations.WithLabelValues(op, observability.Outcome(err)).Inc()
	}
}
