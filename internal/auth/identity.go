// Package auth issues and verifies session tokens and carries the
// authenticated caller through request handling.
package auth

import (
	"context"
	"time"
)

// Identity is the authenticated caller of a request.
// A nil *Identity means the request has no valid session.
type Identity struct {
	UserID    uint
	Username  string
	TokenID   string
	ExpiresAt time.Time
}

// Owns reports whether the identity is the owner with the given user id.
func (i *Identity) Owns(userID uint) bool {
	return i != nil && i.UserID == userID
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, if any.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
