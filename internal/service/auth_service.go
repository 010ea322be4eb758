package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"diary/internal/auth"
	"diary/internal/middleware"
	"diary/internal/models"
	"diary/internal/observability"
	"diary/internal/repository"
	"diary/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

const invalidCredentials = "Invalid credentials"

// Session is the result of a successful register, login or refresh.
type Session struct {
	User     *models.User
	Token    string
	Identity *auth.Identity
}

// AuthService registers users and opens and closes their sessions.
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenManager
	cost   int
	// compared against when the username is unknown so both paths pay for bcrypt
	dummyHash []byte
}

// AuthOption configures an AuthService.
type AuthOption func(*AuthService)

// WithPasswordCost overrides bcrypt.DefaultCost.
func WithPasswordCost(cost int) AuthOption {
	return func(s *AuthService) { s.cost = cost }
}

// NewAuthService wires the service.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenManager, opts ...AuthOption) *AuthService {
	s := &AuthService{users: users, tokens: tokens, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	if s.cost < bcrypt.MinCost || s.cost > bcrypt.MaxCost {
		middleware.Logger.Warn("bcrypt cost out of range, using default",
			slog.Int("cost", s.cost),
			slog.Int("default", bcrypt.DefaultCost),
		)
		s.cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("diary-placeholder-password"), s.cost)
	if err != nil {
		// only a failing entropy source gets here
		panic(fmt.Sprintf("service: generate placeholder hash: %v", err))
	}
	s.dummyHash = hash
	return s
}

// Register creates the user and opens a session for it.
func (s *AuthService) Register(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if err := validation.ValidateCredentials(username, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, models.NewInternalError(fmt.Errorf("hash password: %w", err))
	}

	user, err := s.users.CreateUser(ctx, models.User{Username: username, Password: string(hash)})
	if err != nil {
		if errors.Is(err, &models.AppError{Code: models.CodeConflict}) {
			observability.AuthEvents.WithLabelValues("register_conflict").Inc()
		}
		return nil, err
	}

	observability.AuthEvents.WithLabelValues("register").Inc()
	middleware.Logger.InfoContext(ctx, "user registered", slog.Uint64("user_id", uint64(user.ID)))
	return s.open(user)
}

// Login checks the password and opens a session.
func (s *AuthService) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}

	hash := s.dummyHash
	if user != nil {
		hash = []byte(user.Password)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil || user == nil {
		observability.AuthEvents.WithLabelValues("login_failed").Inc()
		return nil, models.NewUnauthorizedError(invalidCredentials)
	}

	observability.AuthEvents.WithLabelValues("login").Inc()
	return s.open(user)
}

// Logout revokes the caller's token. Logging out without a session is a no-op.
func (s *AuthService) Logout(ctx context.Context, who *auth.Identity) error {
	if who == nil {
		return nil
	}
	if err := s.tokens.Revoke(ctx, who); err != nil {
		return models.NewInternalError(fmt.Errorf("revoke token: %w", err))
	}
	observability.AuthEvents.WithLabelValues("logout").Inc()
	return nil
}

// Refresh swaps the caller's token for a new one and revokes the old one.
func (s *AuthService) Refresh(ctx context.Context, who *auth.Identity) (*Session, error) {
	user, err := s.CurrentUser(ctx, who)
	if err != nil {
		return nil, err
	}

	session, err := s.open(user)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Revoke(ctx, who); err != nil {
		return nil, models.NewInternalError(fmt.Errorf("revoke token: %w", err))
	}
	observability.AuthEvents.WithLabelValues("refresh").Inc()
	return session, nil
}

// CurrentUser loads the caller's user record.
func (s *AuthService) CurrentUser(ctx context.Context, who *auth.Identity) (*models.User, error) {
	if err := requireSession(who); err != nil {
		return nil, err
	}
	user, err := s.users.GetUser(ctx, who.UserID)
	if models.IsNotFound(err) {
		// the account behind a still-valid token is gone
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	return user, err
}

func (s *AuthService) open(user *models.User) (*Session, error) {
	token, id, err := s.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &Session{User: user, Token: token, Identity: id}, nil
}
