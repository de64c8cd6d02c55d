// Package auth implements password sign-in with opaque bearer tokens over a
// storage.Driver, and notifies listeners when the signed-in user changes.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/papercomputeco/streamchat/pkg/logger"
	"github.com/papercomputeco/streamchat/pkg/storage"
)

const (
	// DefaultTokenTTL is how long an issued token stays valid.
	DefaultTokenTTL = 24 * time.Hour

	// MinPasswordLength is the shortest password SignUp and ChangePassword
	// accept.
	MinPasswordLength = 6
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("not signed in or session expired")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrEmptyUsername      = errors.New("username cannot be empty")
)

// Event names an auth state change.
type Event string

const (
	EventInitialSession Event = "INITIAL_SESSION"
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventUserUpdated    Event = "USER_UPDATED"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// Listener observes auth state changes. user is nil for EventSignedOut.
type Listener func(event Event, user *storage.Profile)

// Session is an issued token and the user it belongs to.
type Session struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      *storage.Profile `json:"user"`
}

// Config configures a Service.
type Config struct {
	Driver storage.Driver
	Tokens TokenStore

	// TokenTTL defaults to DefaultTokenTTL.
	TokenTTL time.Duration

	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int

	Logger *slog.Logger
}

// Service handles sign-up, sign-in and profile changes.
type Service struct {
	driver storage.Driver
	tokens TokenStore
	ttl    time.Duration
	cost   int
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// New creates a Service. A nil Tokens uses a MemoryTokenStore.
func New(cfg Config) *Service {
	s := &Service{
		driver:    cfg.Driver,
		tokens:    cfg.Tokens,
		ttl:       cfg.TokenTTL,
		cost:      cfg.BcryptCost,
		logger:    cfg.Logger,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
	if s.tokens == nil {
		s.tokens = NewMemoryTokenStore()
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTokenTTL
	}
	if s.cost == 0 {
		s.cost = bcrypt.DefaultCost
	}
	if s.logger == nil {
		s.logger = logger.Nop()
	}
	return s
}

// SignUp registers a new user and signs them in. An empty username defaults
// to the local part of the email.
func (s *Service) SignUp(ctx context.Context, email, password, username string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	username = strings.TrimSpace(username)
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := s.now().UTC()
	p := &storage.Profile{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.driver.CreateProfile(ctx, p); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating profile: %w", err)
	}

	s.logger.Info("user signed up", "user_id", p.ID)
	return s.issue(ctx, p, EventSignedIn)
}

// SignIn checks the password and issues a token.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	p, err := s.driver.GetProfileByEmail(ctx, email)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("loading profile: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		s.logger.Debug("password mismatch", "user_id", p.ID)
		return nil, ErrInvalidCredentials
	}
	return s.issue(ctx, p, EventSignedIn)
}

// SignOut revokes token. Signing out an unknown token succeeds.
func (s *Service) SignOut(ctx context.Context, token string) error {
	if err := s.tokens.Delete(ctx, token); err != nil {
		return err
	}
	s.notify(EventSignedOut, nil)
	return nil
}

// CurrentUser returns the profile token belongs to.
func (s *Service) CurrentUser(ctx context.Context, token string) (*storage.Profile, error) {
	_, p, err := s.resolve(ctx, token)
	return p, err
}

// Restore resumes a persisted session, emitting EventInitialSession when the
// token is still valid.
func (s *Service) Restore(ctx context.Context, token string) (*storage.Profile, error) {
	_, p, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	s.notify(EventInitialSession, p)
	return p, nil
}

// Refresh exchanges a valid token for a new one. The old token is revoked.
func (s *Service) Refresh(ctx context.Context, token string) (*Session, error) {
	_, p, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	sess, err := s.issue(ctx, p, EventTokenRefreshed)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Delete(ctx, token); err != nil {
		s.logger.Warn("failed to revoke refreshed token", "error", err)
	}
	return sess, nil
}

// UpdateUsername renames the signed-in user.
func (s *Service) UpdateUsername(ctx context.Context, token, username string) (*storage.Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrEmptyUsername
	}

	_, p, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	p.Username = username
	p.UpdatedAt = s.now().UTC()
	if err := s.driver.UpdateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}

	s.notify(EventUserUpdated, p)
	return p, nil
}

// ChangePassword replaces the signed-in user's password after checking the
// old one.
func (s *Service) ChangePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	_, p, err := s.resolve(ctx, token)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}
	if len(newPassword) < MinPasswordLength {
		return ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	p.PasswordHash = string(hash)
	p.UpdatedAt = s.now().UTC()
	if err := s.driver.UpdateProfile(ctx, p); err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}

	s.notify(EventUserUpdated, p)
	return nil
}

// OnAuthStateChange registers fn and returns a function that unregisters it.
// Listeners run synchronously on the goroutine that caused the change.
func (s *Service) OnAuthStateChange(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Service) issue(ctx context.Context, p *storage.Profile, event Event) (*Session, error) {
	now := s.now()
	grant := Grant{
		UserID:    p.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	token := uuid.NewString()
	if err := s.tokens.Put(ctx, token, grant); err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	s.notify(event, p)
	return &Session{Token: token, ExpiresAt: grant.ExpiresAt, User: p}, nil
}

func (s *Service) resolve(ctx context.Context, token string) (Grant, *storage.Profile, error) {
	if token == "" {
		return Grant{}, nil, ErrUnauthorized
	}

	grant, ok, err := s.tokens.Get(ctx, token)
	if err != nil {
		return Grant{}, nil, fmt.Errorf("checking token: %w", err)
	}
	if !ok {
		return Grant{}, nil, ErrUnauthorized
	}

	p, err := s.driver.GetProfile(ctx, grant.UserID)
	if err != nil {
		if storage.IsNotFound(err) {
			return Grant{}, nil, ErrUnauthorized
		}
		return Grant{}, nil, fmt.Errorf("loading profile: %w", err)
	}
	return grant, p, nil
}

func (s *Service) notify(event Event, user *storage.Profile) {
	s.mu.Lock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(event, user)
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}
