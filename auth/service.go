// Package auth verifies staff credentials, issues and rotates bearer tokens,
// and manages the staff user list and the admin singleton.
//
// Each identity (the admin singleton and every user) follows the same token
// state machine: no token, active, rotated (previous token kept with a
// rotation timestamp), and back to active once the previous token falls out
// of the grace window.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/clock"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/logging"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/models"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/store"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/utils"
)

const (
	// DefaultTokenTTL is the absolute lifetime of an admin token.
	DefaultTokenTTL = 24 * time.Hour
	// DefaultTokenGrace is how long a rotated-out token stays valid.
	DefaultTokenGrace = 5 * time.Minute
)

// Service implements credential and token verification plus staff user
// management on top of a store.IdentityStore.
type Service struct {
	store    store.IdentityStore
	hasher   Hasher
	clock    clock.Clock
	log      logging.Logger
	tokenTTL time.Duration
	grace    time.Duration
	newToken func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

func WithHasher(h Hasher) Option { return func(s *Service) { s.hasher = h } }

func WithClock(c clock.Clock) Option { return func(s *Service) { s.clock = c } }

func WithLogger(l logging.Logger) Option { return func(s *Service) { s.log = l } }

// WithTokenTTL sets the admin token lifetime.
func WithTokenTTL(d time.Duration) Option { return func(s *Service) { s.tokenTTL = d } }

// WithTokenGrace sets the previous-token grace window.
func WithTokenGrace(d time.Duration) Option { return func(s *Service) { s.grace = d } }

// WithTokenGenerator replaces the random token source.
func WithTokenGenerator(f func() (string, error)) Option {
	return func(s *Service) { s.newToken = f }
}

// NewService returns a Service with bcrypt at DefaultCost, the real clock,
// 24h admin tokens and a 5 minute grace window unless overridden.
func NewService(st store.IdentityStore, opts ...Option) *Service {
	s := &Service{
		store:    st,
		hasher:   BcryptHasher{Cost: DefaultCost},
		clock:    clock.Real(),
		log:      logging.Discard(),
		tokenTTL: DefaultTokenTTL,
		grace:    DefaultTokenGrace,
		newToken: func() (string, error) { return utils.RandomHex(32) },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// persistErr logs the underlying cause and returns the boundary error.
func (s *Service) persistErr(ctx context.Context, op string, err error) error {
	s.log.Error(ctx, "identity store failure", "op", op, "err", err)
	return fmt.Errorf("%s: %w", op, ErrPersistence)
}

// adminCredentials returns the singleton or nil when it has not been set up.
func (s *Service) adminCredentials(ctx context.Context) (*models.AdminCredentials, error) {
	creds, err := s.store.AdminCredentials().Get(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.persistErr(ctx, "read admin credentials", err)
	}
	return creds, nil
}

func usernameOf(creds *models.AdminCredentials) string {
	if creds == nil {
		return ""
	}
	return creds.Username
}

// findUser returns the first non-shadow user matching pred, or nil.
func (s *Service) findUser(ctx context.Context, adminUsername string, pred func(*models.User) bool) (*models.User, error) {
	users, err := s.store.Users().Scan(ctx, func(u *models.User) bool {
		return !u.IsShadow(adminUsername) && pred(u)
	})
	if err != nil {
		return nil, s.persistErr(ctx, "scan users", err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

// VerifyCredentials checks identifier (username, or email for regular users)
// and password. The admin singleton is tried first, then users by username,
// then by email. On success the identity's last-login time is persisted
// before returning.
func (s *Service) VerifyCredentials(ctx context.Context, identifier, password string) (*models.PublicUser, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	creds, err := s.adminCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if creds != nil && identifier == creds.Username && s.hasher.Compare(password, creds.PasswordHash) {
		now := s.clock.Now().UTC()
		updated, err := s.store.AdminCredentials().Update(ctx, func(cur *models.AdminCredentials) (models.AdminCredentials, error) {
			if cur == nil {
				return models.AdminCredentials{}, store.ErrNotFound
			}
			next := *cur
			next.LastLogin = &now
			return next, nil
		})
		if err != nil {
			return nil, s.persistErr(ctx, "update admin last login", err)
		}
		p := updated.Public()
		return &p, nil
	}

	adminName := usernameOf(creds)
	user, err := s.findUser(ctx, adminName, func(u *models.User) bool { return u.Username == identifier })
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = s.findUser(ctx, adminName, func(u *models.User) bool {
			return u.Email != "" && strings.EqualFold(u.Email, identifier)
		})
		if err != nil {
			return nil, err
		}
	}
	if user == nil || user.Status == models.StatusDisabled || !s.hasher.Compare(password, user.PasswordHash) {
		s.log.Warn(ctx, "staff login rejected", "identifier", identifier)
		return nil, ErrInvalidCredentials
	}

	now := s.clock.Now().UTC()
	updated, err := s.store.Users().Update(ctx, user.ID, func(u *models.User) error {
		u.LastLogin = &now
		return nil
	})
	if err != nil {
		return nil, s.persistErr(ctx, "update user last login", err)
	}
	p := updated.Public()
	return &p, nil
}

// ConfirmAdmin re-checks the admin's password and, when enabled, second
// factor for a sensitive action by an already signed-in admin. Unlike
// VerifyCredentials it records nothing.
func (s *Service) ConfirmAdmin(ctx context.Context, username, password, twoFactorCode string) error {
	if password == "" {
		return ErrMissingCredentials
	}
	creds, err := s.adminCredentials(ctx)
	if err != nil {
		return err
	}
	if creds == nil || username != creds.Username || !s.hasher.Compare(password, creds.PasswordHash) {
		s.log.Warn(ctx, "admin confirmation rejected", "username", username)
		return ErrInvalidCredentials
	}
	return s.CheckTwoFactor(ctx, twoFactorCode)
}

// LoginResult is returned by Login.
type LoginResult struct {
	Token string
	User  models.PublicUser
}

// Login verifies credentials, enforces the admin second factor when it is
// enabled, and issues a fresh token.
func (s *Service) Login(ctx context.Context, identifier, password, twoFactorCode string) (*LoginResult, error) {
	user, err := s.VerifyCredentials(ctx, identifier, password)
	if err != nil {
		return nil, err
	}
	if user.IsAdmin() {
		if err := s.CheckTwoFactor(ctx, twoFactorCode); err != nil {
			return nil, err
		}
	}
	token, err := s.IssueToken(ctx, user.Username)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "staff login", "username", user.Username, "role", user.Role)
	return &LoginResult{Token: token, User: *user}, nil
}

// EnsureAdmin creates the admin singleton from username/password if none
// exists yet. It reports whether a record was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, ErrMissingCredentials
	}
	creds, err := s.adminCredentials(ctx)
	if err != nil {
		return false, err
	}
	if creds != nil {
		return false, nil
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.log.Error(ctx, "hash admin password", "err", err)
		return false, ErrInternal
	}
	if err := s.store.AdminCredentials().Put(ctx, models.AdminCredentials{Username: username, PasswordHash: hash}); err != nil {
		return false, s.persistErr(ctx, "seed admin credentials", err)
	}
	s.log.Info(ctx, "admin credentials seeded", "username", username)
	return true, nil
}
