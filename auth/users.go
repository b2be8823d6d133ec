package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/models"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/permissions"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/store"
)

// NewUser is the input of CreateUser.
type NewUser struct {
	Username    string
	Email       string
	Role        string
	Password    string
	Permissions []string
}

// UserPatch holds the fields UpdateUser may change. Nil fields are left alone.
type UserPatch struct {
	Email       *string
	Role        *string
	Status      *string
	Password    *string
	Permissions []string
	// SetPermissions distinguishes "clear all permissions" from "leave as is".
	SetPermissions bool
}

// CreateUser adds a staff user. Usernames and emails must be unique across
// both fields: a new username may not equal any existing email and vice
// versa, so login lookup by username-then-email is never ambiguous.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*models.PublicUser, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	if in.Username == "" || in.Email == "" || in.Role == "" || in.Password == "" {
		return nil, fmt.Errorf("username, email, role and password are required: %w", ErrInvalidInput)
	}
	if !models.RoleValid(in.Role) || in.Role == models.RoleAdmin {
		return nil, fmt.Errorf("role %q: %w", in.Role, ErrInvalidInput)
	}

	creds, err := s.adminCredentials(ctx)
	if err != nil {
		return nil, err
	}
	adminName := usernameOf(creds)
	if adminName != "" && (in.Username == adminName || strings.EqualFold(in.Email, models.AdminEmail)) {
		return nil, ErrUserAlreadyExists
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.log.Error(ctx, "hash user password", "err", err)
		return nil, ErrInternal
	}

	user := models.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		Role:         in.Role,
		PasswordHash: hash,
		Status:       models.StatusActive,
		Permissions:  permissions.Normalize(in.Permissions),
		CreatedAt:    s.clock.Now().UTC(),
	}
	err = s.store.Users().Insert(ctx, user, func(existing []models.User) error {
		for i := range existing {
			if existing[i].IsShadow(adminName) {
				continue
			}
			if collides(&existing[i], user.Username, user.Email) {
				return ErrUserAlreadyExists
			}
		}
		return nil
	})
	if errors.Is(err, ErrUserAlreadyExists) || errors.Is(err, store.ErrDuplicate) {
		return nil, ErrUserAlreadyExists
	}
	if err != nil {
		return nil, s.persistErr(ctx, "insert user", err)
	}
	s.log.Info(ctx, "staff user created", "username", user.Username, "role", user.Role)
	p := user.Public()
	return &p, nil
}

// collides reports whether u already owns username or email, in either
// field.
func collides(u *models.User, username, email string) bool {
	if username != "" && (u.Username == username || strings.EqualFold(u.Email, username)) {
		return true
	}
	if email != "" && (strings.EqualFold(u.Email, email) || strings.EqualFold(u.Username, email)) {
		return true
	}
	return false
}

// ListUsers returns the admin singleton's projection first, followed by
// every stored user. Shadow copies of the admin are skipped.
func (s *Service) ListUsers(ctx context.Context) ([]models.PublicUser, error) {
	creds, err := s.adminCredentials(ctx)
	if err != nil {
		return nil, err
	}
	adminName := usernameOf(creds)
	users, err := s.store.Users().Scan(ctx, func(u *models.User) bool { return !u.IsShadow(adminName) })
	if err != nil {
		return nil, s.persistErr(ctx, "list users", err)
	}
	out := make([]models.PublicUser, 0, len(users)+1)
	if creds != nil {
		out = append(out, creds.Public())
	}
	for i := range users {
		out = append(out, users[i].Public())
	}
	return out, nil
}

// GetUser returns the public projection of the named user.
func (s *Service) GetUser(ctx context.Context, username string) (*models.PublicUser, error) {
	creds, err := s.adminCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if creds != nil && username == creds.Username {
		p := creds.Public()
		return &p, nil
	}
	user, err := s.findUser(ctx, usernameOf(creds), func(u *models.User) bool { return u.Username == username })
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	p := user.Public()
	return &p, nil
}

// UpdateUser applies patch to the named user. The admin singleton cannot
// be changed through this path.
func (s *Service) UpdateUser(ctx context.Context, username string, patch UserPatch) (*models.PublicUser, error) {
	creds, err := s.adminCredentials(ctx)
	if err != nil {
		return nil, err
	}
	adminName := usernameOf(creds)
	if adminName != "" && username == adminName {
		return nil, ErrAdminProtected
	}

	if patch.Role != nil {
		role := strings.ToLower(strings.TrimSpace(*patch.Role))
		if !models.RoleValid(role) || role == models.RoleAdmin {
			return nil, fmt.Errorf("role %q: %w", role, ErrInvalidInput)
		}
		patch.Role = &role
	}
	if patch.Status != nil && *patch.Status != models.StatusActive && *patch.Status != models.StatusDisabled {
		return nil, fmt.Errorf("status %q: %w", *patch.Status, ErrInvalidInput)
	}
	var email string
	if patch.Email != nil {
		email = strings.TrimSpace(*patch.Email)
		if email == "" {
			return nil, fmt.Errorf("email is empty: %w", ErrInvalidInput)
		}
	}

	user, err := s.findUser(ctx, adminName, func(u *models.User) bool { return u.Username == username })
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if email != "" && (strings.EqualFold(email, models.AdminEmail) || email == adminName) {
		return nil, ErrUserAlreadyExists
	}

	var hash string
	if patch.Password != nil && *patch.Password != "" {
		if hash, err = s.hasher.Hash(*patch.Password); err != nil {
			s.log.Error(ctx, "hash user password", "err", err)
			return nil, ErrInternal
		}
	}

	// The email check runs in the same critical section as the write so two
	// concurrent updates cannot both claim one address.
	check := func(existing []models.User) error {
		if email == "" {
			return nil
		}
		for i := range existing {
			if existing[i].ID == user.ID || existing[i].IsShadow(adminName) {
				continue
			}
			if collides(&existing[i], "", email) {
				return ErrUserAlreadyExists
			}
		}
		return nil
	}
	updated, err := s.store.Users().UpdateChecked(ctx, user.ID, check, func(u *models.User) error {
		if email != "" {
			u.Email = email
		}
		if patch.Role != nil {
			u.Role = *patch.Role
		}
		if patch.Status != nil {
			u.Status = *patch.Status
			if u.Status == models.StatusDisabled {
				clearTokens(u)
			}
		}
		if patch.SetPermissions {
			u.Permissions = permissions.Normalize(patch.Permissions)
		}
		if hash != "" {
			u.PasswordHash = hash
			clearTokens(u)
		}
		return nil
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrUserNotFound
	case errors.Is(err, ErrUserAlreadyExists), errors.Is(err, store.ErrDuplicate):
		return nil, ErrUserAlreadyExists
	case err != nil:
		return nil, s.persistErr(ctx, "update user", err)
	}
	s.log.Info(ctx, "staff user updated", "username", username)
	p := updated.Public()
	return &p, nil
}

// DeleteUser removes the named user. The admin singleton cannot be deleted.
func (s *Service) DeleteUser(ctx context.Context, username string) error {
	creds, err := s.adminCredentials(ctx)
	if err != nil {
		return err
	}
	adminName := usernameOf(creds)
	if adminName != "" && username == adminName {
		return ErrAdminProtected
	}
	user, err := s.findUser(ctx, adminName, func(u *models.User) bool { return u.Username == username })
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	err = s.store.Users().Delete(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return s.persistErr(ctx, "delete user", err)
	}
	s.log.Info(ctx, "staff user deleted", "username", username)
	return nil
}

// UpdateAdminCredentials replaces the admin singleton's username and
// password. The second factor is kept; the admin token is revoked.
func (s *Service) UpdateAdminCredentials(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrMissingCredentials
	}
	creds, err := s.adminCredentials(ctx)
	if err != nil {
		return err
	}
	clash, err := s.findUser(ctx, usernameOf(creds), func(u *models.User) bool { return collides(u, username, "") })
	if err != nil {
		return err
	}
	if clash != nil {
		return ErrUserAlreadyExists
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.log.Error(ctx, "hash admin password", "err", err)
		return ErrInternal
	}
	_, err = s.store.AdminCredentials().Update(ctx, func(cur *models.AdminCredentials) (models.AdminCredentials, error) {
		next := models.AdminCredentials{Username: username, PasswordHash: hash}
		if cur != nil {
			next.LastLogin = cur.LastLogin
			next.TwoFactor = cur.TwoFactor
		}
		return next, nil
	})
	if err != nil {
		return s.persistErr(ctx, "update admin credentials", err)
	}
	if err := s.store.AdminToken().Delete(ctx); err != nil && !errors.Is(err, store.ErrNotFound) {
		return s.persistErr(ctx, "delete admin token", err)
	}
	s.log.Info(ctx, "admin credentials updated", "username", username)
	return nil
}

// UserExistsByEmail reports whether a non-shadow user has email.
func (s *Service) UserExistsByEmail(ctx context.Context, email string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return false, nil
	}
	creds, err := s.adminCredentials(ctx)
	if err != nil {
		return false, err
	}
	user, err := s.findUser(ctx, usernameOf(creds), func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
	if err != nil {
		return false, err
	}
	return user != nil, nil
}

// ResetPassword sets a new password for the user owning email, records the
// reset time and drops every token the user holds.
func (s *Service) ResetPassword(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrMissingCredentials
	}
	creds, err := s.adminCredentials(ctx)
	if err != nil {
		return err
	}
	user, err := s.findUser(ctx, usernameOf(creds), func(u *models.User) bool { return strings.EqualFold(u.Email, email) })
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.log.Error(ctx, "hash reset password", "err", err)
		return ErrInternal
	}
	now := s.clock.Now().UTC()
	_, err = s.store.Users().Update(ctx, user.ID, func(u *models.User) error {
		u.PasswordHash = hash
		u.PasswordResetAt = &now
		return clearTokens(u)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return s.persistErr(ctx, "reset password", err)
	}
	s.log.Info(ctx, "staff password reset", "username", user.Username)
	return nil
}
