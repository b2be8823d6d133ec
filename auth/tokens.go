package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/models"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/store"
)

// IssueToken generates a new random token for username and stores it.
func (s *Service) IssueToken(ctx context.Context, username string) (string, error) {
	token, err := s.newToken()
	if err != nil {
		s.log.Error(ctx, "generate token", "err", err)
		return "", ErrInternal
	}
	if err := s.StoreToken(ctx, username, token); err != nil {
		return "", err
	}
	return token, nil
}

// StoreToken makes token the current token of username. A different
// previous token moves into the previous slot with the rotation time;
// storing the current value again leaves the previous slot alone.
func (s *Service) StoreToken(ctx context.Context, username, token string) error {
	if token == "" {
		return ErrMissingToken
	}
	creds, err := s.adminCredentials(ctx)
	if err != nil {
		return err
	}
	now := s.clock.Now().UTC()

	if creds != nil && username == creds.Username {
		_, err := s.store.AdminToken().Update(ctx, func(cur *models.AdminToken) (models.AdminToken, error) {
			next := models.AdminToken{Username: username, Token: token, IssuedAt: now}
			if cur == nil || cur.Username != username {
				return next, nil
			}
			if cur.Token == token {
				next.PrevToken, next.PrevTokenAt = cur.PrevToken, cur.PrevTokenAt
				return next, nil
			}
			next.PrevToken, next.PrevTokenAt = cur.Token, &now
			return next, nil
		})
		if err != nil {
			return s.persistErr(ctx, "store admin token", err)
		}
		return nil
	}

	user, err := s.findUser(ctx, usernameOf(creds), func(u *models.User) bool { return u.Username == username })
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	_, err = s.store.Users().Update(ctx, user.ID, func(u *models.User) error {
		if u.Token != "" && u.Token != token {
			u.PrevToken, u.PrevTokenAt = u.Token, &now
		}
		u.Token = token
		u.TokenIssuedAt = &now
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return s.persistErr(ctx, "store user token", err)
	}
	return nil
}

// VerifyToken resolves token to the identity holding it. Admin tokens
// expire TokenTTL after issuance; any identity's previous token is
// accepted for the grace window after rotation. Tokens are compared in
// full, never by prefix.
func (s *Service) VerifyToken(ctx context.Context, token string) (*models.PublicUser, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	now := s.clock.Now()

	creds, err := s.adminCredentials(ctx)
	if err != nil {
		return nil, err
	}
	expired := false
	if creds != nil {
		at, err := s.store.AdminToken().Get(ctx)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, s.persistErr(ctx, "read admin token", err)
		}
		if at != nil && at.Username == creds.Username {
			if tokenEqual(token, at.Token) {
				if now.Sub(at.IssuedAt) < s.tokenTTL {
					p := creds.Public()
					return &p, nil
				}
				expired = true
			}
			if s.inGrace(token, at.PrevToken, at.PrevTokenAt, now) {
				p := creds.Public()
				return &p, nil
			}
		}
	}

	adminName := usernameOf(creds)
	users, err := s.store.Users().Scan(ctx, func(u *models.User) bool {
		if u.IsShadow(adminName) || u.Status == models.StatusDisabled {
			return false
		}
		return tokenEqual(token, u.Token) || s.inGrace(token, u.PrevToken, u.PrevTokenAt, now)
	})
	if err != nil {
		return nil, s.persistErr(ctx, "scan users", err)
	}
	if len(users) > 0 {
		p := users[0].Public()
		return &p, nil
	}
	if expired {
		return nil, ErrTokenExpired
	}
	return nil, ErrTokenNotFound
}

// RevokeToken clears the current and previous tokens of username.
func (s *Service) RevokeToken(ctx context.Context, username string) error {
	creds, err := s.adminCredentials(ctx)
	if err != nil {
		return err
	}
	if creds != nil && username == creds.Username {
		if err := s.store.AdminToken().Delete(ctx); err != nil && !errors.Is(err, store.ErrNotFound) {
			return s.persistErr(ctx, "delete admin token", err)
		}
		return nil
	}
	user, err := s.findUser(ctx, usernameOf(creds), func(u *models.User) bool { return u.Username == username })
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if _, err := s.store.Users().Update(ctx, user.ID, clearTokens); err != nil {
		return s.persistErr(ctx, "revoke user token", err)
	}
	return nil
}

func (s *Service) inGrace(token, prev string, rotatedAt *time.Time, now time.Time) bool {
	return rotatedAt != nil && tokenEqual(token, prev) && now.Sub(*rotatedAt) < s.grace
}

func clearTokens(u *models.User) error {
	u.Token, u.PrevToken = "", ""
	u.TokenIssuedAt, u.PrevTokenAt = nil, nil
	return nil
}

// tokenEqual compares a presented token with a stored one in constant time.
// An empty stored token never matches.
func tokenEqual(presented, stored string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(stored)) == 1
}
