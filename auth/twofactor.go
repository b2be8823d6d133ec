package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/models"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/store"
)

// TwoFactorIssuer is shown by authenticator apps next to the account name.
const TwoFactorIssuer = "BuyPvaAccount"

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

var sixDigits = regexp.MustCompile(`^\d{6}$`)

// TwoFactorSetup is a freshly generated secret the admin still has to
// confirm with EnableTwoFactor.
type TwoFactorSetup struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauthUrl"`
}

// TwoFactorStatus reports whether the admin singleton has TOTP enabled.
func (s *Service) TwoFactorStatus(ctx context.Context) (bool, error) {
	creds, err := s.adminCredentials(ctx)
	if err != nil {
		return false, err
	}
	return creds != nil && creds.TwoFactor.Enabled && creds.TwoFactor.Secret != "", nil
}

// GenerateTwoFactor creates a new TOTP secret for the admin. Nothing is
// stored until the secret is confirmed.
func (s *Service) GenerateTwoFactor(ctx context.Context) (*TwoFactorSetup, error) {
	creds, err := s.adminCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, ErrUserNotFound
	}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: TwoFactorIssuer, AccountName: creds.Username})
	if err != nil {
		s.log.Error(ctx, "generate totp secret", "err", err)
		return nil, ErrInternal
	}
	return &TwoFactorSetup{Secret: key.Secret(), URL: key.URL()}, nil
}

// EnableTwoFactor stores secret once code verifies against it.
func (s *Service) EnableTwoFactor(ctx context.Context, secret, code string) error {
	secret = strings.ToUpper(strings.TrimSpace(secret))
	code = strings.TrimSpace(code)
	if secret == "" || !sixDigits.MatchString(code) {
		return ErrInvalidInput
	}
	if !s.validCode(secret, code) {
		return ErrInvalidTwoFactor
	}
	return s.setTwoFactor(ctx, models.TwoFactor{Enabled: true, Secret: secret})
}

// DisableTwoFactor turns TOTP off for the admin singleton.
func (s *Service) DisableTwoFactor(ctx context.Context) error {
	return s.setTwoFactor(ctx, models.TwoFactor{})
}

// CheckTwoFactor gates an admin login. It passes when 2FA is disabled and
// otherwise requires a valid 6-digit code.
func (s *Service) CheckTwoFactor(ctx context.Context, code string) error {
	creds, err := s.adminCredentials(ctx)
	if err != nil {
		return err
	}
	if creds == nil || !creds.TwoFactor.Enabled || creds.TwoFactor.Secret == "" {
		return nil
	}
	code = strings.TrimSpace(code)
	if !sixDigits.MatchString(code) {
		return ErrTwoFactorRequired
	}
	if !s.validCode(creds.TwoFactor.Secret, code) {
		s.log.Warn(ctx, "admin 2fa rejected", "username", creds.Username)
		return ErrInvalidTwoFactor
	}
	return nil
}

func (s *Service) validCode(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, s.clock.Now().UTC(), totpOpts)
	return err == nil && ok
}

func (s *Service) setTwoFactor(ctx context.Context, tf models.TwoFactor) error {
	now := s.clock.Now().UTC()
	tf.UpdatedAt = &now
	_, err := s.store.AdminCredentials().Update(ctx, func(cur *models.AdminCredentials) (models.AdminCredentials, error) {
		if cur == nil {
			return models.AdminCredentials{}, store.ErrNotFound
		}
		next := *cur
		next.TwoFactor = tf
		return next, nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return s.persistErr(ctx, "update admin 2fa", err)
	}
	return nil
}
