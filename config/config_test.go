package config

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/logging"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "NODE_ENV", "STORE_BACKEND", "BCRYPT_COST", "TOKEN_TTL", "TOKEN_GRACE", "ALLOWED_ORIGINS", "AUTH_RATE_LIMIT"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, BackendFile, cfg.StoreBackend)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.TokenGrace)
	assert.Equal(t, 5, cfg.AuthRateLimit)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.False(t, cfg.Production())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Mongo")
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("TOKEN_GRACE", "90")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("NODE_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMongo, cfg.StoreBackend)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 90*time.Second, cfg.TokenGrace)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.Production())
}

func TestLoad_BackupEmailFallback(t *testing.T) {
	t.Setenv("BACKUP_EMAIL", "")
	t.Setenv("ADMIN_BACKUP_EMAIL", "owner@example.com")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", cfg.BackupEmail)

	t.Setenv("BACKUP_EMAIL", "ops@example.com")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", cfg.BackupEmail)
}

func TestLoad_Rejects(t *testing.T) {
	t.Setenv("STORE_BACKEND", "redis")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("STORE_BACKEND", "")
	t.Setenv("BCRYPT_COST", "2")
	_, err = Load()
	require.Error(t, err)
}

func TestLoad_EncryptionKeyLength(t *testing.T) {
	t.Setenv("EMAIL_CONFIG_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString([]byte("short")))
	cfg, err := Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.EmailConfigEncryptionKey)

	t.Setenv("EMAIL_CONFIG_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32))))
	cfg, err = Load()
	require.NoError(t, err)
	assert.Len(t, cfg.EmailConfigEncryptionKey, 32)
}

func TestValidateEnv(t *testing.T) {
	ctx := context.Background()
	log := logging.Discard()
	t.Setenv("RESET_TOKEN_SECRET", "")
	t.Setenv("EMAIL_CONFIG_ENCRYPTION_KEY", "")

	t.Setenv("NODE_ENV", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.NoError(t, ValidateEnv(ctx, cfg, log))

	t.Setenv("NODE_ENV", "production")
	cfg, err = Load()
	require.NoError(t, err)
	assert.ErrorContains(t, ValidateEnv(ctx, cfg, log), "RESET_TOKEN_SECRET")

	t.Setenv("RESET_TOKEN_SECRET", defaultResetSecret)
	t.Setenv("EMAIL_CONFIG_ENCRYPTION_KEY", base64.StdEncoding.EncodeToString([]byte(strings.Repeat("k", 32))))
	cfg, err = Load()
	require.NoError(t, err)
	assert.ErrorContains(t, ValidateEnv(ctx, cfg, log), "strong secret")

	t.Setenv("RESET_TOKEN_SECRET", "a-real-secret")
	cfg, err = Load()
	require.NoError(t, err)
	assert.NoError(t, ValidateEnv(ctx, cfg, log))
}

func TestSMTPConfigured(t *testing.T) {
	cfg := &Config{SMTPUser: "u@example.com", SMTPPass: "pw"}
	assert.False(t, cfg.SMTPConfigured())
	cfg.EmailProvider = "gmail"
	assert.True(t, cfg.SMTPConfigured())
}
