package config

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/logging"
)

const (
	BackendFile  = "file"
	BackendMongo = "mongo"

	defaultResetSecret = "change-me-in-production"
)

type Config struct {
	Port         string
	Env          string
	DataDir      string
	PagesDir     string
	StoreBackend string
	MongoURI     string
	DBName       string

	BcryptCost   int
	TokenTTL     time.Duration
	TokenGrace   time.Duration
	ResetCodeTTL time.Duration
	ResetSecret  string

	AdminUsername string
	AdminPassword string

	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPass      string
	SMTPFrom      string
	EmailProvider string
	// EmailConfigEncryptionKey is 32 bytes for AES-256; optional, base64 in env.
	EmailConfigEncryptionKey []byte

	S3Bucket      string
	S3Region      string
	S3AccessKeyID string
	S3SecretKey   string

	// BackupEmail receives emailed backups; empty disables that route.
	BackupEmail string
	// BackupPassphrase seals emailed backups with age when set.
	BackupPassphrase string

	AllowedOrigins []string
	AuthRateLimit  int
}

func (c *Config) Production() bool { return c.Env == "production" }

func Load() (*Config, error) {
	_ = os.Setenv("AWS_REGION", getEnv("AWS_REGION", "us-east-1"))

	var emailEncKey []byte
	if k := getEnv("EMAIL_CONFIG_ENCRYPTION_KEY", ""); k != "" {
		emailEncKey, _ = base64.StdEncoding.DecodeString(k)
		if len(emailEncKey) != 32 {
			emailEncKey = nil
		}
	}

	cfg := &Config{
		Port:         getEnv("PORT", "3000"),
		Env:          getEnv("NODE_ENV", "development"),
		DataDir:      getEnv("DATA_DIR", "data"),
		PagesDir:     getEnv("PAGES_DIR", ""),
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendFile)),
		MongoURI:     getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		DBName:       getEnv("MONGODB_DB", "buypvaaccount"),

		BcryptCost:   getInt("BCRYPT_COST", 10),
		TokenTTL:     getDuration("TOKEN_TTL", 24*time.Hour),
		TokenGrace:   getDuration("TOKEN_GRACE", 5*time.Minute),
		ResetCodeTTL: getDuration("RESET_CODE_TTL", 10*time.Minute),
		ResetSecret:  getEnv("RESET_TOKEN_SECRET", defaultResetSecret),

		AdminUsername: getEnv("ADMIN_USERNAME", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		SMTPHost:                 getEnv("SMTP_HOST", ""),
		SMTPPort:                 getInt("SMTP_PORT", 587),
		SMTPUser:                 getEnv("SMTP_USER", ""),
		SMTPPass:                 getEnv("SMTP_PASS", ""),
		SMTPFrom:                 getEnv("SMTP_FROM", ""),
		EmailProvider:            strings.ToLower(getEnv("EMAIL_PROVIDER", "")),
		EmailConfigEncryptionKey: emailEncKey,

		S3Bucket:      getEnv("AWS_S3_BUCKET", ""),
		S3Region:      getEnv("AWS_REGION", "us-east-1"),
		S3AccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),

		BackupEmail:      getEnv("BACKUP_EMAIL", getEnv("ADMIN_BACKUP_EMAIL", "")),
		BackupPassphrase: getEnv("BACKUP_PASSPHRASE", ""),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "")),
		AuthRateLimit:  getInt("AUTH_RATE_LIMIT", 5),
	}
	if cfg.StoreBackend != BackendFile && cfg.StoreBackend != BackendMongo {
		return nil, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendFile, BackendMongo, cfg.StoreBackend)
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, fmt.Errorf("BCRYPT_COST out of range: %d", cfg.BcryptCost)
	}
	return cfg, nil
}

// SMTPConfigured reports whether the environment carries mail credentials.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPUser != "" && c.SMTPPass != "" && (c.SMTPHost != "" || c.EmailProvider != "")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return fallback
}

// getDuration accepts Go durations ("15m") or plain seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// RequiredEnvVars must be set in production.
var RequiredEnvVars = []string{
	"RESET_TOKEN_SECRET",
	"EMAIL_CONFIG_ENCRYPTION_KEY",
}

// OptionalEnvVars are logged at startup so you can confirm they are loaded when set.
var OptionalEnvVars = []string{
	"PORT",
	"NODE_ENV",
	"DATA_DIR",
	"PAGES_DIR",
	"STORE_BACKEND",
	"MONGODB_URI",
	"MONGODB_DB",
	"SMTP_HOST",
	"SMTP_USER",
	"SMTP_PASS",
	"EMAIL_PROVIDER",
	"AWS_S3_BUCKET",
	"AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY",
	"BACKUP_EMAIL",
	"BACKUP_PASSPHRASE",
	"ALLOWED_ORIGINS",
	"ADMIN_USERNAME",
	"ADMIN_PASSWORD",
}

var secretEnvVars = map[string]bool{
	"RESET_TOKEN_SECRET":          true,
	"EMAIL_CONFIG_ENCRYPTION_KEY": true,
	"SMTP_PASS":                   true,
	"AWS_ACCESS_KEY_ID":           true,
	"AWS_SECRET_ACCESS_KEY":       true,
	"ADMIN_PASSWORD":              true,
	"BACKUP_PASSPHRASE":           true,
	"MONGODB_URI":                 true,
}

// ValidateEnv logs the status of known env vars. In production it fails on
// missing required vars, the default reset secret, or a malformed
// encryption key.
func ValidateEnv(ctx context.Context, cfg *Config, log logging.Logger) error {
	var missing []string
	for _, key := range RequiredEnvVars {
		if strings.TrimSpace(os.Getenv(key)) == "" {
			missing = append(missing, key)
		} else {
			log.Info(ctx, "env loaded", "key", key)
		}
	}
	for _, key := range OptionalEnvVars {
		v := strings.TrimSpace(os.Getenv(key))
		switch {
		case v == "":
			log.Info(ctx, "env not set (optional)", "key", key)
		case secretEnvVars[key]:
			log.Info(ctx, "env loaded", "key", key)
		default:
			log.Info(ctx, "env loaded", "key", key, "value", v)
		}
	}
	if !cfg.Production() {
		if len(missing) > 0 {
			log.Warn(ctx, "env missing, using development defaults", "keys", strings.Join(missing, ", "))
		}
		return nil
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env: %s (set these in .env or environment)", strings.Join(missing, ", "))
	}
	if cfg.ResetSecret == defaultResetSecret {
		return errors.New("RESET_TOKEN_SECRET must be set to a strong secret (not the default)")
	}
	if cfg.EmailConfigEncryptionKey == nil {
		return errors.New("EMAIL_CONFIG_ENCRYPTION_KEY must be 32 bytes base64; generate with: openssl rand -base64 32")
	}
	return nil
}
