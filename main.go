package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/auth"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/clock"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/config"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/handlers"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/logging"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/middleware"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/models"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/service"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/store"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/utils"
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		logging.New("").Error(ctx, "config", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Env)
	fatal := func(msg string, err error) {
		log.Error(ctx, msg, "err", err)
		os.Exit(1)
	}
	if err := config.ValidateEnv(ctx, cfg, log); err != nil {
		fatal("env", err)
	}

	identities, err := openIdentityStore(ctx, cfg)
	if err != nil {
		fatal("identity store", err)
	}
	defer func() {
		if err := identities.Close(context.Background()); err != nil {
			log.Error(ctx, "identity store close", "err", err)
		}
	}()

	authSvc := auth.NewService(identities,
		auth.WithHasher(auth.BcryptHasher{Cost: cfg.BcryptCost}),
		auth.WithLogger(log.With("component", "auth")),
		auth.WithTokenTTL(cfg.TokenTTL),
		auth.WithTokenGrace(cfg.TokenGrace),
	)
	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		if _, err := authSvc.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			fatal("seed admin", err)
		}
	}

	var sealer *utils.Sealer
	if cfg.EmailConfigEncryptionKey != nil {
		if sealer, err = utils.NewSealer(cfg.EmailConfigEncryptionKey); err != nil {
			fatal("email settings sealer", err)
		}
	}
	settings := store.NewEmailSettingsStore(cfg.DataDir, sealer)
	mailer := service.NewMailer(log.With("component", "mailer"))
	defer mailer.Shutdown()
	startup, err := startupEmailSettings(ctx, cfg, settings)
	if err != nil {
		log.Warn(ctx, "load saved email settings", "err", err)
	}
	if err := mailer.Init(startup); err != nil {
		log.Warn(ctx, "email settings rejected", "err", err)
	}

	codes := service.NewResetCodes([]byte(cfg.ResetSecret), log.With("component", "reset"),
		service.WithCodeTTL(cfg.ResetCodeTTL))
	codes.Start(ctx, time.Minute)
	defer codes.Stop()

	var objects service.ObjectStore
	if cfg.S3Bucket != "" {
		s3Service, err := service.NewS3Service(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3AccessKeyID, cfg.S3SecretKey)
		if err != nil {
			fatal("s3", err)
		}
		objects = s3Service
	} else {
		log.Warn(ctx, "AWS_S3_BUCKET not set; backup upload disabled")
	}
	backups := service.NewBackupService(identities, objects, clock.Real(), log.With("component", "backup"))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = middleware.DefaultOrigins
	}
	r := handlers.NewRouter(handlers.RouterConfig{
		Auth:  &handlers.AuthHandler{Auth: authSvc, SecureCookie: cfg.Production(), CookieTTL: cfg.TokenTTL},
		Users: &handlers.UsersHandler{Auth: authSvc},
		Email: &handlers.EmailHandler{
			Auth:     authSvc,
			Mailer:   mailer,
			Settings: settings,
			Logs:     store.NewEmailLogStore(cfg.DataDir),
			Codes:    codes,
			Log:      log.With("component", "email"),
			Clock:    clock.Real(),
		},
		Backup: &handlers.BackupHandler{
			Backups:    backups,
			Auth:       authSvc,
			Mailer:     mailer,
			Log:        log.With("component", "backup"),
			LinkTTL:    15 * time.Minute,
			Recipient:  cfg.BackupEmail,
			Passphrase: cfg.BackupPassphrase,
		},
		Log:            log,
		Origins:        origins,
		Production:     cfg.Production(),
		AuthRateLimit:  cfg.AuthRateLimit,
		AuthRateWindow: 15 * time.Minute,
		AccessLog:      true,
		PagesDir:       cfg.PagesDir,
	})

	server := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Info(ctx, "server listening", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal("listen", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "shutdown", "err", err)
	}
}

func openIdentityStore(ctx context.Context, cfg *config.Config) (store.IdentityStore, error) {
	if cfg.StoreBackend != config.BackendMongo {
		return store.NewFileIdentityStore(cfg.DataDir)
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := store.NewMongoDB(connectCtx, cfg.MongoURI, cfg.DBName)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureIndexes(connectCtx); err != nil {
		_ = db.Disconnect(ctx)
		return nil, err
	}
	return store.NewMongoIdentityStore(db), nil
}

// startupEmailSettings prefers SMTP settings from the environment over the
// ones saved through the admin UI.
func startupEmailSettings(ctx context.Context, cfg *config.Config, saved *store.EmailSettingsStore) (*models.EmailSettings, error) {
	if cfg.SMTPConfigured() {
		return &models.EmailSettings{
			Provider: cfg.EmailProvider,
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Email:    cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
		}, nil
	}
	return saved.Load(ctx)
}
