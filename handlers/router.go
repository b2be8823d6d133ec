package handlers

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/logging"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/middleware"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/permissions"
)

// RouterConfig collects the handlers and knobs NewRouter wires together.
type RouterConfig struct {
	Auth    *AuthHandler
	Users   *UsersHandler
	Email   *EmailHandler
	Backup  *BackupHandler
	Log     logging.Logger
	Origins []string
	// Production restricts CORS to Origins.
	Production bool
	// AuthRateLimit is the number of login and reset attempts allowed per
	// client IP every AuthRateWindow. Zero disables the limit.
	AuthRateLimit  int
	AuthRateWindow time.Duration
	// AccessLog enables chi's request logger.
	AccessLog bool
	// PagesDir, when set, serves the admin HTML pages from disk behind
	// the page gates.
	PagesDir string
}

func NewRouter(c RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(c.Origins, c.Production))
	if c.AccessLog {
		r.Use(chimw.Logger)
	}
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	staff := middleware.Staff(c.Auth.Auth, c.Log)
	limited := func(r chi.Router) {
		if c.AuthRateLimit > 0 {
			window := c.AuthRateWindow
			if window <= 0 {
				window = 15 * time.Minute
			}
			r.Use(middleware.RateLimit(c.AuthRateLimit, window, "Too many authentication attempts, please try again later."))
		}
	}

	if c.PagesDir != "" {
		mountPages(r, c)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			limited(r)
			r.Post("/admin-login", c.Auth.Login)
			r.Post("/send-reset-code", c.Email.SendResetCode)
			r.Post("/verify-reset-code", c.Email.VerifyResetCode)
			r.Post("/reset-password", c.Email.ResetPassword)
		})
		r.Get("/email-status", c.Email.Status)
		r.Post("/send-order-confirmation", c.Email.OrderConfirmation)

		r.Group(func(r chi.Router) {
			r.Use(staff)
			r.Get("/staff/me", c.Auth.Me)
			r.Post("/staff/logout", c.Auth.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(staff)
			r.Use(middleware.RequireAdmin)
			r.Get("/admin/verify", c.Auth.Verify)
			r.Put("/admin/credentials", c.Auth.UpdateCredentials)

			r.Get("/admin/2fa/status", c.Auth.TwoFactorStatus)
			r.Post("/admin/2fa/setup", c.Auth.TwoFactorSetup)
			r.Post("/admin/2fa/enable", c.Auth.TwoFactorEnable)
			r.Post("/admin/2fa/disable", c.Auth.TwoFactorDisable)

			r.Get("/admin/users", c.Users.List)
			r.Post("/admin/users", c.Users.Create)
			r.Put("/admin/users/{username}", c.Users.Update)
			r.Delete("/admin/users/{username}", c.Users.Delete)

			r.Post("/configure-email", c.Email.Configure)
			r.Post("/test-email", c.Email.Test)

			r.Get("/admin/backup/recipient", c.Backup.RecipientInfo)
			r.Post("/admin/backup/email", c.Backup.Email)
			r.Post("/admin/backup/download", c.Backup.Download)
			r.Post("/admin/backup/upload", c.Backup.Upload)
		})
	})
	return r
}

func page(dir, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, filepath.Join(dir, name))
	}
}

// mountPages registers the admin pages. The login page is public; the
// rest redirect to it when no valid session is presented.
func mountPages(r chi.Router, c RouterConfig) {
	const login = "/admin"
	r.Get(login, page(c.PagesDir, "admin.html"))
	r.Get("/admin.html", http.RedirectHandler(login, http.StatusMovedPermanently).ServeHTTP)
	r.Get("/dashboard", http.RedirectHandler(login, http.StatusFound).ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(middleware.PageGate(c.Auth.Auth, login))
		r.Get("/categories", page(c.PagesDir, "categories.html"))
		r.Get("/ordermanagement", page(c.PagesDir, "ordermanagement.html"))
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.Staff(c.Auth.Auth, c.Log))
		r.Use(middleware.RequirePermission(permissions.Media))
		r.Get("/media-library", page(c.PagesDir, "media-library.html"))
	})
}
