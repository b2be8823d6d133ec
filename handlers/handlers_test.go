package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"filippo.io/age"
	mail "github.com/go-mail/mail/v2"
	"github.com/klauspost/compress/zip"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/auth"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/clock"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/logging"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/middleware"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/models"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/service"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/store"
)

type outbox struct {
	mu   sync.Mutex
	sent []string
}

func (o *outbox) Dial() (mail.SendCloser, error) { return nopCloser{}, nil }

func (o *outbox) DialAndSend(msgs ...*mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, m := range msgs {
		var buf bytes.Buffer
		if _, err := m.WriteTo(&buf); err != nil {
			return err
		}
		o.sent = append(o.sent, buf.String())
	}
	return nil
}

func (o *outbox) messages() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.sent...)
}

type nopCloser struct{}

func (nopCloser) Send(string, []string, io.WriterTo) error { return nil }
func (nopCloser) Close() error                             { return nil }

var appEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type app struct {
	t      *testing.T
	h      http.Handler
	ids    *store.FileIdentityStore
	auth   *auth.Service
	mailer *service.Mailer
	outbox *outbox
	logs   *store.EmailLogStore
}

func newApp(t *testing.T) *app {
	t.Helper()
	return newAppWithPages(t, "")
}

func newAppWithPages(t *testing.T, pages string) *app {
	t.Helper()
	dir := t.TempDir()
	ids, err := store.NewFileIdentityStore(dir)
	require.NoError(t, err)
	log := logging.Discard()
	svc := auth.NewService(ids, auth.WithHasher(auth.BcryptHasher{Cost: bcrypt.MinCost}))
	_, err = svc.EnsureAdmin(context.Background(), "root", "rootpass")
	require.NoError(t, err)

	box := &outbox{}
	mailer := service.NewMailer(log, service.WithDialerFactory(func(models.EmailSettings) (service.Dialer, error) {
		return box, nil
	}))
	logs := store.NewEmailLogStore(dir)
	h := NewRouter(RouterConfig{
		Auth:  &AuthHandler{Auth: svc},
		Users: &UsersHandler{Auth: svc},
		Email: &EmailHandler{
			Auth:     svc,
			Mailer:   mailer,
			Settings: store.NewEmailSettingsStore(dir, nil),
			Logs:     logs,
			Codes:    service.NewResetCodes([]byte("test-secret"), log),
			Log:      log,
			Clock:    clock.Fake(appEpoch),
		},
		Backup: &BackupHandler{
			Backups:   service.NewBackupService(ids, nil, clock.Real(), log, service.WithScryptWorkFactor(10)),
			Auth:      svc,
			Mailer:    mailer,
			Log:       log,
			Recipient: "ops@example.com",
		},
		Log:      log,
		PagesDir: pages,
	})
	return &app{t: t, h: h, ids: ids, auth: svc, mailer: mailer, outbox: box, logs: logs}
}

func (a *app) do(method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	a.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (a *app) login(identifier, password string) string {
	a.t.Helper()
	rec, body := a.do(http.MethodPost, "/api/admin-login", "", map[string]string{"username": identifier, "password": password})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	return body["token"].(string)
}

func (a *app) createUser(adminTok, username string, perms []string) {
	a.t.Helper()
	rec, _ := a.do(http.MethodPost, "/api/admin/users", adminTok, map[string]any{
		"username": username, "email": username + "@example.com", "role": "editor",
		"password": username + "-pass", "permissions": perms,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	rec, body := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestLogin(t *testing.T) {
	a := newApp(t)

	rec, body := a.do(http.MethodPost, "/api/admin-login", "", map[string]string{"username": "root", "password": "rootpass"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Len(t, body["token"], 64)
	user := body["user"].(map[string]any)
	assert.Equal(t, "admin", user["role"])

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.TokenCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, body["token"], cookie.Value)

	rec, body = a.do(http.MethodPost, "/api/admin-login", "", map[string]string{"username": "root", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", body["message"])

	rec, _ = a.do(http.MethodPost, "/api/admin-login", "", map[string]string{"username": "root"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = a.do(http.MethodPost, "/api/admin-login", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Request body is required", body["message"])
}

func TestStaffMe_PermissionsProjection(t *testing.T) {
	a := newApp(t)
	admin := a.login("root", "rootpass")
	a.createUser(admin, "ed", []string{"Add Product", "media_files", "products"})

	ed := a.login("ed@example.com", "ed-pass")
	rec, body := a.do(http.MethodGet, "/api/staff/me", ed, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	user := body["user"].(map[string]any)
	assert.Equal(t, "ed", user["username"])
	assert.Equal(t, "editor", user["role"])
	assert.Equal(t, []any{"products", "media"}, user["permissions"])

	rec, body = a.do(http.MethodGet, "/api/staff/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "No token provided", body["message"])

	rec, body = a.do(http.MethodGet, "/api/staff/me", strings.Repeat("0", 64), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", body["message"])
}

func TestAdminRoutes_RejectStaff(t *testing.T) {
	a := newApp(t)
	admin := a.login("root", "rootpass")
	a.createUser(admin, "ed", nil)
	ed := a.login("ed", "ed-pass")

	for _, path := range []string{"/api/admin/users", "/api/admin/verify", "/api/admin/2fa/status"} {
		rec, body := a.do(http.MethodGet, path, ed, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
		assert.Equal(t, "Admin access required", body["message"], path)
	}
	rec, _ := a.do(http.MethodGet, "/api/admin/verify", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUsersCRUD(t *testing.T) {
	a := newApp(t)
	admin := a.login("root", "rootpass")
	a.createUser(admin, "ed", []string{"blog"})

	rec, body := a.do(http.MethodGet, "/api/admin/users", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := body["users"].([]any)
	require.Len(t, users, 2)
	assert.Equal(t, "root", users[0].(map[string]any)["username"])
	assert.Equal(t, "ed", users[1].(map[string]any)["username"])
	assert.NotContains(t, rec.Body.String(), "passwordHash")

	rec, _ = a.do(http.MethodPost, "/api/admin/users", admin, map[string]any{
		"username": "ED", "email": "other@example.com", "role": "viewer", "password": "x",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = a.do(http.MethodPost, "/api/admin/users", admin, map[string]any{
		"username": "boss", "email": "boss@example.com", "role": "admin", "password": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = a.do(http.MethodPost, "/api/admin/users", admin, map[string]any{"username": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = a.do(http.MethodPut, "/api/admin/users/ed", admin, map[string]any{"role": "viewer", "permissions": []string{}})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := body["user"].(map[string]any)
	assert.Equal(t, "viewer", updated["role"])
	assert.Empty(t, updated["permissions"])

	rec, _ = a.do(http.MethodPut, "/api/admin/users/root", admin, map[string]any{"role": "viewer"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = a.do(http.MethodDelete, "/api/admin/users/root", admin, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = a.do(http.MethodPut, "/api/admin/users/ghost", admin, map[string]any{"role": "viewer"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = a.do(http.MethodDelete, "/api/admin/users/ed", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = a.do(http.MethodDelete, "/api/admin/users/ed", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDisableUser_RevokesSession(t *testing.T) {
	a := newApp(t)
	admin := a.login("root", "rootpass")
	a.createUser(admin, "ed", nil)
	ed := a.login("ed", "ed-pass")

	rec, _ := a.do(http.MethodPut, "/api/admin/users/ed", admin, map[string]any{"status": "disabled"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = a.do(http.MethodGet, "/api/staff/me", ed, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	a := newApp(t)
	admin := a.login("root", "rootpass")
	rec, _ := a.do(http.MethodPost, "/api/staff/logout", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = a.do(http.MethodGet, "/api/staff/me", admin, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateCredentials(t *testing.T) {
	a := newApp(t)
	admin := a.login("root", "rootpass")
	rec, _ := a.do(http.MethodPut, "/api/admin/credentials", admin, map[string]string{"username": "boss", "password": "newpass1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = a.do(http.MethodGet, "/api/admin/verify", admin, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	a.login("boss", "newpass1")
}

func TestTwoFactorFlow(t *testing.T) {
	a := newApp(t)
	admin := a.login("root", "rootpass")

	rec, body := a.do(http.MethodPost, "/api/admin/2fa/setup", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	secret := body["secret"].(string)
	assert.Contains(t, body["otpauthUrl"], "otpauth://totp/")

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	rec, _ = a.do(http.MethodPost, "/api/admin/2fa/enable", admin, map[string]string{"secret": secret, "code": code})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = a.do(http.MethodGet, "/api/admin/2fa/status", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["enabled"])

	rec, body = a.do(http.MethodPost, "/api/admin-login", "", map[string]string{"username": "root", "password": "rootpass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, true, body["twoFactorRequired"])

	code, err = totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	rec, body = a.do(http.MethodPost, "/api/admin-login", "", map[string]string{"username": "root", "password": "rootpass", "twoFactorCode": code})
	require.Equal(t, http.StatusOK, rec.Code)
	admin = body["token"].(string)

	rec, _ = a.do(http.MethodPost, "/api/admin/2fa/disable", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	a.login("root", "rootpass")
}

var codePattern = regexp.MustCompile(`code is: (\d{6})`)

func TestPasswordResetFlow(t *testing.T) {
	a := newApp(t)
	admin := a.login("root", "rootpass")
	a.createUser(admin, "ed", nil)
	ed := a.login("ed", "ed-pass")

	rec, _ := a.do(http.MethodPost, "/api/send-reset-code", "", map[string]string{"email": "ed@example.com"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, body := a.do(http.MethodPost, "/api/configure-email", admin, map[string]any{
		"provider": "gmail", "email": "shop@example.com", "password": "app-pass",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec, body = a.do(http.MethodGet, "/api/email-status", "", nil)
	assert.Equal(t, true, body["configured"])
	assert.Equal(t, "shop@example.com", body["email"])

	rec, unknown := a.do(http.MethodPost, "/api/send-reset-code", "", map[string]string{"email": "nobody@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, a.outbox.messages())

	rec, known := a.do(http.MethodPost, "/api/send-reset-code", "", map[string]string{"email": "ed@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, unknown, known)

	sent := a.outbox.messages()
	require.Len(t, sent, 1)
	m := codePattern.FindStringSubmatch(sent[0])
	require.Len(t, m, 2)

	rec, _ = a.do(http.MethodPost, "/api/verify-reset-code", "", map[string]string{"email": "ed@example.com", "code": "000000x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = a.do(http.MethodPost, "/api/verify-reset-code", "", map[string]string{"email": "ed@example.com", "code": m[1]})
	require.Equal(t, http.StatusOK, rec.Code)
	ticket := body["resetToken"].(string)

	rec, _ = a.do(http.MethodPost, "/api/reset-password", "", map[string]string{"resetToken": ticket, "password": "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = a.do(http.MethodPost, "/api/reset-password", "", map[string]string{"resetToken": "garbage", "password": "long-enough"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, _ = a.do(http.MethodPost, "/api/reset-password", "", map[string]string{"resetToken": ticket, "email": "x@example.com", "password": "long-enough"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = a.do(http.MethodPost, "/api/reset-password", "", map[string]string{"resetToken": ticket, "password": "long-enough"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = a.do(http.MethodPost, "/api/reset-password", "", map[string]string{"resetToken": ticket, "password": "hijacked-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a reset ticket works once")

	rec, _ = a.do(http.MethodGet, "/api/staff/me", ed, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	a.login("ed", "long-enough")

	logs, err := a.logs.ListByRecipient(context.Background(), "ed@example.com")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "reset_code", logs[0].Kind)
	assert.True(t, logs[0].SentAt.Equal(appEpoch), "log entries use the injected clock")
}

func TestConfigureEmail_RequiresAdmin(t *testing.T) {
	a := newApp(t)
	rec, _ := a.do(http.MethodPost, "/api/configure-email", "", map[string]any{"provider": "gmail", "email": "a@b.co", "password": "p"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	admin := a.login("root", "rootpass")
	rec, _ = a.do(http.MethodPost, "/api/configure-email", admin, map[string]any{"provider": "gmail"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := a.do(http.MethodPost, "/api/test-email", admin, map[string]any{"provider": "gmail", "email": "a@b.co", "password": "p"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.False(t, a.mailer.Configured())
}

func TestOrderConfirmation(t *testing.T) {
	a := newApp(t)
	order := map[string]any{
		"email": "buyer@example.com",
		"orderData": map[string]any{
			"orderId": "A-100", "paymentMethod": "crypto",
			"items": []map[string]any{{"name": "Gmail PVA", "quantity": 2, "unitPrice": 1.5}},
		},
	}
	rec, _ := a.do(http.MethodPost, "/api/send-order-confirmation", "", order)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, a.mailer.Reconfigure(models.EmailSettings{Provider: "gmail", Email: "shop@example.com", Password: "p"}))
	rec, _ = a.do(http.MethodPost, "/api/send-order-confirmation", "", order)
	require.Equal(t, http.StatusOK, rec.Code)

	sent := a.outbox.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "Order Confirmation #A-100")
	assert.Contains(t, sent[0], "Cryptocurrency")
	assert.Contains(t, sent[0], "Total: $3.00")

	rec, _ = a.do(http.MethodPost, "/api/send-order-confirmation", "", map[string]any{"email": "buyer@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func unzip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	files := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		files[f.Name] = string(b)
	}
	return files
}

func TestBackup_AdminOnly(t *testing.T) {
	a := newApp(t)
	admin := a.login("root", "rootpass")
	a.createUser(admin, "ed", []string{"backup"})
	ed := a.login("ed", "ed-pass")

	for _, path := range []string{"/api/admin/backup/download", "/api/admin/backup/upload", "/api/admin/backup/email"} {
		rec, _ := a.do(http.MethodPost, path, ed, map[string]string{"password": "ed-pass"})
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
	rec, _ := a.do(http.MethodGet, "/api/admin/backup/recipient", ed, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBackup_DownloadSealedWithoutSecrets(t *testing.T) {
	ctx := context.Background()
	a := newApp(t)
	admin := a.login("root", "rootpass")
	a.createUser(admin, "ed", []string{"backup"})
	ed := a.login("ed", "ed-pass")

	setup, err := a.auth.GenerateTwoFactor(ctx)
	require.NoError(t, err)
	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, a.auth.EnableTwoFactor(ctx, setup.Secret, code))
	creds, err := a.ids.AdminCredentials().Get(ctx)
	require.NoError(t, err)

	rec, _ := a.do(http.MethodPost, "/api/admin/backup/download", admin, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = a.do(http.MethodPost, "/api/admin/backup/download", admin, map[string]string{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, body := a.do(http.MethodPost, "/api/admin/backup/download", admin, map[string]string{"password": "rootpass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, true, body["twoFactorRequired"])

	code, err = totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	rec, _ = a.do(http.MethodPost, "/api/admin/backup/download", admin, map[string]string{"password": "rootpass", "twofaCode": code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".zip.age")

	id, err := age.NewScryptIdentity("rootpass")
	require.NoError(t, err)
	plain, err := age.Decrypt(bytes.NewReader(rec.Body.Bytes()), id)
	require.NoError(t, err)
	data, err := io.ReadAll(plain)
	require.NoError(t, err)

	files := unzip(t, data)
	require.Contains(t, files, "manifest.json")
	require.Contains(t, files, store.AdminCredentialsFile)
	assert.Contains(t, files[store.UsersFile], `"username": "ed"`)
	for name, content := range files {
		assert.NotContains(t, content, ed, name)
		assert.NotContains(t, content, admin, name)
		assert.NotContains(t, content, creds.PasswordHash, name)
		assert.NotContains(t, content, creds.TwoFactor.Secret, name)
	}

	rec, _ = a.do(http.MethodPost, "/api/admin/backup/upload", admin, map[string]string{"password": "rootpass", "twofaCode": code})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBackup_EmailToRecipient(t *testing.T) {
	a := newApp(t)
	admin := a.login("root", "rootpass")

	rec, body := a.do(http.MethodGet, "/api/admin/backup/recipient", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops@example.com", body["to"])
	assert.Equal(t, true, body["configured"])

	rec, _ = a.do(http.MethodPost, "/api/admin/backup/email", admin, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, a.mailer.Reconfigure(models.EmailSettings{Provider: "gmail", Email: "shop@example.com", Password: "app-pass"}))
	rec, body = a.do(http.MethodPost, "/api/admin/backup/email", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Backup emailed to ops@example.com", body["message"])
	filename := body["filename"].(string)
	assert.True(t, strings.HasPrefix(filename, "staff-backup-"))

	sent := a.outbox.messages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "ops@example.com")
	assert.Contains(t, sent[0], `filename="`+filename+`"`)
}

func TestPages(t *testing.T) {
	pages := t.TempDir()
	for _, name := range []string{"admin.html", "categories.html", "media-library.html"} {
		require.NoError(t, os.WriteFile(filepath.Join(pages, name), []byte("<h1>"+name+"</h1>"), 0o644))
	}
	a := newAppWithPages(t, pages)
	admin := a.login("root", "rootpass")
	a.createUser(admin, "ed", []string{"Media Library"})
	ed := a.login("ed", "ed-pass")

	rec, _ := a.do(http.MethodGet, "/admin", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin.html")

	rec, _ = a.do(http.MethodGet, "/dashboard", "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/admin", rec.Header().Get("Location"))

	rec, _ = a.do(http.MethodGet, "/categories", "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	rec, _ = a.do(http.MethodGet, "/categories", ed, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = a.do(http.MethodGet, "/categories", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "categories.html")

	rec, _ = a.do(http.MethodGet, "/media-library", ed, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
