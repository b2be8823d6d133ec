package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/auth"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/logging"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/middleware"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/service"
)

type BackupHandler struct {
	Backups *service.BackupService
	Auth    *auth.Service
	Mailer  *service.Mailer
	Log     logging.Logger
	// LinkTTL is how long the presigned download link stays valid.
	LinkTTL time.Duration
	// Recipient receives emailed backups. Empty disables the email route.
	Recipient string
	// Passphrase, when set, seals emailed backups.
	Passphrase string
}

// BackupRequest confirms the admin before an archive leaves the server.
// Password also seals the archive.
type BackupRequest struct {
	Password  string `json:"password"`
	TwofaCode string `json:"twofaCode"`
}

func callerName(r *http.Request) string {
	if u, ok := middleware.UserFromContext(r.Context()); ok {
		return u.Username
	}
	return ""
}

// confirm decodes a BackupRequest and re-checks the admin's password and
// second factor. It writes the error response itself.
func (h *BackupHandler) confirm(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req BackupRequest
	if !decode(w, r, &req) {
		return "", false
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "Password is required")
		return "", false
	}
	err := h.Auth.ConfirmAdmin(r.Context(), callerName(r), req.Password, req.TwofaCode)
	switch {
	case err == nil:
		return req.Password, true
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Incorrect admin password")
	case errors.Is(err, auth.ErrTwoFactorRequired):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "2FA code required", "twoFactorRequired": true})
	case errors.Is(err, auth.ErrInvalidTwoFactor):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid 2FA code", "twoFactorRequired": true})
	default:
		h.Log.Error(r.Context(), "confirm admin for backup", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to verify admin")
	}
	return "", false
}

// Upload handles POST /api/admin/backup/upload.
func (h *BackupHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if !h.Backups.CanUpload() {
		writeError(w, http.StatusServiceUnavailable, "Backup storage not configured")
		return
	}
	password, ok := h.confirm(w, r)
	if !ok {
		return
	}
	res, err := h.Backups.Upload(r.Context(), callerName(r), password, h.LinkTTL)
	if err != nil {
		h.Log.Error(r.Context(), "backup upload", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to create backup")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "backup": res})
}

// Download handles POST /api/admin/backup/download by streaming an archive
// sealed with the admin's password.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	password, ok := h.confirm(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	m, err := h.Backups.WriteSealedArchive(r.Context(), &buf, callerName(r), password)
	if err != nil {
		h.Log.Error(r.Context(), "backup download", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to create backup")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+service.FileName(m.CreatedAt, true)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// RecipientInfo handles GET /api/admin/backup/recipient.
func (h *BackupHandler) RecipientInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"to":         h.Recipient,
		"configured": h.Recipient != "",
		"sealed":     h.Passphrase != "",
	})
}

// Email handles POST /api/admin/backup/email.
func (h *BackupHandler) Email(w http.ResponseWriter, r *http.Request) {
	res, err := h.Backups.Email(r.Context(), h.Mailer, h.Recipient, callerName(r), h.Passphrase)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"message":  "Backup emailed to " + res.To,
			"to":       res.To,
			"filename": res.Filename,
			"bytes":    res.Bytes,
			"sealed":   res.Sealed,
		})
	case errors.Is(err, service.ErrNoRecipient):
		writeError(w, http.StatusServiceUnavailable, "Backup recipient email not configured")
	case errors.Is(err, service.ErrMailerNotConfigured), errors.Is(err, service.ErrMailerClosed):
		writeError(w, http.StatusServiceUnavailable, "Email is not configured on the server")
	default:
		h.Log.Error(r.Context(), "backup email", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to create/email backup")
	}
}
