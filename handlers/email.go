package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/auth"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/clock"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/logging"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/middleware"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/models"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/service"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/store"
)

const minPasswordLen = 8

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// EmailHandler serves the mail configuration, password reset and order
// notification endpoints.
type EmailHandler struct {
	Auth     *auth.Service
	Mailer   *service.Mailer
	Settings *store.EmailSettingsStore
	Logs     *store.EmailLogStore
	Codes    *service.ResetCodes
	Log      logging.Logger
	// Clock stamps email log entries. Nil means the wall clock.
	Clock clock.Clock
}

func (h *EmailHandler) now() time.Time {
	if h.Clock == nil {
		return time.Now().UTC()
	}
	return h.Clock.Now().UTC()
}

type EmailSettingsRequest struct {
	Provider string `json:"provider"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Email    string `json:"email"`
	Password string `json:"password"`
	From     string `json:"from"`
}

func (req EmailSettingsRequest) settings() models.EmailSettings {
	return models.EmailSettings{
		Provider: strings.ToLower(strings.TrimSpace(req.Provider)),
		Host:     strings.TrimSpace(req.Host),
		Port:     req.Port,
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		From:     strings.TrimSpace(req.From),
	}
}

// Status handles GET /api/email-status.
func (h *EmailHandler) Status(w http.ResponseWriter, r *http.Request) {
	provider, email, ok := h.Mailer.Status()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"configured": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"configured": true, "email": email, "provider": provider})
}

// Configure handles POST /api/configure-email: persist then apply.
func (h *EmailHandler) Configure(w http.ResponseWriter, r *http.Request) {
	var req EmailSettingsRequest
	if !decode(w, r, &req) {
		return
	}
	cfg := req.settings()
	if (cfg.Provider == "" && cfg.Host == "") || cfg.Email == "" || cfg.Password == "" {
		writeError(w, http.StatusBadRequest, "Provider, email, and password are required")
		return
	}
	if err := h.Mailer.Reconfigure(cfg); err != nil {
		if errors.Is(err, service.ErrMailSettings) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to apply configuration")
		return
	}
	if err := h.Settings.Save(r.Context(), cfg); err != nil {
		h.Log.Error(r.Context(), "save email settings", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to save configuration")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Email configuration saved"})
}

// Test handles POST /api/test-email: dial the given settings without
// applying them.
func (h *EmailHandler) Test(w http.ResponseWriter, r *http.Request) {
	var req EmailSettingsRequest
	if !decode(w, r, &req) {
		return
	}
	cfg := req.settings()
	if (cfg.Provider == "" && cfg.Host == "") || cfg.Email == "" || cfg.Password == "" {
		writeError(w, http.StatusBadRequest, "All fields are required")
		return
	}
	if err := h.Mailer.Verify(r.Context(), cfg); err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Email configuration test failed: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Email configuration is valid"})
}

type ResetCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// SendResetCode handles POST /api/send-reset-code. The response is the same
// whether or not a staff account owns the address.
func (h *EmailHandler) SendResetCode(w http.ResponseWriter, r *http.Request) {
	var req ResetCodeRequest
	if !decode(w, r, &req) {
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}
	if !emailPattern.MatchString(email) {
		writeError(w, http.StatusBadRequest, "Invalid email address")
		return
	}
	if !h.Mailer.Configured() {
		writeError(w, http.StatusServiceUnavailable, "Email service not configured. Please configure email first.")
		return
	}
	sent := map[string]any{"success": true, "message": "Verification code sent successfully"}

	exists, err := h.Auth.UserExistsByEmail(r.Context(), email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to send verification code. Please try again or contact support.")
		return
	}
	if !exists {
		h.Log.Info(r.Context(), "reset code requested for unknown email")
		writeJSON(w, http.StatusOK, sent)
		return
	}
	code, err := h.Codes.Issue(email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to send verification code. Please try again or contact support.")
		return
	}
	msg := service.Message{
		To:      email,
		Subject: "Password Reset Verification Code - BuyPvaAccount",
		Body: fmt.Sprintf("Your verification code is: %s\n\nThis code will expire in %d minutes.\n"+
			"If you did not request this password reset, please ignore this email.\n", code, int(service.DefaultCodeTTL/time.Minute)),
	}
	if err := h.Mailer.Send(r.Context(), msg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to send verification code. Please try again or contact support.")
		return
	}
	h.logEmail(r, models.EmailLog{Kind: "reset_code", ToEmail: email, Subject: msg.Subject})
	writeJSON(w, http.StatusOK, sent)
}

// VerifyResetCode handles POST /api/verify-reset-code and returns a
// short-lived reset ticket.
func (h *EmailHandler) VerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req ResetCodeRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "Email and verification code are required")
		return
	}
	ticket, err := h.Codes.Verify(req.Email, req.Code)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or expired verification code")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "resetToken": ticket})
}

type ResetPasswordRequest struct {
	ResetToken string `json:"resetToken"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// ResetPassword handles POST /api/reset-password.
func (h *EmailHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ResetToken == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Reset token and password are required")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Password must be at least %d characters", minPasswordLen))
		return
	}
	email, err := h.Codes.ParseTicket(req.ResetToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid or expired reset token")
		return
	}
	if req.Email != "" && !strings.EqualFold(strings.TrimSpace(req.Email), email) {
		writeError(w, http.StatusBadRequest, "Reset token does not match this email")
		return
	}
	if email, err = h.Codes.Redeem(req.ResetToken); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid or expired reset token")
		return
	}
	err = h.Auth.ResetPassword(r.Context(), email, req.Password)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password updated successfully"})
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "No account found for this email")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to persist new password")
	}
}

type OrderItem struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Price     float64 `json:"price"`
	Total     float64 `json:"total"`
}

type OrderData struct {
	OrderID       string      `json:"orderId"`
	CreatedAt     string      `json:"createdAt"`
	PaymentMethod string      `json:"paymentMethod"`
	Items         []OrderItem `json:"items"`
	Total         float64     `json:"total"`
}

type OrderConfirmationRequest struct {
	Email     string     `json:"email"`
	OrderData *OrderData `json:"orderData"`
}

// OrderConfirmation handles POST /api/send-order-confirmation.
func (h *EmailHandler) OrderConfirmation(w http.ResponseWriter, r *http.Request) {
	var req OrderConfirmationRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.OrderData == nil {
		writeError(w, http.StatusBadRequest, "Email and order data are required")
		return
	}
	if !emailPattern.MatchString(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email address")
		return
	}
	if !h.Mailer.Configured() {
		writeError(w, http.StatusServiceUnavailable, "Email service not configured.")
		return
	}
	msg := service.Message{
		To:      req.Email,
		Subject: fmt.Sprintf("Order Confirmation #%s - BuyPvaAccount", req.OrderData.OrderID),
		Body:    orderBody(req.OrderData),
	}
	if err := h.Mailer.Send(r.Context(), msg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to send confirmation email")
		return
	}
	h.logEmail(r, models.EmailLog{Kind: "order_confirmation", ToEmail: req.Email, Subject: msg.Subject, OrderID: req.OrderData.OrderID})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Order confirmation email sent successfully"})
}

func orderBody(o *OrderData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your order!\n\nOrder Number: %s\n", o.OrderID)
	if o.CreatedAt != "" {
		fmt.Fprintf(&b, "Order Date: %s\n", o.CreatedAt)
	}
	method := "Cash on Delivery"
	if o.PaymentMethod == "crypto" {
		method = "Cryptocurrency"
	}
	fmt.Fprintf(&b, "Payment Method: %s\n\n", method)
	var sum float64
	for _, it := range o.Items {
		unit := it.UnitPrice
		if unit == 0 {
			unit = it.Price
		}
		line := it.Total
		if line == 0 {
			line = unit * float64(it.Quantity)
		}
		sum += line
		fmt.Fprintf(&b, "%s x%d @ $%.2f = $%.2f\n", it.Name, it.Quantity, unit, line)
	}
	total := o.Total
	if total == 0 {
		total = sum
	}
	fmt.Fprintf(&b, "\nTotal: $%.2f\n", total)
	return b.String()
}

func (h *EmailHandler) logEmail(r *http.Request, entry models.EmailLog) {
	entry.SentAt = h.now()
	if u, ok := middleware.UserFromContext(r.Context()); ok {
		entry.SentBy = u.Username
	}
	if err := h.Logs.InsertEmailLog(r.Context(), entry); err != nil {
		h.Log.Error(r.Context(), "insert email log", "kind", entry.Kind, "err", err)
	}
}
