package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	mail "github.com/go-mail/mail/v2"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/logging"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/models"
)

var (
	ErrMailerNotConfigured = errors.New("email service not configured")
	ErrMailerClosed        = errors.New("email service shut down")
	ErrMailSettings        = errors.New("invalid email settings")
)

const senderName = "BuyPvaAccount"

type smtpServer struct {
	host string
	port int
}

// Known providers resolve to their STARTTLS submission endpoint.
var providers = map[string]smtpServer{
	"gmail":   {"smtp.gmail.com", 587},
	"outlook": {"smtp-mail.outlook.com", 587},
	"hotmail": {"smtp-mail.outlook.com", 587},
	"yahoo":   {"smtp.mail.yahoo.com", 587},
	"icloud":  {"smtp.mail.me.com", 587},
}

// Dialer is the part of *mail.Dialer the Mailer uses.
type Dialer interface {
	Dial() (mail.SendCloser, error)
	DialAndSend(m ...*mail.Message) error
}

// Message is a plain-text notification with optional attachments.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Attachment is an in-memory file attached to a Message.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Mailer sends notification emails over SMTP. It starts unconfigured;
// Init and Reconfigure swap the active settings, Shutdown stops it for good.
type Mailer struct {
	mu        sync.RWMutex
	settings  *models.EmailSettings
	dialer    Dialer
	closed    bool
	newDialer func(models.EmailSettings) (Dialer, error)
	log       logging.Logger
}

type MailerOption func(*Mailer)

// WithDialerFactory replaces the go-mail dialer, mostly for tests.
func WithDialerFactory(f func(models.EmailSettings) (Dialer, error)) MailerOption {
	return func(m *Mailer) { m.newDialer = f }
}

func NewMailer(log logging.Logger, opts ...MailerOption) *Mailer {
	m := &Mailer{newDialer: newSMTPDialer, log: log}
	for _, o := range opts {
		o(m)
	}
	return m
}

func newSMTPDialer(cfg models.EmailSettings) (Dialer, error) {
	host, port := cfg.Host, cfg.Port
	if host == "" {
		srv, ok := providers[strings.ToLower(cfg.Provider)]
		if !ok {
			return nil, fmt.Errorf("unknown provider %q: %w", cfg.Provider, ErrMailSettings)
		}
		host, port = srv.host, srv.port
	}
	if port == 0 {
		port = 587
	}
	d := mail.NewDialer(host, port, cfg.Email, cfg.Password)
	d.Timeout = 15 * time.Second
	if port == 465 {
		d.SSL = true
	} else {
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}
	return d, nil
}

func validSettings(cfg models.EmailSettings) error {
	if cfg.Email == "" || cfg.Password == "" || (cfg.Provider == "" && cfg.Host == "") {
		return fmt.Errorf("provider, email and password are required: %w", ErrMailSettings)
	}
	return nil
}

// Init applies the startup settings. A nil cfg leaves the mailer
// unconfigured, which is not an error.
func (m *Mailer) Init(cfg *models.EmailSettings) error {
	if cfg == nil {
		m.log.Warn(context.Background(), "email not configured; notification endpoints will return 503")
		return nil
	}
	return m.Reconfigure(*cfg)
}

// Reconfigure swaps the active settings.
func (m *Mailer) Reconfigure(cfg models.EmailSettings) error {
	if err := validSettings(cfg); err != nil {
		return err
	}
	d, err := m.newDialer(cfg)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMailerClosed
	}
	m.settings = &cfg
	m.dialer = d
	m.log.Info(context.Background(), "email configured", "provider", cfg.Provider, "email", cfg.Email)
	return nil
}

// Shutdown drops the active settings. Later calls fail with ErrMailerClosed.
func (m *Mailer) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.settings = nil
	m.dialer = nil
}

func (m *Mailer) Configured() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings != nil
}

// Status reports the active provider and sender address.
func (m *Mailer) Status() (provider, email string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return "", "", false
	}
	return m.settings.Provider, m.settings.Email, true
}

// Verify opens and closes an SMTP session with cfg without touching the
// active settings.
func (m *Mailer) Verify(ctx context.Context, cfg models.EmailSettings) error {
	if err := validSettings(cfg); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	d, err := m.newDialer(cfg)
	if err != nil {
		return err
	}
	sc, err := d.Dial()
	if err != nil {
		return err
	}
	return sc.Close()
}

// Send delivers msg from the configured sender address.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	closed, settings, d := m.closed, m.settings, m.dialer
	m.mu.RUnlock()
	if closed {
		return ErrMailerClosed
	}
	if settings == nil {
		return ErrMailerNotConfigured
	}

	from := settings.From
	if from == "" {
		from = settings.Email
	}
	mm := mail.NewMessage()
	mm.SetAddressHeader("From", from, senderName)
	mm.SetHeader("To", msg.To)
	mm.SetHeader("Subject", msg.Subject)
	mm.SetBody("text/plain", msg.Body)
	for _, a := range msg.Attachments {
		data := a.Data
		settings := []mail.FileSetting{mail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		})}
		if a.ContentType != "" {
			settings = append(settings, mail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}))
		}
		mm.Attach(a.Name, settings...)
	}
	if err := d.DialAndSend(mm); err != nil {
		m.log.Error(ctx, "send email", "to", msg.To, "err", err)
		return err
	}
	return nil
}
