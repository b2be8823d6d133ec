package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"filippo.io/age"
	"github.com/klauspost/compress/zip"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/clock"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/logging"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/store"
)

var (
	ErrBackupNotConfigured = errors.New("backup storage not configured")
	ErrNoRecipient         = errors.New("backup recipient not configured")
	ErrPassphraseRequired  = errors.New("backup passphrase required")
)

// SealedSuffix is appended to the name of passphrase-encrypted archives.
const SealedSuffix = ".age"

// ObjectStore is where uploaded archives go. *S3Service implements it.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration, responseFilename string) (string, error)
}

// Manifest describes an identity backup archive.
type Manifest struct {
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
	Users     int       `json:"users"`
	HasAdmin  bool      `json:"hasAdmin"`
	Sealed    bool      `json:"sealed"`
}

// BackupResult is returned by Upload.
type BackupResult struct {
	Key      string   `json:"key"`
	URL      string   `json:"url,omitempty"`
	Manifest Manifest `json:"manifest"`
}

// EmailedBackup is returned by Email.
type EmailedBackup struct {
	To       string `json:"to"`
	Filename string `json:"filename"`
	Bytes    int    `json:"bytes"`
	Sealed   bool   `json:"sealed"`
}

// adminExport is the admin singleton as it appears in a backup. The
// password hash and the TOTP secret never leave the store.
type adminExport struct {
	Username         string     `json:"username"`
	LastLogin        *time.Time `json:"lastLogin"`
	TwoFactorEnabled bool       `json:"twoFactorEnabled"`
}

// BackupService archives the identity store as a zip of JSON documents,
// optionally sealed with an age passphrase. Session tokens and the admin's
// secrets are never included.
type BackupService struct {
	identities store.IdentityStore
	objects    ObjectStore // nil: no upload
	clock      clock.Clock
	log        logging.Logger
	// scryptLogN overrides age's scrypt work factor when non-zero.
	scryptLogN int
}

type BackupOption func(*BackupService)

// WithScryptWorkFactor sets the log2 scrypt work factor used to seal
// archives. Lower values are only suitable for tests.
func WithScryptWorkFactor(logN int) BackupOption {
	return func(b *BackupService) { b.scryptLogN = logN }
}

func NewBackupService(identities store.IdentityStore, objects ObjectStore, c clock.Clock, log logging.Logger, opts ...BackupOption) *BackupService {
	b := &BackupService{identities: identities, objects: objects, clock: c, log: log}
	for _, o := range opts {
		o(b)
	}
	return b
}

type archiveEntry struct {
	name string
	v    any
}

// CanUpload reports whether an object store is wired.
func (b *BackupService) CanUpload() bool { return b.objects != nil }

// FileName is the archive name for a backup taken at t.
func FileName(t time.Time, sealed bool) string {
	name := "staff-backup-" + t.UTC().Format("20060102-150405") + ".zip"
	if sealed {
		name += SealedSuffix
	}
	return name
}

// WriteArchive writes a zip with manifest.json, the user list and the
// admin summary to w.
func (b *BackupService) WriteArchive(ctx context.Context, w io.Writer, createdBy string) (*Manifest, error) {
	return b.writeArchive(ctx, w, createdBy, false)
}

func (b *BackupService) writeArchive(ctx context.Context, w io.Writer, createdBy string, sealed bool) (*Manifest, error) {
	users, err := b.identities.Users().Scan(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}
	for i := range users {
		users[i].Token, users[i].PrevToken = "", ""
		users[i].TokenIssuedAt, users[i].PrevTokenAt = nil, nil
	}
	creds, err := b.identities.AdminCredentials().Get(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("read admin credentials: %w", err)
	}

	now := b.clock.Now().UTC()
	m := &Manifest{CreatedAt: now, CreatedBy: createdBy, Users: len(users), HasAdmin: creds != nil, Sealed: sealed}

	zw := zip.NewWriter(w)
	entries := []archiveEntry{
		{"manifest.json", m},
		{store.UsersFile, users},
	}
	if creds != nil {
		entries = append(entries, archiveEntry{store.AdminCredentialsFile, adminExport{
			Username:         creds.Username,
			LastLogin:        creds.LastLogin,
			TwoFactorEnabled: creds.TwoFactor.Enabled,
		}})
	}
	for _, e := range entries {
		f, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate, Modified: now})
		if err != nil {
			return nil, err
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(e.v); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return m, nil
}

// WriteSealedArchive writes the archive encrypted to an age scrypt
// recipient derived from passphrase. `age -d` opens it.
func (b *BackupService) WriteSealedArchive(ctx context.Context, w io.Writer, createdBy, passphrase string) (*Manifest, error) {
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	r, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("age recipient: %w", err)
	}
	if b.scryptLogN > 0 {
		r.SetWorkFactor(b.scryptLogN)
	}
	aw, err := age.Encrypt(w, r)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	m, err := b.writeArchive(ctx, aw, createdBy, true)
	if err != nil {
		return nil, err
	}
	if err := aw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return m, nil
}

// build renders the archive into memory, sealed when passphrase is set.
func (b *BackupService) build(ctx context.Context, createdBy, passphrase string) (*bytes.Buffer, *Manifest, error) {
	var buf bytes.Buffer
	var (
		m   *Manifest
		err error
	)
	if passphrase != "" {
		m, err = b.WriteSealedArchive(ctx, &buf, createdBy, passphrase)
	} else {
		m, err = b.WriteArchive(ctx, &buf, createdBy)
	}
	if err != nil {
		return nil, nil, err
	}
	return &buf, m, nil
}

// Upload builds a sealed archive and stores it under backups/ in the
// object store, returning a presigned download link valid for linkTTL.
func (b *BackupService) Upload(ctx context.Context, createdBy, passphrase string, linkTTL time.Duration) (*BackupResult, error) {
	if b.objects == nil {
		return nil, ErrBackupNotConfigured
	}
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	buf, m, err := b.build(ctx, createdBy, passphrase)
	if err != nil {
		return nil, err
	}
	name := FileName(m.CreatedAt, true)
	key := "backups/" + name
	if err := b.objects.Put(ctx, key, buf, "application/octet-stream"); err != nil {
		return nil, fmt.Errorf("upload backup: %w", err)
	}
	res := &BackupResult{Key: key, Manifest: *m}
	if linkTTL > 0 {
		url, err := b.objects.PresignedGetURL(ctx, key, linkTTL, name)
		if err != nil {
			b.log.Warn(ctx, "presign backup url", "key", key, "err", err)
		} else {
			res.URL = url
		}
	}
	b.log.Info(ctx, "identity backup uploaded", "key", key, "users", m.Users, "by", createdBy)
	return res, nil
}

// Email sends the archive to the given recipient as an attachment. The
// archive is sealed when passphrase is set.
func (b *BackupService) Email(ctx context.Context, mailer *Mailer, to, createdBy, passphrase string) (*EmailedBackup, error) {
	if to == "" {
		return nil, ErrNoRecipient
	}
	if !mailer.Configured() {
		return nil, ErrMailerNotConfigured
	}
	buf, m, err := b.build(ctx, createdBy, passphrase)
	if err != nil {
		return nil, err
	}
	sealed := passphrase != ""
	name := FileName(m.CreatedAt, sealed)
	contentType := "application/zip"
	note := "The archive is a plain zip."
	if sealed {
		contentType = "application/octet-stream"
		note = "The archive is encrypted with the configured backup passphrase; open it with `age -d`."
	}
	size := buf.Len()
	msg := Message{
		To:      to,
		Subject: fmt.Sprintf("Staff Backup - %s", m.CreatedAt.Format("2006-01-02 15:04 UTC")),
		Body: fmt.Sprintf("Attached is the latest staff identity backup (%d users). Size: %.2f KB.\n\n%s\n",
			m.Users, float64(size)/1024, note),
		Attachments: []Attachment{{Name: name, ContentType: contentType, Data: buf.Bytes()}},
	}
	if err := mailer.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("email backup: %w", err)
	}
	b.log.Info(ctx, "identity backup emailed", "to", to, "bytes", size, "by", createdBy)
	return &EmailedBackup{To: to, Filename: name, Bytes: size, Sealed: sealed}, nil
}
