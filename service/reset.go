package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/clock"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/logging"
)

var (
	ErrCodeInvalid   = errors.New("invalid or expired verification code")
	ErrTicketInvalid = errors.New("invalid or expired reset ticket")
)

const (
	DefaultCodeTTL   = 10 * time.Minute
	DefaultTicketTTL = 15 * time.Minute
	maxCodeAttempts  = 5
	ticketPurpose    = "password_reset"
)

type resetEntry struct {
	code     string
	expires  time.Time
	attempts int
}

type ticketClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// ResetCodes holds pending 6-digit password reset codes in memory and
// trades a verified code for a signed, single-use reset ticket. Start runs
// a sweeper that drops expired codes and redeemed ticket IDs; Stop ends it.
type ResetCodes struct {
	mu        sync.Mutex
	codes     map[string]*resetEntry
	redeemed  map[string]time.Time // ticket ID -> ticket expiry
	secret    []byte
	codeTTL   time.Duration
	ticketTTL time.Duration
	clock     clock.Clock
	log       logging.Logger

	stop chan struct{}
	done chan struct{}
}

type ResetOption func(*ResetCodes)

func WithResetClock(c clock.Clock) ResetOption { return func(r *ResetCodes) { r.clock = c } }

func WithCodeTTL(d time.Duration) ResetOption { return func(r *ResetCodes) { r.codeTTL = d } }

func WithTicketTTL(d time.Duration) ResetOption { return func(r *ResetCodes) { r.ticketTTL = d } }

func NewResetCodes(secret []byte, log logging.Logger, opts ...ResetOption) *ResetCodes {
	r := &ResetCodes{
		codes:     make(map[string]*resetEntry),
		redeemed:  make(map[string]time.Time),
		secret:    secret,
		codeTTL:   DefaultCodeTTL,
		ticketTTL: DefaultTicketTTL,
		clock:     clock.Real(),
		log:       log,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func emailKey(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Issue creates a fresh code for email, replacing any pending one.
func (r *ResetCodes) Issue(email string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	code := fmt.Sprintf("%06d", n.Int64())
	r.mu.Lock()
	r.codes[emailKey(email)] = &resetEntry{code: code, expires: r.clock.Now().Add(r.codeTTL)}
	r.mu.Unlock()
	return code, nil
}

// Verify consumes the pending code for email and returns a reset ticket.
// A code is burned after maxCodeAttempts wrong guesses.
func (r *ResetCodes) Verify(email, code string) (string, error) {
	key := emailKey(email)
	now := r.clock.Now()

	r.mu.Lock()
	e, ok := r.codes[key]
	if !ok || !now.Before(e.expires) {
		delete(r.codes, key)
		r.mu.Unlock()
		return "", ErrCodeInvalid
	}
	if subtle.ConstantTimeCompare([]byte(e.code), []byte(strings.TrimSpace(code))) != 1 {
		e.attempts++
		if e.attempts >= maxCodeAttempts {
			delete(r.codes, key)
		}
		r.mu.Unlock()
		return "", ErrCodeInvalid
	}
	delete(r.codes, key)
	r.mu.Unlock()

	claims := ticketClaims{
		Purpose: ticketPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   key,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ticketTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

// ParseTicket validates a reset ticket and returns the email it was issued
// for. It does not consume the ticket.
func (r *ResetCodes) ParseTicket(ticket string) (string, error) {
	claims, err := r.parse(ticket)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	_, used := r.redeemed[claims.ID]
	r.mu.Unlock()
	if used {
		return "", ErrTicketInvalid
	}
	return claims.Subject, nil
}

// Redeem validates a reset ticket and marks it used. A ticket redeems at
// most once.
func (r *ResetCodes) Redeem(ticket string) (string, error) {
	claims, err := r.parse(ticket)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, used := r.redeemed[claims.ID]; used {
		return "", ErrTicketInvalid
	}
	r.redeemed[claims.ID] = claims.ExpiresAt.Time
	return claims.Subject, nil
}

func (r *ResetCodes) parse(ticket string) (*ticketClaims, error) {
	var claims ticketClaims
	_, err := jwt.ParseWithClaims(ticket, &claims, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(r.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || claims.Purpose != ticketPurpose || claims.Subject == "" || claims.ID == "" {
		return nil, ErrTicketInvalid
	}
	return &claims, nil
}

// Pending returns the number of codes not yet swept.
func (r *ResetCodes) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.codes)
}

// Sweep drops expired codes and forgets redeemed tickets that have expired
// anyway. It returns the number of codes dropped.
func (r *ResetCodes) Sweep() int {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, e := range r.codes {
		if !now.Before(e.expires) {
			delete(r.codes, k)
			n++
		}
	}
	for id, exp := range r.redeemed {
		if !now.Before(exp) {
			delete(r.redeemed, id)
		}
	}
	return n
}

// Start sweeps expired codes every interval until Stop or ctx is done.
func (r *ResetCodes) Start(ctx context.Context, interval time.Duration) {
	r.mu.Lock()
	if r.stop != nil {
		r.mu.Unlock()
		return
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	stop, done := r.stop, r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-r.clock.After(interval):
				if n := r.Sweep(); n > 0 {
					r.log.Info(ctx, "expired reset codes swept", "count", n)
				}
			}
		}
	}()
}

// Stop ends the sweeper and waits for it to exit.
func (r *ResetCodes) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
