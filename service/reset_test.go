package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infopublicnews25/BuyPvaAccount-sub000/clock"
	"github.com/infopublicnews25/BuyPvaAccount-sub000/logging"
)

func newTestResetCodes(fc *clock.FakeClock) *ResetCodes {
	return NewResetCodes([]byte("test-secret"), logging.Discard(), WithResetClock(fc))
}

func TestResetCodes_IssueVerifyTicket(t *testing.T) {
	fc := clock.Fake(time.Now())
	r := newTestResetCodes(fc)

	code, err := r.Issue("Ed@Example.com")
	require.NoError(t, err)
	assert.Regexp(t, `^\d{6}$`, code)

	ticket, err := r.Verify("ed@example.com ", code)
	require.NoError(t, err)

	email, err := r.ParseTicket(ticket)
	require.NoError(t, err)
	assert.Equal(t, "ed@example.com", email)

	_, err = r.Verify("ed@example.com", code)
	assert.ErrorIs(t, err, ErrCodeInvalid, "codes are single use")
}

func TestResetCodes_Expiry(t *testing.T) {
	fc := clock.Fake(time.Now())
	r := newTestResetCodes(fc)

	code, err := r.Issue("ed@example.com")
	require.NoError(t, err)
	fc.Advance(DefaultCodeTTL)
	_, err = r.Verify("ed@example.com", code)
	assert.ErrorIs(t, err, ErrCodeInvalid)
}

func TestResetCodes_AttemptLimit(t *testing.T) {
	fc := clock.Fake(time.Now())
	r := newTestResetCodes(fc)

	code, err := r.Issue("ed@example.com")
	require.NoError(t, err)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := 0; i < maxCodeAttempts; i++ {
		_, err := r.Verify("ed@example.com", wrong)
		assert.ErrorIs(t, err, ErrCodeInvalid)
	}
	_, err = r.Verify("ed@example.com", code)
	assert.ErrorIs(t, err, ErrCodeInvalid, "burned after too many guesses")
}

func TestResetCodes_TicketRejections(t *testing.T) {
	fc := clock.Fake(time.Now())
	r := newTestResetCodes(fc)

	code, err := r.Issue("ed@example.com")
	require.NoError(t, err)
	ticket, err := r.Verify("ed@example.com", code)
	require.NoError(t, err)

	other := NewResetCodes([]byte("another-secret"), logging.Discard(), WithResetClock(fc))
	_, err = other.ParseTicket(ticket)
	assert.ErrorIs(t, err, ErrTicketInvalid)

	_, err = r.ParseTicket("not-a-jwt")
	assert.ErrorIs(t, err, ErrTicketInvalid)

	fc.Advance(DefaultTicketTTL + time.Second)
	_, err = r.ParseTicket(ticket)
	assert.ErrorIs(t, err, ErrTicketInvalid)
}

func TestResetCodes_TicketRedeemsOnce(t *testing.T) {
	fc := clock.Fake(time.Now())
	r := newTestResetCodes(fc)

	code, err := r.Issue("ed@example.com")
	require.NoError(t, err)
	ticket, err := r.Verify("ed@example.com", code)
	require.NoError(t, err)

	email, err := r.Redeem(ticket)
	require.NoError(t, err)
	assert.Equal(t, "ed@example.com", email)

	_, err = r.Redeem(ticket)
	assert.ErrorIs(t, err, ErrTicketInvalid)
	_, err = r.ParseTicket(ticket)
	assert.ErrorIs(t, err, ErrTicketInvalid)

	// A fresh code yields a fresh ticket.
	code, err = r.Issue("ed@example.com")
	require.NoError(t, err)
	second, err := r.Verify("ed@example.com", code)
	require.NoError(t, err)
	_, err = r.Redeem(second)
	assert.NoError(t, err)

	fc.Advance(DefaultTicketTTL + time.Second)
	r.Sweep()
	r.mu.Lock()
	assert.Empty(t, r.redeemed)
	r.mu.Unlock()
}

func TestResetCodes_Sweeper(t *testing.T) {
	fc := clock.Fake(time.Now())
	r := newTestResetCodes(fc)
	_, err := r.Issue("a@example.com")
	require.NoError(t, err)

	r.Start(context.Background(), time.Minute)
	defer r.Stop()

	require.Eventually(t, func() bool { return fc.Waiters() == 1 }, time.Second, time.Millisecond)
	fc.Advance(DefaultCodeTTL)
	require.Eventually(t, func() bool { return r.Pending() == 0 }, time.Second, time.Millisecond)

	r.Stop()
	r.Stop()
}
