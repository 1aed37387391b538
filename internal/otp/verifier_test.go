package otp

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/booking"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/identity"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/pkg/logging"
)

type serverErr struct{ msg string }

func (e *serverErr) Error() string       { return "backend returned 400: " + e.msg }
func (e *serverErr) UserMessage() string { return e.msg }

type fakeRedeemer struct {
	calls    atomic.Int32
	lastCode string
	valid    string
}

func (f *fakeRedeemer) RedeemOTP(ctx context.Context, bookingID, code string) error {
	f.calls.Add(1)
	f.lastCode = code
	if code != f.valid {
		return &serverErr{msg: "رمز غير صحيح"}
	}
	return nil
}

type fakeRefresher struct {
	records []booking.Record
	err     error
}

func (f *fakeRefresher) ListBookings(ctx context.Context) ([]booking.Record, error) {
	return f.records, f.err
}

type fakeLedger struct{ confirmed []string }

func (f *fakeLedger) MarkConfirmed(ctx context.Context, bookingID string) error {
	f.confirmed = append(f.confirmed, bookingID)
	return nil
}

func TestRedeemWrongCodeKeepsPending(t *testing.T) {
	redeemer := &fakeRedeemer{valid: "4821"}
	v := NewVerifier(redeemer, logging.Default())

	res, err := v.Redeem(context.Background(), "5012", "000000")
	require.Error(t, err)
	assert.Equal(t, booking.StatusPending, res.Status)
	assert.Equal(t, "رمز غير صحيح", res.Message)
}

func TestRedeemSuccessConfirmsAndRefreshes(t *testing.T) {
	redeemer := &fakeRedeemer{valid: "ab12"}
	refresher := &fakeRefresher{records: []booking.Record{{ID: "5012", Status: booking.StatusConfirmed}}}
	ledger := &fakeLedger{}
	v := NewVerifier(redeemer, logging.Default(), WithRefresher(refresher), WithLedger(ledger))

	res, err := v.Redeem(context.Background(), "5012", "  ab12\n")
	require.NoError(t, err)
	assert.Equal(t, "ab12", redeemer.lastCode)
	assert.Equal(t, booking.StatusConfirmed, res.Status)
	assert.Len(t, res.Bookings, 1)
	assert.Equal(t, []string{"5012"}, ledger.confirmed)

}

func TestRedeemAlwaysAsksBackend(t *testing.T) {
	redeemer := &fakeRedeemer{valid: "ab12"}
	v := NewVerifier(redeemer, logging.Default())
	alice := identity.WithUser(context.Background(), identity.User{Subject: "alice", Token: "a"})
	mallory := identity.WithUser(context.Background(), identity.User{Subject: "mallory", Token: "m"})

	_, err := v.Redeem(alice, "77", "ab12")
	require.NoError(t, err)

	res, err := v.Redeem(mallory, "77", "garbage")
	require.Error(t, err)
	assert.Equal(t, booking.StatusPending, res.Status)
	assert.Equal(t, "رمز غير صحيح", res.Message)
	assert.Equal(t, int32(2), redeemer.calls.Load())
}

func TestRedeemCodeIsNotNormalized(t *testing.T) {
	redeemer := &fakeRedeemer{valid: "0042"}
	v := NewVerifier(redeemer, logging.Default())

	_, err := v.Redeem(context.Background(), "1", "0042")
	require.NoError(t, err)
	assert.Equal(t, "0042", redeemer.lastCode)
}

func TestRedeemEmptyCodeSkipsNetwork(t *testing.T) {
	redeemer := &fakeRedeemer{valid: "1"}
	v := NewVerifier(redeemer, logging.Default())

	_, err := v.Redeem(context.Background(), "5012", "   ")
	assert.ErrorIs(t, err, booking.ErrEmptyCode)
	assert.Zero(t, redeemer.calls.Load())

	_, err = v.Redeem(context.Background(), "", "1234")
	assert.ErrorIs(t, err, ErrMissingBooking)
}

func TestRedeemRefreshFailureStillConfirms(t *testing.T) {
	redeemer := &fakeRedeemer{valid: "1"}
	v := NewVerifier(redeemer, logging.Default(), WithRefresher(&fakeRefresher{err: errors.New("timeout")}))

	res, err := v.Redeem(context.Background(), "5012", "1")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, res.Status)
	assert.Nil(t, res.Bookings)
}

func TestRedeemMaxAttempts(t *testing.T) {
	redeemer := &fakeRedeemer{valid: "9999"}
	v := NewVerifier(redeemer, logging.Default(), WithMaxAttempts(2))

	for i := 0; i < 2; i++ {
		_, err := v.Redeem(context.Background(), "5012", "0000")
		require.Error(t, err)
	}
	_, err := v.Redeem(context.Background(), "5012", "9999")
	assert.ErrorIs(t, err, ErrTooManyAttempts)
	assert.Equal(t, int32(2), redeemer.calls.Load())

	// other bookings are unaffected
	_, err = v.Redeem(context.Background(), "5013", "9999")
	assert.NoError(t, err)
}

func TestRedeemAttemptsAreScopedToCaller(t *testing.T) {
	redeemer := &fakeRedeemer{valid: "9999"}
	v := NewVerifier(redeemer, logging.Default(), WithMaxAttempts(3))
	alice := identity.WithUser(context.Background(), identity.User{Subject: "alice", Token: "a"})
	mallory := identity.WithUser(context.Background(), identity.User{Subject: "mallory", Token: "m"})

	for i := 0; i < 3; i++ {
		_, err := v.Redeem(mallory, "42", "0000")
		require.Error(t, err)
	}
	_, err := v.Redeem(mallory, "42", "9999")
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	res, err := v.Redeem(alice, "42", "9999")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, res.Status)
}

func TestRedeemSuccessClearsAttempts(t *testing.T) {
	redeemer := &fakeRedeemer{valid: "9999"}
	attempts := NewMemoryAttempts(time.Minute)
	v := NewVerifier(redeemer, logging.Default(), WithMaxAttempts(3), WithAttempts(attempts))

	_, err := v.Redeem(context.Background(), "42", "0000")
	require.Error(t, err)
	assert.Equal(t, 1, attempts.Len())

	_, err = v.Redeem(context.Background(), "42", "9999")
	require.NoError(t, err)
	assert.Zero(t, attempts.Len())
}

func TestRedeemUnlimitedAttemptsByDefault(t *testing.T) {
	redeemer := &fakeRedeemer{valid: "9999"}
	v := NewVerifier(redeemer, logging.Default())
	for i := 0; i < 10; i++ {
		_, _ = v.Redeem(context.Background(), "5012", "0000")
	}
	_, err := v.Redeem(context.Background(), "5012", "9999")
	assert.NoError(t, err)
}

func TestRedeemUnlimitedDoesNotTrackFailures(t *testing.T) {
	redeemer := &fakeRedeemer{valid: "9999"}
	attempts := NewMemoryAttempts(time.Minute)
	v := NewVerifier(redeemer, logging.Default(), WithAttempts(attempts))

	for i := 0; i < 100; i++ {
		_, _ = v.Redeem(context.Background(), fmt.Sprintf("id-%d", i), "0000")
	}
	assert.Zero(t, attempts.Len())
}
