// Package otp confirms pending bookings by redeeming one-time codes.
package otp

import (
	"context"
	"errors"
	"strings"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/booking"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/observability/metrics"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/pkg/logging"
)

var (
	// ErrTooManyAttempts is returned once a caller used up its failed attempts
	// for a booking.
	ErrTooManyAttempts = errors.New("too many verification attempts")

	// ErrMissingBooking is returned when no booking id is given.
	ErrMissingBooking = errors.New("booking id is required")
)

// Redeemer exchanges a code with the backend.
type Redeemer interface {
	RedeemOTP(ctx context.Context, bookingID, code string) error
}

// Refresher reloads the user's bookings after a confirmation.
type Refresher interface {
	ListBookings(ctx context.Context) ([]booking.Record, error)
}

// Ledger marks a locally recorded booking as confirmed.
type Ledger interface {
	MarkConfirmed(ctx context.Context, bookingID string) error
}

// Result is the state of a booking after a redemption attempt.
type Result struct {
	BookingID string           `json:"booking_id"`
	Status    booking.Status   `json:"status"`
	Message   string           `json:"message,omitempty"`
	Bookings  []booking.Record `json:"bookings,omitempty"`
}

// Verifier confirms bookings with the backend. It keeps no confirmation
// state of its own: every redemption is an exchange with the backend.
type Verifier struct {
	redeemer    Redeemer
	refresher   Refresher
	ledger      Ledger
	attempts    Attempts
	logger      *logging.Logger
	metrics     *metrics.BookingMetrics
	maxAttempts int
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithRefresher reloads the booking list after a confirmation.
func WithRefresher(r Refresher) Option {
	return func(v *Verifier) { v.refresher = r }
}

// WithLedger marks confirmed bookings in the ledger.
func WithLedger(l Ledger) Option {
	return func(v *Verifier) { v.ledger = l }
}

// WithMetrics counts redemption outcomes.
func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// WithMaxAttempts caps failed attempts per caller and booking. Zero means
// unlimited and disables attempt tracking.
func WithMaxAttempts(n int) Option {
	return func(v *Verifier) {
		if n >= 0 {
			v.maxAttempts = n
		}
	}
}

// WithAttempts sets where failed attempts are counted. Defaults to an
// in-process counter.
func WithAttempts(a Attempts) Option {
	return func(v *Verifier) {
		if a != nil {
			v.attempts = a
		}
	}
}

// NewVerifier creates a verifier over redeemer.
func NewVerifier(redeemer Redeemer, logger *logging.Logger, opts ...Option) *Verifier {
	if redeemer == nil {
		panic("otp: redeemer is required")
	}
	v := &Verifier{
		redeemer: redeemer,
		logger:   logger.Component("otp"),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.maxAttempts > 0 && v.attempts == nil {
		v.attempts = NewMemoryAttempts(0)
	}
	return v
}

// Redeem exchanges code for a confirmation of bookingID. Only surrounding
// whitespace is removed from code. A rejected code keeps the booking
// pending, and the server's message is returned in Result.Message along
// with the error.
func (v *Verifier) Redeem(ctx context.Context, bookingID, code string) (Result, error) {
	bookingID = strings.TrimSpace(bookingID)
	res := Result{BookingID: bookingID, Status: booking.StatusPending}
	if bookingID == "" {
		return res, ErrMissingBooking
	}
	code = strings.TrimSpace(code)
	if code == "" {
		v.metrics.ObserveOTP("empty")
		res.Message = booking.ErrEmptyCode.Error()
		return res, booking.ErrEmptyCode
	}

	limited := v.maxAttempts > 0
	key := attemptKey(ctx, bookingID)
	if limited {
		failures, err := v.attempts.Failures(ctx, key)
		if err != nil {
			v.logger.Warn("failed to read otp attempts", "booking_id", bookingID, "error", err)
		}
		if failures >= v.maxAttempts {
			v.metrics.ObserveOTP("locked")
			res.Message = ErrTooManyAttempts.Error()
			return res, ErrTooManyAttempts
		}
	}

	if err := v.redeemer.RedeemOTP(ctx, bookingID, code); err != nil {
		if limited {
			if _, aerr := v.attempts.RecordFailure(ctx, key); aerr != nil {
				v.logger.Warn("failed to record otp attempt", "booking_id", bookingID, "error", aerr)
			}
		}
		v.metrics.ObserveOTP("rejected")
		v.logger.Info("otp rejected", "booking_id", bookingID, "error", err)
		res.Message = booking.UserMessage(err)
		return res, err
	}

	if limited {
		if err := v.attempts.Clear(ctx, key); err != nil {
			v.logger.Warn("failed to clear otp attempts", "booking_id", bookingID, "error", err)
		}
	}
	v.metrics.ObserveOTP("confirmed")
	res.Status = booking.StatusConfirmed

	if v.ledger != nil {
		if err := v.ledger.MarkConfirmed(ctx, bookingID); err != nil {
			v.logger.Warn("failed to mark booking confirmed in ledger", "booking_id", bookingID, "error", err)
		}
	}
	if v.refresher != nil {
		records, err := v.refresher.ListBookings(ctx)
		if err != nil {
			v.logger.Warn("failed to refresh bookings", "booking_id", bookingID, "error", err)
		} else {
			res.Bookings = records
		}
	}
	v.logger.Info("booking confirmed", "booking_id", bookingID)
	return res, nil
}
