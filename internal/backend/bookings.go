package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/booking"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/catalog"
)

type createdDTO struct {
	ID        flexID `json:"id"`
	BookingID flexID `json:"booking_id"`
}

type bookingDTO struct {
	ID         flexID    `json:"id"`
	ClinicID   int       `json:"clinic_id"`
	ServiceID  int       `json:"service_id"`
	StaffID    int       `json:"staff_id"`
	Date       string    `json:"date"`
	Time       string    `json:"time"`
	Address    string    `json:"address"`
	Status     string    `json:"status"`
	IsVerified *bool     `json:"is_verified"`
	Latitude   flexFloat `json:"latitude"`
	Longitude  flexFloat `json:"longitude"`
}

func (d bookingDTO) toRecord() booking.Record {
	rec := booking.Record{
		ID:        string(d.ID),
		ClinicID:  catalog.ClinicID(d.ClinicID),
		ServiceID: catalog.ServiceID(d.ServiceID),
		DoctorID:  catalog.StaffID(d.StaffID),
		Time:      d.Time,
		Status:    booking.StatusPending,
	}
	if date, err := booking.ParseDate(firstN(d.Date, 10)); err == nil {
		rec.Date = date
	}
	if d.Address != "" {
		rec.Address = &booking.AddressRef{Label: d.Address, Latitude: float64(d.Latitude), Longitude: float64(d.Longitude)}
	}
	switch {
	case d.IsVerified != nil && *d.IsVerified:
		rec.Status = booking.StatusConfirmed
	case strings.EqualFold(d.Status, string(booking.StatusConfirmed)), strings.EqualFold(d.Status, "verified"):
		rec.Status = booking.StatusConfirmed
	}
	return rec
}

// CreateBooking creates one booking and returns its backend id.
func (c *Client) CreateBooking(ctx context.Context, p booking.Payload) (string, error) {
	if c.dryRun {
		id := "dry-run-" + uuid.NewString()
		c.logger.Info("dry run: booking not created",
			"clinic_id", p.ClinicID,
			"service_id", p.ServiceID,
			"staff_id", p.DoctorID,
			"date", p.Date,
			"booking_id", id,
		)
		return id, nil
	}

	raw, err := c.doJSON(ctx, "create_booking", http.MethodPost, "/api/bookings", p)
	if err != nil {
		return "", fmt.Errorf("create booking: %w", err)
	}
	var created createdDTO
	if err := json.Unmarshal(unwrap(raw, "data", "booking"), &created); err != nil {
		return "", fmt.Errorf("create booking: decode response: %w", err)
	}
	id := string(created.ID)
	if id == "" {
		id = string(created.BookingID)
	}
	if id == "" {
		return "", fmt.Errorf("create booking: response carried no booking id")
	}
	return id, nil
}

// RedeemOTP exchanges a verification code for a booking confirmation. The
// code is sent exactly as given.
func (c *Client) RedeemOTP(ctx context.Context, bookingID, code string) error {
	path := fmt.Sprintf("/api/bookings/%s/otp", url.PathEscape(bookingID))
	body := map[string]string{"code": code}
	if _, err := c.doJSON(ctx, "redeem_otp", http.MethodPost, path, body); err != nil {
		return fmt.Errorf("redeem otp: %w", err)
	}
	return nil
}

// ListBookings returns the user's bookings.
func (c *Client) ListBookings(ctx context.Context) ([]booking.Record, error) {
	raw, err := c.doJSON(ctx, "list_bookings", http.MethodGet, "/api/user/bookings", nil)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	var dtos []bookingDTO
	if err := json.Unmarshal(unwrap(raw, "data", "bookings"), &dtos); err != nil {
		return nil, fmt.Errorf("list bookings: decode response: %w", err)
	}
	out := make([]booking.Record, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toRecord())
	}
	return out, nil
}

func firstN(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
