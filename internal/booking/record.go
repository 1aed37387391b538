package booking

import "github.com/shazamohamed705/ghym-medical-clea-sub000/internal/catalog"

// Status is the lifecycle state of a created booking.
type Status string

const (
	// StatusPending bookings wait for OTP verification.
	StatusPending Status = "pending"
	// StatusConfirmed bookings have redeemed their OTP.
	StatusConfirmed Status = "confirmed"
)

// Record is one booking created on the backend.
type Record struct {
	ID        string            `json:"id"`
	ClinicID  catalog.ClinicID  `json:"clinic_id"`
	ServiceID catalog.ServiceID `json:"service_id"`
	DoctorID  catalog.StaffID   `json:"doctor_id,omitempty"`
	Date      Date              `json:"date"`
	Time      string            `json:"time,omitempty"`
	Address   *AddressRef       `json:"address,omitempty"`
	Status    Status            `json:"status"`
}

// Confirmed reports whether the booking has been verified.
func (r Record) Confirmed() bool { return r.Status == StatusConfirmed }
