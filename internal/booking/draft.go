// Package booking holds the booking draft and records shared by the wizard,
// the availability resolver, the submission orchestrator and the OTP verifier.
package booking

import (
	"strings"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/catalog"
)

// AddressRef is the address attached to a booking: either a saved address or
// the user's current location.
type AddressRef struct {
	ID              int     `json:"id,omitempty"`
	Label           string  `json:"label,omitempty"`
	City            string  `json:"city,omitempty"`
	CurrentLocation bool    `json:"current_location,omitempty"`
	Latitude        float64 `json:"latitude,omitempty"`
	Longitude       float64 `json:"longitude,omitempty"`
}

// Contact is who the booking is for.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Validate checks the contact fields required for submission.
func (c Contact) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(c.Phone) == "" {
		return ErrMissingPhone
	}
	return nil
}

// Draft is the in-progress booking selection. Services keep selection order;
// the first one is the primary service sent to the backend.
type Draft struct {
	ClinicID  catalog.ClinicID    `json:"clinic_id,omitempty"`
	Services  []catalog.ServiceID `json:"services"`
	DoctorID  catalog.StaffID     `json:"doctor_id,omitempty"`
	Address   *AddressRef         `json:"address,omitempty"`
	Date      Date                `json:"date"`
	Time      string              `json:"time,omitempty"`
	SlotValue string              `json:"slot_value,omitempty"`
}

// Clone returns a deep copy.
func (d Draft) Clone() Draft {
	out := d
	out.Services = append([]catalog.ServiceID(nil), d.Services...)
	if d.Address != nil {
		addr := *d.Address
		out.Address = &addr
	}
	return out
}

// HasServices reports whether at least one service is selected.
func (d Draft) HasServices() bool { return len(d.Services) > 0 }

// HasDoctor reports whether a doctor is selected.
func (d Draft) HasDoctor() bool { return d.DoctorID > 0 }

// HasService reports whether id is selected.
func (d Draft) HasService(id catalog.ServiceID) bool {
	for _, s := range d.Services {
		if s == id {
			return true
		}
	}
	return false
}

// PrimaryService returns the first selected service.
func (d Draft) PrimaryService() (catalog.ServiceID, bool) {
	if len(d.Services) == 0 {
		return 0, false
	}
	return d.Services[0], true
}

// SecondaryServices returns every selected service after the first.
func (d Draft) SecondaryServices() []catalog.ServiceID {
	if len(d.Services) < 2 {
		return nil
	}
	return append([]catalog.ServiceID(nil), d.Services[1:]...)
}

// ClearSchedule drops the chosen date and time.
func (d *Draft) ClearSchedule() {
	d.Date = Date{}
	d.Time = ""
	d.SlotValue = ""
}

// ValidateForSubmission checks the submission preconditions. Doctor,
// address, date and time are optional.
func (d Draft) ValidateForSubmission(contact Contact) error {
	if err := contact.Validate(); err != nil {
		return err
	}
	if d.ClinicID <= 0 {
		return ErrMissingClinic
	}
	if !d.HasServices() {
		return ErrNoServices
	}
	return nil
}
