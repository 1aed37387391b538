// Package catalog holds the clinic catalog as the booking wizard sees it:
// clinics, their services and staff, and the user's saved addresses.
package catalog

import "sort"

// ClinicID identifies a clinic on the backend.
type ClinicID int

// ServiceID identifies a bookable service.
type ServiceID int

// StaffID identifies a doctor on a clinic roster.
type StaffID int

// Clinic is a clinic as listed by the backend.
type Clinic struct {
	ID        ClinicID `json:"id"`
	Name      string   `json:"name"`
	Address   string   `json:"address,omitempty"`
	Latitude  float64  `json:"latitude,omitempty"`
	Longitude float64  `json:"longitude,omitempty"`
	// OwnerName is the clinic's owner/contact person. Used as the display
	// doctor name when a booking carries no roster doctor.
	OwnerName string `json:"owner_name,omitempty"`
}

// Service is a clinic service with its staff affinity already normalized.
type Service struct {
	ID           ServiceID `json:"id"`
	Name         string    `json:"name"`
	Price        float64   `json:"price"`
	Duration     int       `json:"duration"`
	Discount     float64   `json:"discount,omitempty"`
	BookingCycle int       `json:"booking_cycle"`
	Staff        StaffSet  `json:"staff"`
}

// DirectlyBookable reports whether the service can be booked inside the
// wizard. Other services are routed to the clinic's contact channel.
func (s Service) DirectlyBookable() bool {
	return s.BookingCycle == 1
}

// Staff is a doctor on the clinic roster.
type Staff struct {
	ID   StaffID `json:"id"`
	Name string  `json:"name"`
}

// Roster is everything the wizard needs about one clinic.
type Roster struct {
	Clinic   Clinic    `json:"clinic"`
	Services []Service `json:"services"`
	Staff    []Staff   `json:"staff"`
}

// Service looks up a service by id.
func (r *Roster) Service(id ServiceID) (Service, bool) {
	if r == nil {
		return Service{}, false
	}
	for _, svc := range r.Services {
		if svc.ID == id {
			return svc, true
		}
	}
	return Service{}, false
}

// Doctor looks up a roster doctor by id.
func (r *Roster) Doctor(id StaffID) (Staff, bool) {
	if r == nil {
		return Staff{}, false
	}
	for _, st := range r.Staff {
		if st.ID == id {
			return st, true
		}
	}
	return Staff{}, false
}

// Address is one of the user's saved addresses.
type Address struct {
	ID      int    `json:"id"`
	Address string `json:"address"`
	City    string `json:"city,omitempty"`
}

// SortServiceIDs returns a sorted copy of ids.
func SortServiceIDs(ids []ServiceID) []ServiceID {
	out := append([]ServiceID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
