package booking

import "github.com/shazamohamed705/ghym-medical-clea-sub000/internal/catalog"

// Payload is one booking-creation request. A multi-service batch sends one
// payload per service, each carrying the batch's secondary services.
type Payload struct {
	ClinicID   catalog.ClinicID    `json:"clinic_id"`
	ServiceID  catalog.ServiceID   `json:"service_id"`
	ServiceIDs []catalog.ServiceID `json:"service_ids,omitempty"`
	DoctorID   catalog.StaffID     `json:"staff_id,omitempty"`
	Date       string              `json:"date,omitempty"`
	Time       string              `json:"time,omitempty"`

	AddressID       int     `json:"address_id,omitempty"`
	Address         string  `json:"address,omitempty"`
	City            string  `json:"city,omitempty"`
	CurrentLocation bool    `json:"current_location,omitempty"`
	Latitude        float64 `json:"latitude,omitempty"`
	Longitude       float64 `json:"longitude,omitempty"`

	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Payloads builds the batch for a draft in selection order. The draft time
// slot is sent as its backend token when one was resolved.
func (d Draft) Payloads(contact Contact) []Payload {
	secondary := d.SecondaryServices()
	slot := d.SlotValue
	if slot == "" {
		slot = d.Time
	}
	out := make([]Payload, 0, len(d.Services))
	for _, svc := range d.Services {
		p := Payload{
			ClinicID:   d.ClinicID,
			ServiceID:  svc,
			ServiceIDs: append([]catalog.ServiceID(nil), secondary...),
			DoctorID:   d.DoctorID,
			Date:       d.Date.String(),
			Time:       slot,
			Name:       contact.Name,
			Phone:      contact.Phone,
		}
		if a := d.Address; a != nil {
			p.AddressID = a.ID
			p.Address = a.Label
			p.City = a.City
			p.CurrentLocation = a.CurrentLocation
			p.Latitude = a.Latitude
			p.Longitude = a.Longitude
		}
		out = append(out, p)
	}
	return out
}

// Record returns the pending record created from p.
func (p Payload) Record(id string) Record {
	rec := Record{
		ID:        id,
		ClinicID:  p.ClinicID,
		ServiceID: p.ServiceID,
		DoctorID:  p.DoctorID,
		Time:      p.Time,
		Status:    StatusPending,
	}
	if p.Date != "" {
		if d, err := ParseDate(p.Date); err == nil {
			rec.Date = d
		}
	}
	if p.AddressID != 0 || p.Address != "" || p.CurrentLocation {
		rec.Address = &AddressRef{
			ID:              p.AddressID,
			Label:           p.Address,
			City:            p.City,
			CurrentLocation: p.CurrentLocation,
			Latitude:        p.Latitude,
			Longitude:       p.Longitude,
		}
	}
	return rec
}
