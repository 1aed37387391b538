package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/catalog"
)

type clinicDTO struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Latitude  flexFloat `json:"latitude"`
	Longitude flexFloat `json:"longitude"`
	OwnerName string    `json:"owner_name"`
}

func (d clinicDTO) toClinic() catalog.Clinic {
	return catalog.Clinic{
		ID:        catalog.ClinicID(d.ID),
		Name:      d.Name,
		Address:   d.Address,
		Latitude:  float64(d.Latitude),
		Longitude: float64(d.Longitude),
		OwnerName: d.OwnerName,
	}
}

type serviceDTO struct {
	ID           int             `json:"id"`
	Name         string          `json:"name"`
	Price        flexFloat       `json:"price"`
	Duration     flexFloat       `json:"duration"`
	Discount     flexFloat       `json:"discount"`
	BookingCycle int             `json:"booking_cycle"`
	Staff        json.RawMessage `json:"staff"`
}

type staffDTO struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type rosterDTO struct {
	Clinic   clinicDTO    `json:"clinic"`
	Services []serviceDTO `json:"services"`
	Staff    []staffDTO   `json:"staff"`
	Doctors  []staffDTO   `json:"doctors"`
}

type addressDTO struct {
	ID      int    `json:"id"`
	Address string `json:"address"`
	City    string `json:"city"`
}

// ListClinics returns every clinic the user can book at.
func (c *Client) ListClinics(ctx context.Context) ([]catalog.Clinic, error) {
	raw, err := c.doJSON(ctx, "list_clinics", http.MethodGet, "/api/clinics", nil)
	if err != nil {
		return nil, fmt.Errorf("list clinics: %w", err)
	}
	var dtos []clinicDTO
	if err := json.Unmarshal(unwrap(raw, "data", "clinics"), &dtos); err != nil {
		return nil, fmt.Errorf("list clinics: decode response: %w", err)
	}
	out := make([]catalog.Clinic, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toClinic())
	}
	return out, nil
}

// GetRoster returns a clinic's services and staff. Staff affinity is
// normalized here; an unreadable affinity leaves the service with no staff.
func (c *Client) GetRoster(ctx context.Context, clinicID catalog.ClinicID) (*catalog.Roster, error) {
	path := fmt.Sprintf("/api/clinics/%d/roster", clinicID)
	raw, err := c.doJSON(ctx, "get_roster", http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("get roster: %w", err)
	}
	var dto rosterDTO
	if err := json.Unmarshal(unwrap(raw, "data"), &dto); err != nil {
		return nil, fmt.Errorf("get roster: decode response: %w", err)
	}

	roster := &catalog.Roster{Clinic: dto.Clinic.toClinic()}
	for _, s := range dto.Services {
		staff, err := catalog.NormalizeStaffAffinity(s.Staff)
		if err != nil {
			c.logger.Warn("unreadable staff affinity", "clinic_id", clinicID, "service_id", s.ID, "error", err)
			staff = catalog.NewStaffSet()
		}
		roster.Services = append(roster.Services, catalog.Service{
			ID:           catalog.ServiceID(s.ID),
			Name:         s.Name,
			Price:        float64(s.Price),
			Duration:     int(s.Duration),
			Discount:     float64(s.Discount),
			BookingCycle: s.BookingCycle,
			Staff:        staff,
		})
	}
	staff := dto.Staff
	if len(staff) == 0 {
		staff = dto.Doctors
	}
	for _, s := range staff {
		roster.Staff = append(roster.Staff, catalog.Staff{ID: catalog.StaffID(s.ID), Name: s.Name})
	}
	return roster, nil
}

// ListAddresses returns the user's saved addresses.
func (c *Client) ListAddresses(ctx context.Context) ([]catalog.Address, error) {
	raw, err := c.doJSON(ctx, "list_addresses", http.MethodGet, "/api/user/addresses", nil)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	var dtos []addressDTO
	if err := json.Unmarshal(unwrap(raw, "data", "addresses"), &dtos); err != nil {
		return nil, fmt.Errorf("list addresses: decode response: %w", err)
	}
	out := make([]catalog.Address, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, catalog.Address{ID: d.ID, Address: d.Address, City: d.City})
	}
	return out, nil
}
