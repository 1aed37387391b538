package catalog

import (
	"context"
	"fmt"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/pkg/logging"
)

// Fetcher is the remote source of catalog data.
type Fetcher interface {
	ListClinics(ctx context.Context) ([]Clinic, error)
	GetRoster(ctx context.Context, clinicID ClinicID) (*Roster, error)
	ListAddresses(ctx context.Context) ([]Address, error)
}

// Catalog reads clinics and rosters through an optional cache. Addresses are
// user scoped and always fetched live.
type Catalog struct {
	fetcher Fetcher
	store   *Store
	logger  *logging.Logger
}

// New creates a catalog. store may be nil to disable caching.
func New(fetcher Fetcher, store *Store, logger *logging.Logger) *Catalog {
	if fetcher == nil {
		panic("catalog: fetcher required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Catalog{fetcher: fetcher, store: store, logger: logger.Component("catalog")}
}

// Clinics lists the clinics available for booking.
func (c *Catalog) Clinics(ctx context.Context) ([]Clinic, error) {
	if c.store != nil {
		clinics, ok, err := c.store.GetClinics(ctx)
		if err != nil {
			c.logger.Warn("clinic cache read failed", "error", err)
		} else if ok {
			return clinics, nil
		}
	}

	clinics, err := c.fetcher.ListClinics(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list clinics: %w", err)
	}
	if c.store != nil {
		if err := c.store.SetClinics(ctx, clinics); err != nil {
			c.logger.Warn("clinic cache write failed", "error", err)
		}
	}
	return clinics, nil
}

// Roster returns the services and staff of a clinic.
func (c *Catalog) Roster(ctx context.Context, clinicID ClinicID) (*Roster, error) {
	if clinicID <= 0 {
		return nil, fmt.Errorf("catalog: invalid clinic id %d", clinicID)
	}
	if c.store != nil {
		roster, ok, err := c.store.GetRoster(ctx, clinicID)
		if err != nil {
			c.logger.Warn("roster cache read failed", "clinic_id", clinicID, "error", err)
		} else if ok {
			return roster, nil
		}
	}

	roster, err := c.fetcher.GetRoster(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("catalog: load roster %d: %w", clinicID, err)
	}
	if roster.Clinic.ID == 0 {
		roster.Clinic.ID = clinicID
	}
	if c.store != nil {
		if err := c.store.SetRoster(ctx, roster); err != nil {
			c.logger.Warn("roster cache write failed", "clinic_id", clinicID, "error", err)
		}
	}
	c.logger.Debug("roster loaded", "clinic_id", clinicID, "services", len(roster.Services), "staff", len(roster.Staff))
	return roster, nil
}

// Addresses lists the calling user's saved addresses.
func (c *Catalog) Addresses(ctx context.Context) ([]Address, error) {
	addresses, err := c.fetcher.ListAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list addresses: %w", err)
	}
	return addresses, nil
}
