// Package bookings is the local ledger of bookings created through the
// wizard. The backend stays the source of truth; the ledger keeps batches
// traceable, including the bookings of partially failed batches.
package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/booking"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/catalog"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/identity"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/pkg/logging"
)

var bookingsTracer = otel.Tracer("clinic.internal.bookings")

// ErrInvalidBatchID is returned for batch ids that are not UUIDs.
var ErrInvalidBatchID = errors.New("invalid batch id")

// DB is the part of a pgx pool the repository uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository persists booking records.
type Repository struct {
	db     DB
	logger *logging.Logger
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(db DB, logger *logging.Logger) *Repository {
	if db == nil {
		panic("bookings: db required")
	}
	return &Repository{db: db, logger: logger.Component("bookings")}
}

const insertRecordSQL = `
INSERT INTO booking_records (booking_id, batch_id, subject, clinic_id, service_id, staff_id, booking_date, slot_time, address, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (booking_id) DO NOTHING`

// RecordBatch stores the records of one submission batch in a single
// transaction.
func (r *Repository) RecordBatch(ctx context.Context, batchID string, records []booking.Record) error {
	if len(records) == 0 {
		return nil
	}
	batch, err := uuid.Parse(batchID)
	if err != nil {
		return fmt.Errorf("bookings: parse batch id: %w", err)
	}
	ctx, span := bookingsTracer.Start(ctx, "bookings.record_batch")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.id", batchID),
		attribute.Int("batch.records", len(records)),
	)

	subject := subjectOf(ctx)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("bookings: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, rec := range records {
		address := ""
		if rec.Address != nil {
			address = rec.Address.Label
		}
		if _, err := tx.Exec(ctx, insertRecordSQL,
			rec.ID,
			toPGUUID(batch),
			subject,
			int32(rec.ClinicID),
			int32(rec.ServiceID),
			toPGStaff(rec.DoctorID),
			toPGDate(rec.Date),
			rec.Time,
			address,
			string(statusOrPending(rec.Status)),
		); err != nil {
			span.RecordError(err)
			return fmt.Errorf("bookings: insert %s: %w", rec.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("bookings: commit: %w", err)
	}
	r.logger.Info("booking batch recorded", "batch_id", batchID, "records", len(records))
	return nil
}

const confirmSQL = `
UPDATE booking_records SET status = 'confirmed', confirmed_at = $2
WHERE booking_id = $1 AND status <> 'confirmed'`

// MarkConfirmed flips a recorded booking to confirmed. Bookings the ledger
// never saw are ignored.
func (r *Repository) MarkConfirmed(ctx context.Context, bookingID string) error {
	ctx, span := bookingsTracer.Start(ctx, "bookings.mark_confirmed")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", bookingID))

	tag, err := r.db.Exec(ctx, confirmSQL, bookingID, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("bookings: mark confirmed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("no pending ledger row to confirm", "booking_id", bookingID)
	}
	return nil
}

const listBatchSQL = `
SELECT booking_id, clinic_id, service_id, staff_id, booking_date, slot_time, address, status
FROM booking_records
WHERE batch_id = $1 AND subject = $2
ORDER BY created_at, booking_id`

// ListByBatch returns the records of one batch that belong to the caller
// in ctx. Another user's batch reads as empty.
func (r *Repository) ListByBatch(ctx context.Context, batchID string) ([]booking.Record, error) {
	batch, err := uuid.Parse(batchID)
	if err != nil {
		return nil, fmt.Errorf("bookings: %w: %v", ErrInvalidBatchID, err)
	}
	rows, err := r.db.Query(ctx, listBatchSQL, toPGUUID(batch), subjectOf(ctx))
	if err != nil {
		return nil, fmt.Errorf("bookings: list batch: %w", err)
	}
	defer rows.Close()

	var out []booking.Record
	for rows.Next() {
		var (
			rec       booking.Record
			clinicID  int32
			serviceID int32
			staffID   pgtype.Int4
			date      pgtype.Date
			address   string
			status    string
		)
		if err := rows.Scan(&rec.ID, &clinicID, &serviceID, &staffID, &date, &rec.Time, &address, &status); err != nil {
			return nil, fmt.Errorf("bookings: scan: %w", err)
		}
		rec.ClinicID = catalog.ClinicID(clinicID)
		rec.ServiceID = catalog.ServiceID(serviceID)
		if staffID.Valid {
			rec.DoctorID = catalog.StaffID(staffID.Int32)
		}
		if date.Valid {
			rec.Date = booking.DateOf(date.Time)
		}
		if address != "" {
			rec.Address = &booking.AddressRef{Label: address}
		}
		rec.Status = booking.Status(status)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: list batch: %w", err)
	}
	return out, nil
}

func subjectOf(ctx context.Context) string {
	if u, ok := identity.UserFromContext(ctx); ok {
		return u.Subject
	}
	return ""
}

func statusOrPending(s booking.Status) booking.Status {
	if s == "" {
		return booking.StatusPending
	}
	return s
}

func toPGUUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{
		Bytes: [16]byte(id),
		Valid: true,
	}
}

func toPGStaff(id catalog.StaffID) pgtype.Int4 {
	if id <= 0 {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(id), Valid: true}
}

func toPGDate(d booking.Date) pgtype.Date {
	if d.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{
		Time:  time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC),
		Valid: true,
	}
}
