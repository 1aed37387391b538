package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/booking"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/catalog"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/identity"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/pkg/logging"
)

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewRepository(mock, logging.Default()), mock
}

func sampleRecords() []booking.Record {
	date := booking.Date{Year: 2025, Month: time.March, Day: 10}
	return []booking.Record{
		{ID: "b-1", ClinicID: 7, ServiceID: 101, DoctorID: 3, Date: date, Time: "10:00 AM", Status: booking.StatusPending},
		{ID: "b-2", ClinicID: 7, ServiceID: 102, DoctorID: 3, Date: date, Time: "10:00 AM",
			Address: &booking.AddressRef{ID: 4, Label: "Home"}},
	}
}

func TestRecordBatchInsertsInTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	batchID := uuid.New()
	ctx := identity.WithUser(context.Background(), identity.User{Subject: "user-1", Token: "tok"})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO booking_records").
		WithArgs("b-1", toPGUUID(batchID), "user-1", int32(7), int32(101),
			pgtype.Int4{Int32: 3, Valid: true}, pgxmock.AnyArg(), "10:00 AM", "", "pending").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO booking_records").
		WithArgs("b-2", toPGUUID(batchID), "user-1", int32(7), int32(102),
			pgtype.Int4{Int32: 3, Valid: true}, pgxmock.AnyArg(), "10:00 AM", "Home", "pending").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	if err := repo.RecordBatch(ctx, batchID.String(), sampleRecords()); err != nil {
		t.Fatalf("record batch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordBatchRollsBackOnInsertError(t *testing.T) {
	repo, mock := newMockRepo(t)
	batchID := uuid.New()

	mock.ExpectBegin()
	anyArgs := make([]any, 10)
	for i := range anyArgs {
		anyArgs[i] = pgxmock.AnyArg()
	}
	mock.ExpectExec("INSERT INTO booking_records").
		WithArgs(anyArgs...).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := repo.RecordBatch(context.Background(), batchID.String(), sampleRecords()[:1])
	if err == nil {
		t.Fatalf("expected insert error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordBatchRejectsBadBatchID(t *testing.T) {
	repo, mock := newMockRepo(t)
	if err := repo.RecordBatch(context.Background(), "not-a-uuid", sampleRecords()); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no database calls expected: %v", err)
	}
}

func TestRecordBatchEmptyIsNoop(t *testing.T) {
	repo, mock := newMockRepo(t)
	if err := repo.RecordBatch(context.Background(), uuid.NewString(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no database calls expected: %v", err)
	}
}

func TestMarkConfirmed(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE booking_records SET status = 'confirmed'").
		WithArgs("b-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE booking_records SET status = 'confirmed'").
		WithArgs("unknown", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.MarkConfirmed(context.Background(), "b-1"); err != nil {
		t.Fatalf("mark confirmed: %v", err)
	}
	if err := repo.MarkConfirmed(context.Background(), "unknown"); err != nil {
		t.Fatalf("unknown booking should not fail: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkConfirmedPropagatesErrors(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE booking_records").
		WithArgs("b-1", pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))
	if err := repo.MarkConfirmed(context.Background(), "b-1"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestListByBatch(t *testing.T) {
	repo, mock := newMockRepo(t)
	batchID := uuid.New()
	day := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"booking_id", "clinic_id", "service_id", "staff_id", "booking_date", "slot_time", "address", "status"}).
		AddRow("b-1", int32(7), int32(101), pgtype.Int4{Int32: 3, Valid: true}, pgtype.Date{Time: day, Valid: true}, "10:00 AM", "", "confirmed").
		AddRow("b-2", int32(7), int32(102), pgtype.Int4{}, pgtype.Date{}, "", "Home", "pending")
	mock.ExpectQuery("SELECT booking_id").
		WithArgs(toPGUUID(batchID), "user-1").
		WillReturnRows(rows)

	ctx := identity.WithUser(context.Background(), identity.User{Subject: "user-1"})
	records, err := repo.ListByBatch(ctx, batchID.String())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	first := records[0]
	if first.DoctorID != catalog.StaffID(3) || first.Date != booking.DateOf(day) || !first.Confirmed() {
		t.Fatalf("unexpected first record: %+v", first)
	}
	second := records[1]
	if second.DoctorID != 0 || !second.Date.IsZero() || second.Address == nil || second.Address.Label != "Home" {
		t.Fatalf("unexpected second record: %+v", second)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListByBatchRejectsMalformedID(t *testing.T) {
	repo, mock := newMockRepo(t)
	_, err := repo.ListByBatch(context.Background(), "not-a-uuid")
	if !errors.Is(err, ErrInvalidBatchID) {
		t.Fatalf("err = %v, want ErrInvalidBatchID", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected queries: %v", err)
	}
}
