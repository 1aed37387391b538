package submission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/booking"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/catalog"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/pkg/logging"
)

type fakeCreator struct {
	mu       sync.Mutex
	payloads []booking.Payload
	fail     map[catalog.ServiceID]error
}

func (f *fakeCreator) CreateBooking(ctx context.Context, p booking.Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, p)
	if err := f.fail[p.ServiceID]; err != nil {
		return "", err
	}
	return fmt.Sprintf("bk-%d", p.ServiceID), nil
}

func (f *fakeCreator) byService() map[catalog.ServiceID]booking.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[catalog.ServiceID]booking.Payload, len(f.payloads))
	for _, p := range f.payloads {
		out[p.ServiceID] = p
	}
	return out
}

type fakeLedger struct {
	batchID string
	records []booking.Record
	err     error
}

func (l *fakeLedger) RecordBatch(ctx context.Context, batchID string, records []booking.Record) error {
	l.batchID = batchID
	l.records = records
	return l.err
}

type userErr struct{ msg string }

func (e *userErr) Error() string       { return "backend returned 409: " + e.msg }
func (e *userErr) UserMessage() string { return e.msg }

const (
	s1 catalog.ServiceID = 101
	s2 catalog.ServiceID = 102
)

func twoServiceRequest() Request {
	return Request{
		Draft: booking.Draft{
			ClinicID: 2,
			Services: []catalog.ServiceID{s1, s2},
			DoctorID: 3,
			Date:     booking.Date{Year: 2025, Month: time.March, Day: 15},
		},
		Contact: booking.Contact{Name: "Mona", Phone: "01000000000"},
		Roster: &catalog.Roster{
			Clinic: catalog.Clinic{ID: 2, Name: "Smile", OwnerName: "Dr. Owner"},
			Staff:  []catalog.Staff{{ID: 3, Name: "Dr. Three"}},
		},
	}
}

func TestSubmitAllSucceed(t *testing.T) {
	creator := &fakeCreator{}
	ledger := &fakeLedger{}
	o := NewOrchestrator(creator, logging.Default(), WithLedger(ledger))

	out, err := o.Submit(context.Background(), twoServiceRequest())
	require.NoError(t, err)

	assert.True(t, out.Success)
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, "bk-101", out.FirstBookingID)
	assert.Equal(t, "Dr. Three", out.DoctorName)
	assert.NotEmpty(t, out.BatchID)

	sent := creator.byService()
	require.Len(t, sent, 2)
	assert.Equal(t, []catalog.ServiceID{s2}, sent[s1].ServiceIDs)
	assert.Equal(t, []catalog.ServiceID{s2}, sent[s2].ServiceIDs)
	for _, p := range sent {
		assert.Equal(t, "2025-03-15", p.Date)
		assert.Equal(t, catalog.StaffID(3), p.DoctorID)
	}

	assert.Equal(t, out.BatchID, ledger.batchID)
	require.Len(t, ledger.records, 2)
	assert.Equal(t, booking.StatusPending, ledger.records[0].Status)
}

func TestSubmitPartialFailureKeepsCreatedBookings(t *testing.T) {
	creator := &fakeCreator{fail: map[catalog.ServiceID]error{
		s2: fmt.Errorf("create booking: %w", &userErr{msg: "slot taken"}),
	}}
	ledger := &fakeLedger{}
	o := NewOrchestrator(creator, logging.Default(), WithLedger(ledger))

	out, err := o.Submit(context.Background(), twoServiceRequest())
	require.NoError(t, err)

	assert.False(t, out.Success)
	assert.Equal(t, "slot taken", out.Message)
	assert.Equal(t, s2, out.FailedService)
	require.Len(t, out.Created, 1)
	assert.Equal(t, "bk-101", out.Created[0].ID)
	assert.Len(t, creator.byService(), 2)
	// the already created booking is still recorded
	require.Len(t, ledger.records, 1)
}

func TestSubmitFirstFailureInSelectionOrderWins(t *testing.T) {
	creator := &fakeCreator{fail: map[catalog.ServiceID]error{
		s1: &userErr{msg: "first"},
		s2: &userErr{msg: "second"},
	}}
	ledger := &fakeLedger{}
	o := NewOrchestrator(creator, logging.Default(), WithLedger(ledger))

	out, err := o.Submit(context.Background(), twoServiceRequest())
	require.NoError(t, err)
	assert.Equal(t, "first", out.Message)
	assert.Empty(t, out.Created)
	assert.Empty(t, ledger.batchID)
}

func TestSubmitValidationHappensBeforeNetwork(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		want   error
	}{
		{"missing name", func(r *Request) { r.Contact.Name = " " }, booking.ErrMissingName},
		{"missing phone", func(r *Request) { r.Contact.Phone = "" }, booking.ErrMissingPhone},
		{"missing clinic", func(r *Request) { r.Draft.ClinicID = 0 }, booking.ErrMissingClinic},
		{"no services", func(r *Request) { r.Draft.Services = nil }, booking.ErrNoServices},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := &fakeCreator{}
			o := NewOrchestrator(creator, logging.Default())
			req := twoServiceRequest()
			tt.mutate(&req)

			_, err := o.Submit(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, creator.byService())
		})
	}
}

func TestSubmitLedgerFailureDoesNotFailBatch(t *testing.T) {
	o := NewOrchestrator(&fakeCreator{}, logging.Default(), WithLedger(&fakeLedger{err: errors.New("db down")}))
	out, err := o.Submit(context.Background(), twoServiceRequest())
	require.NoError(t, err)
	assert.True(t, out.Success)
}

func TestDisplayDoctorName(t *testing.T) {
	roster := &catalog.Roster{
		Clinic: catalog.Clinic{OwnerName: "Dr. Owner"},
		Staff:  []catalog.Staff{{ID: 3, Name: "Dr. Three"}},
	}
	assert.Equal(t, "Dr. Three", DisplayDoctorName(roster, 3, "Clinic doctor"))
	assert.Equal(t, "Dr. Owner", DisplayDoctorName(roster, 0, "Clinic doctor"))
	assert.Equal(t, "Dr. Owner", DisplayDoctorName(roster, 99, "Clinic doctor"))
	assert.Equal(t, "Clinic doctor", DisplayDoctorName(nil, 3, "Clinic doctor"))
}
