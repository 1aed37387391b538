// Package submission turns a completed booking draft into backend bookings,
// one per selected service.
package submission

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/booking"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/catalog"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/observability/metrics"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/pkg/logging"
)

const defaultDoctorName = "Clinic doctor"

var tracer = otel.Tracer("clinic.internal.submission")

// Creator creates one booking on the backend and returns its id.
type Creator interface {
	CreateBooking(ctx context.Context, p booking.Payload) (string, error)
}

// Ledger persists the bookings a batch created.
type Ledger interface {
	RecordBatch(ctx context.Context, batchID string, records []booking.Record) error
}

// Request is one submission.
type Request struct {
	Draft   booking.Draft
	Contact booking.Contact
	// Roster resolves the display doctor name. May be nil.
	Roster *catalog.Roster
}

// Outcome reports a settled batch. Created holds every booking the backend
// accepted, in service order, even when the batch failed: a partial batch
// is not rolled back.
type Outcome struct {
	BatchID        string            `json:"batch_id"`
	Success        bool              `json:"success"`
	Message        string            `json:"message,omitempty"`
	FailedService  catalog.ServiceID `json:"failed_service,omitempty"`
	FirstBookingID string            `json:"first_booking_id,omitempty"`
	Count          int               `json:"count"`
	DoctorName     string            `json:"doctor_name,omitempty"`
	Created        []booking.Record  `json:"created"`
}

// Orchestrator issues a batch concurrently and waits for all of it.
type Orchestrator struct {
	creator    Creator
	ledger     Ledger
	logger     *logging.Logger
	metrics    *metrics.BookingMetrics
	doctorName string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLedger records created bookings.
func WithLedger(l Ledger) Option {
	return func(o *Orchestrator) { o.ledger = l }
}

// WithMetrics counts batch outcomes.
func WithMetrics(m *metrics.BookingMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithDefaultDoctorName sets the display name used when neither a roster
// doctor nor a clinic owner is known.
func WithDefaultDoctorName(name string) Option {
	return func(o *Orchestrator) {
		if name != "" {
			o.doctorName = name
		}
	}
}

// NewOrchestrator creates an orchestrator over creator.
func NewOrchestrator(creator Creator, logger *logging.Logger, opts ...Option) *Orchestrator {
	if creator == nil {
		panic("submission: creator is required")
	}
	o := &Orchestrator{
		creator:    creator,
		logger:     logger.Component("submission"),
		doctorName: defaultDoctorName,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type result struct {
	id  string
	err error
}

// Submit validates the request and creates one booking per service. A
// validation error is returned before any backend call; backend failures
// are reported in the Outcome.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (Outcome, error) {
	if err := req.Draft.ValidateForSubmission(req.Contact); err != nil {
		return Outcome{}, err
	}

	batchID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "submission.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.id", batchID),
		attribute.Int("clinic.id", int(req.Draft.ClinicID)),
		attribute.Int("batch.size", len(req.Draft.Services)),
	)

	payloads := req.Draft.Payloads(req.Contact)
	results := make([]result, len(payloads))

	var wg sync.WaitGroup
	for i, p := range payloads {
		wg.Add(1)
		go func(i int, p booking.Payload) {
			defer wg.Done()
			id, err := o.creator.CreateBooking(ctx, p)
			results[i] = result{id: id, err: err}
		}(i, p)
	}
	wg.Wait()

	out := Outcome{
		BatchID:    batchID,
		DoctorName: DisplayDoctorName(req.Roster, req.Draft.DoctorID, o.doctorName),
	}
	var firstErr error
	for i, r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
				out.FailedService = payloads[i].ServiceID
			}
			continue
		}
		rec := payloads[i].Record(r.id)
		rec.Time = req.Draft.Time
		out.Created = append(out.Created, rec)
	}
	out.Count = len(out.Created)
	if len(out.Created) > 0 {
		out.FirstBookingID = out.Created[0].ID
	}

	if firstErr != nil {
		out.Message = booking.UserMessage(firstErr)
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, "booking batch failed")
		o.logger.Warn("booking batch failed",
			"batch_id", batchID,
			"failed_service", out.FailedService,
			"created", out.Count,
			"error", firstErr,
		)
	} else {
		out.Success = true
		o.logger.Info("booking batch created", "batch_id", batchID, "count", out.Count, "first_booking_id", out.FirstBookingID)
	}
	o.metrics.ObserveSubmission(out.Success, out.Count)
	o.record(ctx, batchID, out.Created)
	return out, nil
}

func (o *Orchestrator) record(ctx context.Context, batchID string, created []booking.Record) {
	if o.ledger == nil || len(created) == 0 {
		return
	}
	if err := o.ledger.RecordBatch(ctx, batchID, created); err != nil {
		o.logger.Error("failed to record booking batch", "batch_id", batchID, "error", fmt.Errorf("ledger: %w", err))
	}
}

// DisplayDoctorName picks the name shown on success: the roster doctor, then
// the clinic owner, then fallback.
func DisplayDoctorName(roster *catalog.Roster, doctorID catalog.StaffID, fallback string) string {
	if doctorID > 0 {
		if doc, ok := roster.Doctor(doctorID); ok && doc.Name != "" {
			return doc.Name
		}
	}
	if roster != nil && roster.Clinic.OwnerName != "" {
		return roster.Clinic.OwnerName
	}
	return fallback
}
