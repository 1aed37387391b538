package wizard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/availability"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/booking"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/catalog"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/identity"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/submission"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/pkg/logging"
)

// Submitter runs a booking batch.
type Submitter interface {
	Submit(ctx context.Context, req submission.Request) (submission.Outcome, error)
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Catalog     *catalog.Catalog
	Submitter   Submitter
	NewResolver func() *availability.Resolver
	ContactBase string
	Logger      *logging.Logger
	Now         func() time.Time
}

// View is a read-only snapshot of a session for API consumers.
type View struct {
	ID       string                `json:"id"`
	State    State                 `json:"state"`
	Draft    booking.Draft         `json:"draft"`
	Contact  booking.Contact       `json:"contact"`
	Clinic   *catalog.Clinic       `json:"clinic,omitempty"`
	Doctors  []catalog.Staff       `json:"doctors"`
	Services []catalog.Service     `json:"services"`
	Year     int                   `json:"year"`
	Month    int                   `json:"month"`
	Days     *availability.DayMap  `json:"days"`
	Slots    *availability.SlotMap `json:"slots"`
	Summary  *Summary              `json:"summary,omitempty"`
	Failure  string                `json:"failure,omitempty"`
}

// Session is one user's wizard. Availability work runs on the session's own
// context so it outlives the request that triggered it.
type Session struct {
	id       string
	deps     Deps
	logger   *logging.Logger
	resolver *availability.Resolver
	ctx      context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	machine *Machine
}

// NewSession creates a session. The user identity in ctx is carried over to
// background work; ctx's cancellation is not.
func NewSession(ctx context.Context, id string, deps Deps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	sctx, cancel := context.WithCancel(identity.Detach(ctx))
	return &Session{
		id:       id,
		deps:     deps,
		logger:   &logging.Logger{Logger: deps.Logger.Component("wizard").With("session_id", id)},
		resolver: deps.NewResolver(),
		ctx:      sctx,
		cancel:   cancel,
		machine:  NewMachine(deps.ContactBase, deps.Now()),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Resolver exposes the session's availability resolver for streaming.
func (s *Session) Resolver() *availability.Resolver { return s.resolver }

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	m := s.machine
	filtered := m.Filter()
	year, month := m.Month()
	v := View{
		ID:       s.id,
		State:    m.State(),
		Draft:    m.Draft(),
		Contact:  m.Contact(),
		Doctors:  filtered.Doctors,
		Services: filtered.Services,
		Year:     year,
		Month:    int(month),
		Summary:  m.Summary(),
		Failure:  m.Failure(),
	}
	if r := m.Roster(); r != nil {
		clinic := r.Clinic
		v.Clinic = &clinic
	}
	key := availability.KeyOf(v.Draft)
	if days := s.resolver.Days(); days.Matches(key, year, month) {
		v.Days = days
	}
	if slots := s.resolver.Slots(); slots.Matches(key, v.Draft.Date) {
		v.Slots = slots
	}
	return v
}

// SelectClinic loads the clinic roster and starts over.
func (s *Session) SelectClinic(ctx context.Context, id catalog.ClinicID) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.machine.editable() {
		return s.viewLocked(), ErrInvalidTransition
	}
	roster, err := s.deps.Catalog.Roster(ctx, id)
	if err != nil {
		return s.viewLocked(), err
	}
	if err := s.machine.SelectClinic(roster); err != nil {
		return s.viewLocked(), err
	}
	s.resolver.Reset()
	return s.viewLocked(), nil
}

// ToggleService flips a service in or out of the selection.
func (s *Session) ToggleService(id catalog.ServiceID) (ToggleResult, View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := availability.KeyOf(s.machine.Draft())
	res, err := s.machine.ToggleService(id)
	if err != nil {
		return res, s.viewLocked(), err
	}
	s.selectionChangedLocked(before)
	return res, s.viewLocked(), nil
}

// SelectDoctor sets or clears the doctor.
func (s *Session) SelectDoctor(id catalog.StaffID) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := availability.KeyOf(s.machine.Draft())
	if err := s.machine.SelectDoctor(id); err != nil {
		return s.viewLocked(), err
	}
	s.selectionChangedLocked(before)
	return s.viewLocked(), nil
}

// SelectAddress sets or clears the address.
func (s *Session) SelectAddress(addr *booking.AddressRef) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.machine.SelectAddress(addr)
	return s.viewLocked(), err
}

// SetMonth changes the displayed month and re-resolves its days.
func (s *Session) SetMonth(year int, month time.Month) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.SetMonth(year, month); err != nil {
		return s.viewLocked(), err
	}
	s.resolveDaysLocked()
	return s.viewLocked(), nil
}

// SelectDate picks an available day and starts resolving its slots.
func (s *Session) SelectDate(date booking.Date) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.SelectDate(date, s.resolver.Days()); err != nil {
		return s.viewLocked(), err
	}
	if err := s.resolver.StartSlots(s.ctx, s.machine.Draft(), date); err != nil {
		s.logger.Debug("slot resolution skipped", "error", err)
	}
	return s.viewLocked(), nil
}

// SelectTime picks a slot of the chosen date.
func (s *Session) SelectTime(label string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.machine.SelectTime(label, s.resolver.Slots())
	return s.viewLocked(), err
}

// SetContact records the booking contact.
func (s *Session) SetContact(c booking.Contact) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.machine.SetContact(c)
	return s.viewLocked(), err
}

// Advance moves forward one step. Entering date and time selection starts
// day resolution for the displayed month.
func (s *Session) Advance() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.machine.Advance(); err != nil {
		return s.viewLocked(), err
	}
	if s.machine.State() == StateDateTimeSelect {
		year, month := s.machine.Month()
		if days := s.resolver.Days(); !days.Matches(availability.KeyOf(s.machine.Draft()), year, month) {
			s.resolveDaysLocked()
		}
	}
	return s.viewLocked(), nil
}

// Back retreats one step.
func (s *Session) Back() (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.machine.Back()
	return s.viewLocked(), err
}

// Submit records the contact, runs the batch and settles the machine. The
// session lock is not held while the batch is in flight; the machine's
// submitting state rejects edits meanwhile.
func (s *Session) Submit(ctx context.Context, contact booking.Contact) (submission.Outcome, View, error) {
	s.mu.Lock()
	if err := s.machine.SetContact(contact); err != nil {
		defer s.mu.Unlock()
		return submission.Outcome{}, s.viewLocked(), err
	}
	req, err := s.machine.BeginSubmit()
	if err != nil {
		defer s.mu.Unlock()
		return submission.Outcome{}, s.viewLocked(), err
	}
	s.mu.Unlock()

	out, err := s.deps.Submitter.Submit(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.machine.AbortSubmit(booking.UserMessage(err))
		return out, s.viewLocked(), err
	}
	if cerr := s.machine.CompleteSubmit(out); cerr != nil {
		return out, s.viewLocked(), cerr
	}
	if out.Success {
		s.resolver.Reset()
	}
	return out, s.viewLocked(), nil
}

// Reset discards the draft and any availability.
func (s *Session) Reset() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine.State() != StateSubmitting {
		s.machine.Reset(s.deps.Now())
		s.resolver.Reset()
	}
	return s.viewLocked()
}

// Wait blocks until in-flight availability work settles.
func (s *Session) Wait() { s.resolver.Wait() }

// Done is closed once the session has been closed.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Close cancels background work.
func (s *Session) Close() {
	s.cancel()
	s.resolver.Reset()
}

// selectionChangedLocked drops slot availability and re-resolves days when
// the availability key moved.
func (s *Session) selectionChangedLocked(before availability.Key) {
	if availability.KeyOf(s.machine.Draft()) == before {
		return
	}
	s.resolver.ClearSlots()
	s.resolveDaysLocked()
}

func (s *Session) resolveDaysLocked() {
	year, month := s.machine.Month()
	err := s.resolver.StartDays(s.ctx, s.machine.Draft(), year, month)
	if err != nil && !errors.Is(err, availability.ErrNotResolvable) {
		s.logger.Warn("day resolution not started", "error", err)
	}
}
