// Package wizard drives the booking flow: clinic, services, doctor, address,
// date and time, review and submission.
package wizard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/availability"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/booking"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/catalog"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/compat"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/submission"
)

// State is a wizard step.
type State string

const (
	StateClinicSelect   State = "clinic_select"
	StateServiceSelect  State = "service_select"
	StateDoctorSelect   State = "doctor_select"
	StateAddressSelect  State = "address_select"
	StateDateTimeSelect State = "datetime_select"
	StateReview         State = "review"
	StateSubmitting     State = "submitting"
	StateSuccess        State = "success"
	StateFailed         State = "failed"
)

var (
	ErrInvalidTransition   = errors.New("wizard: transition not allowed from current step")
	ErrUnknownService      = errors.New("wizard: service is not offered by this clinic")
	ErrIncompatibleService = errors.New("wizard: selected doctor does not perform this service")
	ErrUnknownDoctor       = errors.New("wizard: doctor is not on this clinic's roster")
	ErrIncompatibleDoctor  = errors.New("wizard: doctor cannot perform the selected services")
	ErrDayUnavailable      = errors.New("wizard: day is not available")
	ErrUnknownSlot         = errors.New("wizard: time slot is not available")
	ErrNoClinic            = errors.New("wizard: no clinic selected")
)

// Summary is what remains after a successful submission.
type Summary struct {
	BatchID        string `json:"batch_id"`
	DoctorName     string `json:"doctor_name"`
	FirstBookingID string `json:"first_booking_id"`
	Count          int    `json:"count"`
}

// ToggleResult reports a service toggle. RedirectURL is set instead of a
// selection change when the service cannot be booked online.
type ToggleResult struct {
	Selected    bool   `json:"selected"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// Machine is the wizard state machine. It owns the draft; every mutation
// goes through a transition method. It is not safe for concurrent use.
type Machine struct {
	state       State
	draft       booking.Draft
	contact     booking.Contact
	roster      *catalog.Roster
	year        int
	month       time.Month
	summary     *Summary
	failure     string
	contactBase string
}

// NewMachine returns a machine at clinic selection showing the month of now.
func NewMachine(contactBase string, now time.Time) *Machine {
	m := &Machine{contactBase: contactBase}
	m.reset(now)
	return m
}

func (m *Machine) reset(now time.Time) {
	m.state = StateClinicSelect
	m.draft = booking.Draft{}
	m.contact = booking.Contact{}
	m.roster = nil
	m.year, m.month = now.Year(), now.Month()
	m.summary = nil
	m.failure = ""
}

// Reset returns the machine to a fresh start.
func (m *Machine) Reset(now time.Time) { m.reset(now) }

// State returns the current step.
func (m *Machine) State() State { return m.state }

// Draft returns a copy of the draft.
func (m *Machine) Draft() booking.Draft { return m.draft.Clone() }

// Contact returns the contact details.
func (m *Machine) Contact() booking.Contact { return m.contact }

// Roster returns the roster of the selected clinic.
func (m *Machine) Roster() *catalog.Roster { return m.roster }

// Month returns the displayed month.
func (m *Machine) Month() (int, time.Month) { return m.year, m.month }

// Summary returns the success summary, if any.
func (m *Machine) Summary() *Summary { return m.summary }

// Failure returns the last submission failure message.
func (m *Machine) Failure() string { return m.failure }

// Filter returns the selectable doctors and services for the draft.
func (m *Machine) Filter() compat.Result {
	return compat.Filter(m.roster, m.draft.Services, m.draft.DoctorID)
}

func (m *Machine) editable() bool {
	switch m.state {
	case StateSubmitting, StateSuccess:
		return false
	}
	return true
}

func (m *Machine) in(states ...State) bool {
	for _, s := range states {
		if m.state == s {
			return true
		}
	}
	return false
}

// SelectClinic starts over with the given clinic's roster.
func (m *Machine) SelectClinic(roster *catalog.Roster) error {
	if !m.editable() {
		return ErrInvalidTransition
	}
	if roster == nil || roster.Clinic.ID <= 0 {
		return ErrNoClinic
	}
	m.roster = roster
	m.draft = booking.Draft{ClinicID: roster.Clinic.ID}
	m.failure = ""
	m.state = StateServiceSelect
	return nil
}

// ToggleService adds or removes a service. Services that cannot be booked
// online leave the draft alone and return a contact link.
func (m *Machine) ToggleService(id catalog.ServiceID) (ToggleResult, error) {
	if m.state != StateServiceSelect {
		return ToggleResult{}, ErrInvalidTransition
	}
	svc, ok := m.roster.Service(id)
	if !ok {
		return ToggleResult{}, ErrUnknownService
	}
	if !svc.DirectlyBookable() {
		return ToggleResult{
			Selected:    m.draft.HasService(id),
			RedirectURL: compat.ContactLink(m.contactBase, m.roster.Clinic, svc),
		}, nil
	}

	if m.draft.HasService(id) {
		kept := m.draft.Services[:0:0]
		for _, s := range m.draft.Services {
			if s != id {
				kept = append(kept, s)
			}
		}
		m.draft.Services = kept
		m.draft.ClearSchedule()
		return ToggleResult{Selected: false}, nil
	}
	if m.draft.HasDoctor() && !svc.Staff.Has(m.draft.DoctorID) {
		return ToggleResult{}, ErrIncompatibleService
	}
	m.draft.Services = append(m.draft.Services, id)
	m.draft.ClearSchedule()
	return ToggleResult{Selected: true}, nil
}

// SelectDoctor sets or clears (id 0) the doctor. On the service step this
// also clears the services; on later steps the doctor must be compatible
// with the selected services.
func (m *Machine) SelectDoctor(id catalog.StaffID) error {
	if !m.editable() || m.state == StateClinicSelect {
		return ErrInvalidTransition
	}
	if id == m.draft.DoctorID {
		return nil
	}
	if id > 0 {
		if _, ok := m.roster.Doctor(id); !ok {
			return ErrUnknownDoctor
		}
	}
	if m.state == StateServiceSelect {
		m.draft.Services = nil
	} else if !compat.Compatible(m.roster.Services, m.draft.Services, id) {
		return ErrIncompatibleDoctor
	}
	m.draft.DoctorID = id
	m.draft.ClearSchedule()
	return nil
}

// SelectAddress sets the address, or clears it when addr is nil.
func (m *Machine) SelectAddress(addr *booking.AddressRef) error {
	if !m.in(StateAddressSelect, StateDateTimeSelect, StateReview, StateFailed) {
		return ErrInvalidTransition
	}
	if addr == nil {
		m.draft.Address = nil
		return nil
	}
	a := *addr
	m.draft.Address = &a
	return nil
}

// SetMonth changes the displayed month. A chosen date is kept.
func (m *Machine) SetMonth(year int, month time.Month) error {
	if !m.in(StateDateTimeSelect, StateReview, StateFailed) {
		return ErrInvalidTransition
	}
	if year <= 0 || month < time.January || month > time.December {
		return availability.ErrInvalidMonth
	}
	m.year, m.month = year, month
	return nil
}

// SelectDate picks a day. It must be marked available in days for the
// draft's current selection.
func (m *Machine) SelectDate(date booking.Date, days *availability.DayMap) error {
	if !m.in(StateDateTimeSelect, StateReview, StateFailed) {
		return ErrInvalidTransition
	}
	key := availability.KeyOf(m.draft)
	if !days.Matches(key, date.Year, date.Month) || !days.Available(date.Day) {
		return ErrDayUnavailable
	}
	m.draft.Date = date
	m.draft.Time = ""
	m.draft.SlotValue = ""
	return nil
}

// SelectTime picks a slot by label from the slots of the chosen date.
func (m *Machine) SelectTime(label string, slots *availability.SlotMap) error {
	if !m.in(StateDateTimeSelect, StateReview, StateFailed) {
		return ErrInvalidTransition
	}
	if m.draft.Date.IsZero() || !slots.Matches(availability.KeyOf(m.draft), m.draft.Date) {
		return ErrUnknownSlot
	}
	value, ok := slots.Lookup(label)
	if !ok {
		return ErrUnknownSlot
	}
	m.draft.Time = label
	m.draft.SlotValue = value
	return nil
}

// SetContact records who the booking is for.
func (m *Machine) SetContact(c booking.Contact) error {
	if !m.editable() {
		return ErrInvalidTransition
	}
	m.contact = booking.Contact{Name: strings.TrimSpace(c.Name), Phone: strings.TrimSpace(c.Phone)}
	return nil
}

// Advance moves to the next step when its guard holds.
func (m *Machine) Advance() error {
	switch m.state {
	case StateClinicSelect:
		if m.draft.ClinicID <= 0 {
			return ErrNoClinic
		}
		m.state = StateServiceSelect
	case StateServiceSelect:
		if !m.draft.HasServices() {
			return booking.ErrNoServices
		}
		m.state = StateDoctorSelect
	case StateDoctorSelect:
		m.state = StateAddressSelect
	case StateAddressSelect:
		if !m.draft.HasServices() {
			return booking.ErrNoServices
		}
		m.state = StateDateTimeSelect
	case StateDateTimeSelect:
		m.state = StateReview
	default:
		return fmt.Errorf("%w: advance from %s", ErrInvalidTransition, m.state)
	}
	return nil
}

// Back retreats one step.
func (m *Machine) Back() error {
	switch m.state {
	case StateServiceSelect:
		m.state = StateClinicSelect
	case StateDoctorSelect:
		m.state = StateServiceSelect
	case StateAddressSelect:
		m.state = StateDoctorSelect
	case StateDateTimeSelect:
		m.state = StateAddressSelect
	case StateReview:
		m.state = StateDateTimeSelect
	case StateFailed:
		m.state = StateReview
	default:
		return fmt.Errorf("%w: back from %s", ErrInvalidTransition, m.state)
	}
	return nil
}

// BeginSubmit validates the draft and enters submitting. It returns the
// request to hand to the orchestrator.
func (m *Machine) BeginSubmit() (submission.Request, error) {
	if !m.in(StateReview, StateFailed) {
		return submission.Request{}, ErrInvalidTransition
	}
	if err := m.draft.ValidateForSubmission(m.contact); err != nil {
		return submission.Request{}, err
	}
	m.state = StateSubmitting
	m.failure = ""
	return submission.Request{Draft: m.draft.Clone(), Contact: m.contact, Roster: m.roster}, nil
}

// CompleteSubmit settles a submission. Success clears the draft and keeps
// only the summary; failure keeps the draft for a retry.
func (m *Machine) CompleteSubmit(out submission.Outcome) error {
	if m.state != StateSubmitting {
		return ErrInvalidTransition
	}
	if !out.Success {
		m.failure = out.Message
		m.state = StateFailed
		return nil
	}
	m.summary = &Summary{
		BatchID:        out.BatchID,
		DoctorName:     out.DoctorName,
		FirstBookingID: out.FirstBookingID,
		Count:          out.Count,
	}
	m.draft = booking.Draft{}
	m.state = StateSuccess
	return nil
}

// AbortSubmit returns from submitting to failed with msg, keeping the draft.
func (m *Machine) AbortSubmit(msg string) {
	if m.state == StateSubmitting {
		m.failure = msg
		m.state = StateFailed
	}
}
