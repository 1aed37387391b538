// Package availability resolves which calendar days and time slots can be
// booked for a clinic, doctor and service selection.
package availability

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/booking"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/catalog"
)

var (
	// ErrNotResolvable is returned when the selection lacks a clinic, a
	// doctor or a service. No probe is issued.
	ErrNotResolvable = errors.New("availability: selection needs clinic, doctor and services")

	// ErrSuperseded is returned by a resolution that a newer one replaced.
	ErrSuperseded = errors.New("availability: resolution superseded")

	// ErrInvalidMonth is returned for out of range month/year values.
	ErrInvalidMonth = errors.New("availability: invalid month")
)

// Slot is a bookable time. Value is the opaque token the backend needs to
// book it; Label is what the user sees.
type Slot struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Query is one availability probe for one date.
type Query struct {
	ClinicID catalog.ClinicID
	DoctorID catalog.StaffID
	Date     booking.Date
	Services []catalog.ServiceID
}

// PrimaryService is sent as the backend's service id.
func (q Query) PrimaryService() catalog.ServiceID {
	if len(q.Services) == 0 {
		return 0
	}
	return q.Services[0]
}

// SecondaryServices are sent as the backend's secondary service list.
func (q Query) SecondaryServices() []catalog.ServiceID {
	if len(q.Services) < 2 {
		return nil
	}
	return q.Services[1:]
}

// Prober asks the backend for the slots of one date.
type Prober interface {
	ProbeSlots(ctx context.Context, q Query) ([]Slot, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, q Query) ([]Slot, error)

// ProbeSlots calls f.
func (f ProberFunc) ProbeSlots(ctx context.Context, q Query) ([]Slot, error) {
	return f(ctx, q)
}

// Key identifies the selection an availability map was computed for.
type Key struct {
	ClinicID catalog.ClinicID `json:"clinic_id"`
	DoctorID catalog.StaffID  `json:"doctor_id"`
	Services string           `json:"services"`
}

// KeyOf derives the key of a draft. Services are sorted so selection order
// does not change the key.
func KeyOf(d booking.Draft) Key {
	ids := catalog.SortServiceIDs(d.Services)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(int(id))
	}
	return Key{ClinicID: d.ClinicID, DoctorID: d.DoctorID, Services: strings.Join(parts, ",")}
}

// Resolvable reports whether the key satisfies the resolution precondition.
func (k Key) Resolvable() bool {
	return k.ClinicID > 0 && k.DoctorID > 0 && k.Services != ""
}

// DayMap is an immutable snapshot of day-level availability for one key and
// month. Days that have not settled are unavailable.
type DayMap struct {
	key     Key
	year    int
	month   time.Month
	days    map[int]bool
	pending int
}

func newDayMap(key Key, year int, month time.Month, pending int) *DayMap {
	return &DayMap{key: key, year: year, month: month, days: map[int]bool{}, pending: pending}
}

// with returns a copy of m with day settled.
func (m *DayMap) with(day int, available bool) *DayMap {
	next := &DayMap{key: m.key, year: m.year, month: m.month, pending: m.pending, days: make(map[int]bool, len(m.days)+1)}
	for d, ok := range m.days {
		next.days[d] = ok
	}
	if _, seen := next.days[day]; !seen && next.pending > 0 {
		next.pending--
	}
	next.days[day] = available
	return next
}

// Key returns the selection key.
func (m *DayMap) Key() Key {
	if m == nil {
		return Key{}
	}
	return m.key
}

// Matches reports whether the map is valid for key and month.
func (m *DayMap) Matches(key Key, year int, month time.Month) bool {
	return m != nil && m.key == key && m.year == year && m.month == month
}

// Available reports whether day has at least one open slot. Unknown and
// unsettled days are unavailable.
func (m *DayMap) Available(day int) bool {
	if m == nil {
		return false
	}
	return m.days[day]
}

// Settled reports whether the probe for day has completed.
func (m *DayMap) Settled(day int) bool {
	if m == nil {
		return false
	}
	_, ok := m.days[day]
	return ok
}

// Complete reports whether every candidate day has settled.
func (m *DayMap) Complete() bool {
	return m != nil && m.pending == 0
}

// AvailableDays returns the available days in ascending order.
func (m *DayMap) AvailableDays() []int {
	if m == nil {
		return nil
	}
	var out []int
	for d := 1; d <= 31; d++ {
		if m.days[d] {
			out = append(out, d)
		}
	}
	return out
}

// MarshalJSON renders the snapshot for API consumers.
func (m *DayMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	return json.Marshal(struct {
		Key      Key          `json:"key"`
		Year     int          `json:"year"`
		Month    int          `json:"month"`
		Days     map[int]bool `json:"days"`
		Pending  int          `json:"pending"`
		Complete bool         `json:"complete"`
	}{m.key, m.year, int(m.month), m.days, m.pending, m.Complete()})
}

// SlotMap is an immutable snapshot of the slots of one date.
type SlotMap struct {
	key   Key
	date  booking.Date
	slots []Slot
}

// Matches reports whether the map is valid for key and date.
func (m *SlotMap) Matches(key Key, date booking.Date) bool {
	return m != nil && m.key == key && m.date == date
}

// Date returns the date the slots belong to.
func (m *SlotMap) Date() booking.Date {
	if m == nil {
		return booking.Date{}
	}
	return m.date
}

// Lookup returns the slot value for a label.
func (m *SlotMap) Lookup(label string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, s := range m.slots {
		if s.Label == label {
			return s.Value, true
		}
	}
	return "", false
}

// Slots returns the slots in backend order.
func (m *SlotMap) Slots() []Slot {
	if m == nil {
		return nil
	}
	return append([]Slot(nil), m.slots...)
}

// MarshalJSON renders the snapshot for API consumers.
func (m *SlotMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	slots := m.slots
	if slots == nil {
		slots = []Slot{}
	}
	return json.Marshal(struct {
		Key   Key          `json:"key"`
		Date  booking.Date `json:"date"`
		Slots []Slot       `json:"slots"`
	}{m.key, m.date, slots})
}
