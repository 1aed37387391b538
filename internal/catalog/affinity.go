package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// StaffSet is the canonical set of doctors allowed to perform a service.
// The zero value is an empty set.
type StaffSet map[StaffID]struct{}

// NewStaffSet builds a set from ids, ignoring non-positive ids.
func NewStaffSet(ids ...StaffID) StaffSet {
	set := make(StaffSet, len(ids))
	for _, id := range ids {
		if id > 0 {
			set[id] = struct{}{}
		}
	}
	return set
}

// Has reports membership.
func (s StaffSet) Has(id StaffID) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of doctors in the set.
func (s StaffSet) Len() int { return len(s) }

// IDs returns the members in ascending order.
func (s StaffSet) IDs() []StaffID {
	ids := make([]StaffID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Union returns a new set holding the members of s and other.
func (s StaffSet) Union(other StaffSet) StaffSet {
	out := make(StaffSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted id list.
func (s StaffSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

// UnmarshalJSON accepts every raw affinity shape the backend produces.
func (s *StaffSet) UnmarshalJSON(data []byte) error {
	set, err := NormalizeStaffAffinity(data)
	if err != nil {
		return err
	}
	*s = set
	return nil
}

// AffinityKind tags the shape a raw staff-affinity field arrived in.
type AffinityKind int

const (
	// AffinityAbsent covers null, missing, "" and [].
	AffinityAbsent AffinityKind = iota
	// AffinityDelimited is a string such as "1,2" or "3-7".
	AffinityDelimited
	// AffinityNumber is a single numeric id.
	AffinityNumber
	// AffinityList is an array of ids, id strings or staff objects.
	AffinityList
)

// RawAffinity is the decoded but not yet normalized staff-affinity field.
type RawAffinity struct {
	Kind   AffinityKind
	Text   string
	Number json.Number
	Items  []json.RawMessage
}

// DecodeAffinity classifies a raw staff-affinity value.
func DecodeAffinity(data json.RawMessage) (RawAffinity, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return RawAffinity{Kind: AffinityAbsent}, nil
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return RawAffinity{}, fmt.Errorf("catalog: decode affinity string: %w", err)
		}
		if strings.TrimSpace(text) == "" {
			return RawAffinity{Kind: AffinityAbsent}, nil
		}
		return RawAffinity{Kind: AffinityDelimited, Text: text}, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return RawAffinity{}, fmt.Errorf("catalog: decode affinity list: %w", err)
		}
		if len(items) == 0 {
			return RawAffinity{Kind: AffinityAbsent}, nil
		}
		return RawAffinity{Kind: AffinityList, Items: items}, nil
	case '{':
		// A lone staff object is treated as a one-element list.
		return RawAffinity{Kind: AffinityList, Items: []json.RawMessage{trimmed}}, nil
	default:
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var num json.Number
		if err := dec.Decode(&num); err != nil {
			return RawAffinity{}, fmt.Errorf("catalog: unsupported affinity value %s", truncate(trimmed))
		}
		return RawAffinity{Kind: AffinityNumber, Number: num}, nil
	}
}

// Normalize collapses the raw shape into a StaffSet.
func (r RawAffinity) Normalize() StaffSet {
	set := StaffSet{}
	switch r.Kind {
	case AffinityDelimited:
		for _, id := range parseDelimited(r.Text) {
			set[id] = struct{}{}
		}
	case AffinityNumber:
		if id, ok := numberToID(r.Number); ok {
			set[id] = struct{}{}
		}
	case AffinityList:
		for _, item := range r.Items {
			for id := range normalizeItem(item) {
				set[id] = struct{}{}
			}
		}
	}
	return set
}

// NormalizeStaffAffinity decodes and normalizes a raw staff-affinity value.
// This is the only place the raw representation is interpreted.
func NormalizeStaffAffinity(data json.RawMessage) (StaffSet, error) {
	raw, err := DecodeAffinity(data)
	if err != nil {
		return StaffSet{}, err
	}
	return raw.Normalize(), nil
}

func normalizeItem(item json.RawMessage) StaffSet {
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil
		}
		for _, key := range []string{"id", "staff_id", "doctor_id"} {
			if v, ok := obj[key]; ok {
				return normalizeScalar(v)
			}
		}
		return nil
	}
	return normalizeScalar(trimmed)
}

func normalizeScalar(data json.RawMessage) StaffSet {
	raw, err := DecodeAffinity(data)
	if err != nil || raw.Kind == AffinityList {
		return nil
	}
	return raw.Normalize()
}

func parseDelimited(text string) []StaffID {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '-' || unicode.IsSpace(r)
	})
	ids := make([]StaffID, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n <= 0 {
			continue
		}
		ids = append(ids, StaffID(n))
	}
	return ids
}

func numberToID(num json.Number) (StaffID, bool) {
	if n, err := num.Int64(); err == nil {
		return StaffID(n), n > 0
	}
	f, err := num.Float64()
	if err != nil || f != float64(int64(f)) || f <= 0 {
		return 0, false
	}
	return StaffID(int64(f)), true
}

func truncate(b []byte) string {
	r := []rune(string(b))
	if len(r) > 40 {
		return string(r[:40]) + "..."
	}
	return string(r)
}
