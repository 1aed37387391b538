package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/availability"
)

// ProbeSlots asks for the open slots of one date. One service is sent as
// service_id; further services follow as service_ids[].
func (c *Client) ProbeSlots(ctx context.Context, q availability.Query) ([]availability.Slot, error) {
	params := url.Values{}
	params.Set("staff_id", strconv.Itoa(int(q.DoctorID)))
	params.Set("date", q.Date.String())
	params.Set("service_id", strconv.Itoa(int(q.PrimaryService())))
	for _, id := range q.SecondaryServices() {
		params.Add("service_ids[]", strconv.Itoa(int(id)))
	}
	path := fmt.Sprintf("/api/clinics/%d/availability?%s", q.ClinicID, params.Encode())

	raw, err := c.doJSON(ctx, "probe_slots", http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("probe slots: %w", err)
	}
	body := unwrap(raw, "data")
	if v, ok := lookup(body, "slots", "times"); ok {
		body = v
	} else if len(bytes.TrimSpace(body)) > 0 && bytes.TrimSpace(body)[0] == '{' {
		// an object without a slot field carries no slots
		return nil, nil
	}
	slots, err := decodeSlots(body)
	if err != nil {
		return nil, fmt.Errorf("probe slots: %w", err)
	}
	return slots, nil
}

// decodeSlots accepts a label->value object (order preserved), a list of
// {label, value} objects, or a list of plain labels.
func decodeSlots(raw json.RawMessage) ([]availability.Slot, error) {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return nil, nil
	}
	switch raw[0] {
	case '{':
		return decodeSlotObject(raw)
	case '[':
		return decodeSlotList(raw)
	default:
		return nil, fmt.Errorf("decode slots: unexpected %q", truncate(raw))
	}
}

func decodeSlotObject(raw json.RawMessage) ([]availability.Slot, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	var slots []availability.Slot
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode slots: %w", err)
		}
		label, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("decode slots: %w", err)
		}
		slots = append(slots, availability.Slot{Label: label, Value: scalarString(value)})
	}
	return slots, nil
}

func decodeSlotList(raw json.RawMessage) ([]availability.Slot, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	slots := make([]availability.Slot, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '{' {
			var obj struct {
				Label json.RawMessage `json:"label"`
				Time  json.RawMessage `json:"time"`
				Value json.RawMessage `json:"value"`
			}
			if err := json.Unmarshal(item, &obj); err != nil {
				return nil, fmt.Errorf("decode slots: %w", err)
			}
			label := scalarString(obj.Label)
			if label == "" {
				label = scalarString(obj.Time)
			}
			value := scalarString(obj.Value)
			if value == "" {
				value = label
			}
			slots = append(slots, availability.Slot{Label: label, Value: value})
			continue
		}
		label := scalarString(item)
		slots = append(slots, availability.Slot{Label: label, Value: label})
	}
	return slots, nil
}

// scalarString renders a JSON string or number as text.
func scalarString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func truncate(b []byte) string {
	s := string(b)
	if clipped := clipRunes(s, 40); clipped != s {
		return clipped + "..."
	}
	return s
}
