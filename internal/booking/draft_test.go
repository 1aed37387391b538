package booking

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/catalog"
)

func TestDateFormatting(t *testing.T) {
	d := Date{Year: 2025, Month: time.March, Day: 5}
	assert.Equal(t, "2025-03-05", d.String())
	assert.Equal(t, "", Date{}.String())

	parsed, err := ParseDate("2025-03-15")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2025, Month: time.March, Day: 15}, parsed)

	_, err = ParseDate("15/03/2025")
	assert.Error(t, err)
}

func TestDateJSON(t *testing.T) {
	encoded, err := json.Marshal(struct {
		D Date `json:"d"`
		Z Date `json:"z"`
	}{D: Date{Year: 2025, Month: 1, Day: 9}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2025-01-09","z":null}`, string(encoded))

	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2024-02-29"`), &d))
	assert.Equal(t, 29, d.Day)
	require.NoError(t, json.Unmarshal([]byte(`null`), &d))
	assert.True(t, d.IsZero())
}

func TestDaysIn(t *testing.T) {
	assert.Equal(t, 29, DaysIn(2024, time.February))
	assert.Equal(t, 28, DaysIn(2025, time.February))
	assert.Equal(t, 31, DaysIn(2025, time.December))
}

func TestDraftServices(t *testing.T) {
	d := Draft{Services: []catalog.ServiceID{7, 3, 5}}
	primary, ok := d.PrimaryService()
	assert.True(t, ok)
	assert.Equal(t, catalog.ServiceID(7), primary)
	assert.Equal(t, []catalog.ServiceID{3, 5}, d.SecondaryServices())

	single := Draft{Services: []catalog.ServiceID{7}}
	assert.Nil(t, single.SecondaryServices())
}

func TestDraftCloneIsDeep(t *testing.T) {
	d := Draft{Services: []catalog.ServiceID{1}, Address: &AddressRef{ID: 2}}
	c := d.Clone()
	c.Services[0] = 9
	c.Address.ID = 9
	assert.Equal(t, catalog.ServiceID(1), d.Services[0])
	assert.Equal(t, 2, d.Address.ID)
}

func TestValidateForSubmission(t *testing.T) {
	contact := Contact{Name: "Mona", Phone: "0100"}
	tests := []struct {
		name    string
		draft   Draft
		contact Contact
		want    error
	}{
		{"blank name", Draft{ClinicID: 1, Services: []catalog.ServiceID{1}}, Contact{Name: "  ", Phone: "1"}, ErrMissingName},
		{"blank phone", Draft{ClinicID: 1, Services: []catalog.ServiceID{1}}, Contact{Name: "Mona"}, ErrMissingPhone},
		{"no clinic", Draft{Services: []catalog.ServiceID{1}}, contact, ErrMissingClinic},
		{"no services", Draft{ClinicID: 1}, contact, ErrNoServices},
		{"minimal valid", Draft{ClinicID: 1, Services: []catalog.ServiceID{1}}, contact, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.draft.ValidateForSubmission(tt.contact)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidation(err))
		})
	}
}
