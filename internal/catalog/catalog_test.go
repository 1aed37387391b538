package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/pkg/logging"
)

type stubFetcher struct {
	clinicCalls int
	rosterCalls int
	roster      *Roster
	err         error
}

func (s *stubFetcher) ListClinics(context.Context) ([]Clinic, error) {
	s.clinicCalls++
	if s.err != nil {
		return nil, s.err
	}
	return []Clinic{{ID: 1, Name: "Smile Clinic", OwnerName: "Dr Owner"}}, nil
}

func (s *stubFetcher) GetRoster(_ context.Context, id ClinicID) (*Roster, error) {
	s.rosterCalls++
	if s.err != nil {
		return nil, s.err
	}
	if s.roster != nil {
		return s.roster, nil
	}
	return &Roster{
		Services: []Service{{ID: 10, Name: "Whitening", BookingCycle: 1, Staff: NewStaffSet(1, 2)}},
		Staff:    []Staff{{ID: 1, Name: "Dr One"}, {ID: 2, Name: "Dr Two"}},
	}, nil
}

func (s *stubFetcher) ListAddresses(context.Context) ([]Address, error) {
	return []Address{{ID: 3, Address: "12 Nile St", City: "Cairo"}}, nil
}

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, time.Minute), mr
}

func TestRosterIsCachedInRedis(t *testing.T) {
	store, mr := newTestStore(t)
	fetcher := &stubFetcher{}
	cat := New(fetcher, store, logging.Default())
	ctx := context.Background()

	first, err := cat.Roster(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, ClinicID(7), first.Clinic.ID, "clinic id backfilled from request")

	second, err := cat.Roster(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.rosterCalls)
	assert.True(t, second.Services[0].Staff.Has(2), "staff set survives the cache round trip")
	assert.True(t, mr.Exists("catalog:roster:7"))

	mr.FastForward(2 * time.Minute)
	_, err = cat.Roster(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.rosterCalls, "expired entry is refetched")
}

func TestRosterWithoutStore(t *testing.T) {
	fetcher := &stubFetcher{}
	cat := New(fetcher, nil, nil)

	_, err := cat.Roster(context.Background(), 1)
	require.NoError(t, err)
	_, err = cat.Roster(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.rosterCalls)
}

func TestRosterRejectsInvalidClinic(t *testing.T) {
	cat := New(&stubFetcher{}, nil, nil)
	_, err := cat.Roster(context.Background(), 0)
	assert.Error(t, err)
}

func TestRosterFetchErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	cat := New(&stubFetcher{err: boom}, nil, nil)
	_, err := cat.Roster(context.Background(), 3)
	assert.ErrorIs(t, err, boom)
}

func TestClinicsCacheDegradesWhenRedisDown(t *testing.T) {
	store, mr := newTestStore(t)
	fetcher := &stubFetcher{}
	cat := New(fetcher, store, nil)
	mr.Close()

	clinics, err := cat.Clinics(context.Background())
	require.NoError(t, err)
	assert.Len(t, clinics, 1)
	assert.Equal(t, 1, fetcher.clinicCalls)
}

func TestClinicsCached(t *testing.T) {
	store, _ := newTestStore(t)
	fetcher := &stubFetcher{}
	cat := New(fetcher, store, nil)

	for i := 0; i < 3; i++ {
		clinics, err := cat.Clinics(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Dr Owner", clinics[0].OwnerName)
	}
	assert.Equal(t, 1, fetcher.clinicCalls)
}

func TestAddressesAlwaysLive(t *testing.T) {
	cat := New(&stubFetcher{}, nil, nil)
	addresses, err := cat.Addresses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Cairo", addresses[0].City)
}

func TestRosterLookups(t *testing.T) {
	roster := &Roster{
		Services: []Service{{ID: 1, Name: "A"}},
		Staff:    []Staff{{ID: 4, Name: "Dr Four"}},
	}
	svc, ok := roster.Service(1)
	assert.True(t, ok)
	assert.Equal(t, "A", svc.Name)
	_, ok = roster.Service(2)
	assert.False(t, ok)

	doc, ok := roster.Doctor(4)
	assert.True(t, ok)
	assert.Equal(t, "Dr Four", doc.Name)

	var nilRoster *Roster
	_, ok = nilRoster.Doctor(4)
	assert.False(t, ok)
}
