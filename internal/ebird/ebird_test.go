package ebird

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/huntstack/internal/models"
)

func count(n int) *int { return &n }

func TestDefaultAliases(t *testing.T) {
	a := DefaultAliases()

	m, ok := a.Lookup("MALLAR3")
	require.True(t, ok)
	assert.Equal(t, "mallard", m.Slug)
	assert.Equal(t, "Mallard", m.Name)

	hybrid, ok := a.Lookup("x00017")
	require.True(t, ok)
	assert.Equal(t, "snow-goose", hybrid.Slug)
	assert.Equal(t, "Snow Goose", hybrid.Name, "hybrids take the representative species name")

	_, ok = a.Lookup("amecro")
	assert.False(t, ok)
}

func TestLoadAliasesFallsBackToSlugName(t *testing.T) {
	a, err := LoadAliases([]byte(`- {code: rinduc, slug: ring-necked-duck}`))
	require.NoError(t, err)
	assert.Equal(t, "Ring Necked Duck", a["rinduc"].Name)

	_, err = LoadAliases([]byte(`- {code: rinduc}`))
	require.Error(t, err)
}

func TestAggregate(t *testing.T) {
	records := []Record{
		{SpeciesCode: "mallar3", Count: count(40), Date: "2025-11-18", Valid: true},
		{SpeciesCode: "mallar3", Count: count(25), Date: "2025-11-21", Valid: true},
		{SpeciesCode: "x00004", Count: count(2), Date: "2025-11-19", Valid: true},
		{SpeciesCode: "mallar3", Date: "2025-11-22", Valid: true},
		{SpeciesCode: "mallar3", Count: count(1000), Date: "2025-11-23", Valid: false},
		{SpeciesCode: "snogoo", Count: count(300), Date: "2025-11-20", Valid: true},
		{SpeciesCode: "gadwal", Count: count(4), Date: "2025-11-20", Valid: true},
		{SpeciesCode: "amecro", Count: count(90), Date: "2025-11-20", Valid: true},
	}

	got := Aggregate(Locality{ID: "holla-bend-nwr", Name: "Holla Bend"}, records, DefaultAliases())
	require.Len(t, got, 2)

	assert.Equal(t, "snow-goose", got[0].SpeciesSlug)
	assert.Equal(t, 300, got[0].Count)

	mallard := got[1]
	assert.Equal(t, "mallard", mallard.SpeciesSlug)
	assert.Equal(t, 67, mallard.Count, "hybrid code is folded in; presence-only and invalid records skipped")
	assert.Equal(t, "2025-11-21", mallard.SurveyDate)
	assert.Equal(t, "holla-bend-nwr", mallard.LocationID)
	assert.Equal(t, Source, mallard.Source)
	assert.Equal(t, SurveyType, mallard.SurveyType)
	assert.True(t, mallard.IsCommunity)
	assert.Nil(t, mallard.PreviousCount)
}

func TestAggregateThreshold(t *testing.T) {
	records := []Record{
		{SpeciesCode: "gadwal", Count: count(4), Date: "2025-11-20", Valid: true},
		{SpeciesCode: "canvas", Count: count(5), Date: "2025-11-20", Valid: true},
	}
	got := Aggregate(Locality{ID: "x"}, records, DefaultAliases())
	require.Len(t, got, 1)
	assert.Equal(t, "canvasback", got[0].SpeciesSlug)
}

func TestAggregateEmpty(t *testing.T) {
	got := Aggregate(Locality{ID: "x"}, nil, DefaultAliases())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

const recentBody = `[
  {"speciesCode": "mallar3", "comName": "Mallard", "howMany": 40, "obsDt": "2025-11-21 07:45", "obsValid": true},
  {"speciesCode": "snogoo", "comName": "Snow Goose", "obsDt": "2025-11-20", "obsValid": true}
]`

func noWait() backoff.BackOff { return &backoff.ZeroBackOff{} }

func TestClientRecentObservations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/data/obs/geo/recent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-eBirdApiToken"))
		assert.Equal(t, "35.1400", r.URL.Query().Get("lat"))
		assert.Equal(t, "25", r.URL.Query().Get("dist"))
		assert.Equal(t, "14", r.URL.Query().Get("back"))
		w.Write([]byte(recentBody))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, APIKey: "secret", NewBackOff: noWait})
	records, err := c.RecentObservations(context.Background(), 35.14, -93.05, 25, 14)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "2025-11-21", records[0].Date)
	require.NotNil(t, records[0].Count)
	assert.Equal(t, 40, *records[0].Count)
	assert.Nil(t, records[1].Count)
	assert.True(t, records[1].Valid)
}

func TestClientRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, NewBackOff: noWait})
	records, err := c.RecentObservations(context.Background(), 1, 2, 25, 14)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, NewBackOff: noWait})
	_, err := c.RecentObservations(context.Background(), 1, 2, 25, 14)
	require.Error(t, err)
	assert.Equal(t, int32(MaxAttempts), calls.Load())
}

func TestClientDoesNotRetryOtherErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad token", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, NewBackOff: noWait})
	_, err := c.RecentObservations(context.Background(), 1, 2, 25, 14)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

type fakeObserver struct {
	calls   int
	records []Record
	err     error
}

func (f *fakeObserver) RecentObservations(ctx context.Context, lat, lng float64, radiusKM, daysBack int) ([]Record, error) {
	f.calls++
	return f.records, f.err
}

func refuge() models.Location {
	lat, lng := 35.14, -93.05
	return models.Location{ID: "holla-bend-nwr", Name: "Holla Bend", Lat: &lat, Lng: &lng}
}

func TestServiceDisabled(t *testing.T) {
	s := NewService(nil, nil, ServiceOptions{}, nil)
	assert.False(t, s.Enabled())

	obs, err := s.Observations(context.Background(), refuge())
	assert.ErrorIs(t, err, ErrDisabled)
	assert.NotNil(t, obs)
	assert.Empty(t, obs)
}

func TestServiceCachesAggregates(t *testing.T) {
	clock := clockwork.NewFakeClock()
	f := &fakeObserver{records: []Record{{SpeciesCode: "snogoo", Count: count(50), Date: "2025-11-20", Valid: true}}}
	s := NewService(f, nil, ServiceOptions{Clock: clock, CacheTTL: time.Hour}, nil)

	for i := 0; i < 2; i++ {
		obs, err := s.Observations(context.Background(), refuge())
		require.NoError(t, err)
		require.Len(t, obs, 1)
		assert.Equal(t, "Holla Bend", obs[0].LocationName)
	}
	assert.Equal(t, 1, f.calls)

	clock.Advance(time.Hour)
	_, err := s.Observations(context.Background(), refuge())
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)
}

func TestServiceUpstreamFailureIsEmpty(t *testing.T) {
	f := &fakeObserver{err: errors.New("boom")}
	s := NewService(f, nil, ServiceOptions{}, nil)

	obs, err := s.Observations(context.Background(), refuge())
	require.NoError(t, err)
	assert.Empty(t, obs)

	_, _ = s.Observations(context.Background(), refuge())
	assert.Equal(t, 2, f.calls, "failures are not cached")
}

func TestServiceLocationWithoutCoordinates(t *testing.T) {
	f := &fakeObserver{}
	s := NewService(f, nil, ServiceOptions{}, nil)

	obs, err := s.Observations(context.Background(), models.Location{ID: "ar-statewide-mwi"})
	require.NoError(t, err)
	assert.Empty(t, obs)
	assert.Zero(t, f.calls)
}
