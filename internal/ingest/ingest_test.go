package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/huntstack/internal/migration"
	"github.com/lox/huntstack/internal/models"
	"github.com/lox/huntstack/internal/narrative"
	"github.com/lox/huntstack/internal/store"
)

var now = time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC)

func i64(v int64) *int64 { return &v }

func intp(v int) *int { return &v }

func TestValidateSurveyCount(t *testing.T) {
	tests := []struct {
		name      string
		sc        models.SurveyCount
		wantFlags []string
	}{
		{
			name: "valid count",
			sc:   models.SurveyCount{Count: i64(4200), SurveyDate: now.AddDate(0, 0, -3)},
		},
		{
			name: "null count is allowed",
			sc:   models.SurveyCount{SurveyDate: now.AddDate(0, 0, -3)},
		},
		{
			name:      "negative count",
			sc:        models.SurveyCount{Count: i64(-1), SurveyDate: now},
			wantFlags: []string{FlagNegativeCount},
		},
		{
			name:      "future survey",
			sc:        models.SurveyCount{Count: i64(10), SurveyDate: now.AddDate(0, 0, 1)},
			wantFlags: []string{FlagFutureSurvey},
		},
		{
			name:      "missing date and negative",
			sc:        models.SurveyCount{Count: i64(-5)},
			wantFlags: []string{FlagNegativeCount, FlagMissingDate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantFlags, ValidateSurveyCount(tt.sc, now))
		})
	}
}

func TestValidateSeason(t *testing.T) {
	start := time.Date(2025, 11, 22, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	assert.Empty(t, ValidateSeason(models.Season{StartDate: start, EndDate: end, BagLimit: intp(6)}))
	assert.Equal(t, []string{FlagSeasonInverted}, ValidateSeason(models.Season{StartDate: end, EndDate: start}))
	assert.Equal(t, []string{FlagMissingDate, FlagBagLimitInvalid}, ValidateSeason(models.Season{StartDate: start, BagLimit: intp(-1)}))
}

func TestValidateSeedDefaultIsClean(t *testing.T) {
	data, err := store.LoadSeed("")
	require.NoError(t, err)
	assert.Empty(t, ValidateSeed(data, now))
}

func TestValidateSeedBrokenReferences(t *testing.T) {
	lat, lng := 95.0, -92.0
	data := &store.SeedData{
		States:    []models.State{{Code: "AR"}},
		Species:   []models.Species{{Slug: "mallard"}},
		Locations: []models.Location{{ID: "holla", StateCode: "ZZ", Lat: &lat, Lng: &lng}},
		Seasons: []models.Season{{
			StateCode: "AR", SpeciesSlug: "teal", Year: 2025,
			StartDate: now, EndDate: now.AddDate(0, 1, 0),
		}},
		SurveyCounts: []models.SurveyCount{{
			LocationID: "nowhere", SpeciesSlug: "mallard", SurveyDate: now, Count: i64(10),
		}},
	}

	var got []string
	for _, issue := range ValidateSeed(data, now) {
		got = append(got, issue.String())
	}
	assert.Equal(t, []string{
		"location holla: unknown_state",
		"location holla: coordinate_out_of_range",
		"season AR/teal/2025: unknown_species",
		"survey_count nowhere/mallard/2025-12-01: unknown_location",
	}, got)
}

type fakeWarmer struct {
	mu     sync.Mutex
	calls  int
	states []string
	err    error
}

func (f *fakeWarmer) PushFactors(ctx context.Context, states []string) (*migration.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.states = states
	if f.err != nil {
		return nil, f.err
	}
	return &migration.Report{PushFactors: []models.StatePushFactor{{State: "AR", PushScore: 2}}, OverallPushScore: 2}, nil
}

func (f *fakeWarmer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRefresher struct {
	mu      sync.Mutex
	enabled bool
	states  []string
	fail    string
}

func (f *fakeRefresher) Enabled() bool { return f.enabled }

func (f *fakeRefresher) Refresh(ctx context.Context, state string) (*narrative.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
	if state == f.fail {
		return nil, errors.New("quota exceeded")
	}
	return &narrative.Summary{State: state}, nil
}

func (f *fakeRefresher) refreshed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.states...)
}

func TestSchedulerWarmsOnStartAndTick(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	warmer := &fakeWarmer{}
	summaries := &fakeRefresher{enabled: true, fail: "MO"}

	s := NewScheduler(warmer, summaries, SchedulerOptions{
		States:          []string{"mo", "AR"},
		WarmInterval:    10 * time.Minute,
		SummaryInterval: time.Hour,
		Clock:           clock,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	assert.Equal(t, 1, warmer.count())
	assert.Equal(t, []string{"AR", "MO"}, warmer.states)
	assert.Equal(t, []string{"AR", "MO"}, summaries.refreshed())

	clock.Advance(10 * time.Minute)
	require.Eventually(t, func() bool { return warmer.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Len(t, summaries.refreshed(), 2)

	clock.Advance(50 * time.Minute)
	require.Eventually(t, func() bool { return len(summaries.refreshed()) == 4 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerSkipsDisabledSummaries(t *testing.T) {
	warmer := &fakeWarmer{err: errors.New("weather down")}
	summaries := &fakeRefresher{}
	s := NewScheduler(warmer, summaries, SchedulerOptions{States: []string{"AR"}, Clock: clockwork.NewFakeClock()}, nil)

	s.warmPushFactors(context.Background())
	s.refreshSummaries(context.Background())

	assert.Equal(t, 1, warmer.count())
	assert.Empty(t, summaries.refreshed())
}

func TestSchedulerDefaults(t *testing.T) {
	s := NewScheduler(&fakeWarmer{}, nil, SchedulerOptions{}, nil)
	assert.Equal(t, DefaultWarmInterval, s.warmInterval)
	assert.Equal(t, DefaultSummaryInterval, s.summaryInterval)

	s.refreshSummaries(context.Background())
}
