package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/huntstack/internal/models"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func setupSeededStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s := setupTestStore(t)
	data, err := LoadSeed("")
	require.NoError(t, err)
	require.NoError(t, Seed(context.Background(), s, data))
	return s
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func i64(v int64) *int64 { return &v }

func TestMigrateIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Migrate(ctx))

	version, err := s.MigrationVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

func TestUpsertStateUpdates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	lat, lng := 34.0, -92.0
	require.NoError(t, s.UpsertState(ctx, models.State{Code: "AR", Name: "Ark", Flyway: "mississippi"}))
	require.NoError(t, s.UpsertState(ctx, models.State{Code: "AR", Name: "Arkansas", Flyway: "mississippi", Lat: &lat, Lng: &lng}))

	states, err := s.ListStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "Arkansas", states[0].Name)
	require.NotNil(t, states[0].Lat)
	assert.Equal(t, 34.0, *states[0].Lat)
}

func TestLatestCountsJoinsPrevious(t *testing.T) {
	s := setupSeededStore(t)

	rows, err := s.LatestCounts(context.Background(), CountFilter{Category: DefaultCategory})
	require.NoError(t, err)

	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.LocationID + "/" + r.SpeciesSlug
	}
	assert.Equal(t, []string{
		"bald-knob-nwr/mallard",
		"clarence-cannon-nwr/mallard",
		"holla-bend-nwr/mallard",
		"holla-bend-nwr/snow-goose",
		"lacassine-nwr/northern-pintail",
		"loess-bluffs-nwr/snow-goose",
	}, keys, "statewide rollups are excluded")

	holla := rows[2]
	require.NotNil(t, holla.Count)
	assert.Equal(t, int64(14500), *holla.Count)
	require.NotNil(t, holla.PreviousCount)
	assert.Equal(t, int64(8200), *holla.PreviousCount)
	assert.Equal(t, day("2025-11-24"), holla.SurveyDate)
	require.NotNil(t, holla.PreviousSurveyDate)
	assert.Equal(t, day("2025-11-10"), *holla.PreviousSurveyDate)
	assert.Equal(t, "Arkansas", holla.StateName)
	assert.Equal(t, "mississippi", holla.Flyway)
	require.NotNil(t, holla.Lat)

	assert.Nil(t, rows[3].PreviousCount, "single survey has no previous")
}

func TestLatestCountsExcludesStatewideAnyCase(t *testing.T) {
	s := setupSeededStore(t)
	ctx := context.Background()

	for _, loc := range []models.Location{
		{ID: "la-rollup-upper", Name: "LA STATEWIDE AERIAL", LocationType: EligibleLocationType, StateCode: "LA"},
		{ID: "la-rollup-lower", Name: "la statewide aerial", LocationType: EligibleLocationType, StateCode: "LA"},
	} {
		require.NoError(t, s.UpsertLocation(ctx, loc))
		require.NoError(t, s.InsertSurveyCount(ctx, models.SurveyCount{
			LocationID:  loc.ID,
			SpeciesSlug: "mallard",
			SurveyDate:  day("2025-11-24"),
			Count:       i64(250000),
			SurveyType:  "aerial",
		}))
	}

	rows, err := s.LatestCounts(ctx, CountFilter{States: []string{"LA"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "lacassine-nwr", rows[0].LocationID)
}

func TestLatestCountsFilters(t *testing.T) {
	s := setupSeededStore(t)
	ctx := context.Background()

	rows, err := s.LatestCounts(ctx, CountFilter{States: []string{"MO"}, Category: DefaultCategory})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = s.LatestCounts(ctx, CountFilter{SpeciesSlugs: []string{"snow-goose"}})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = s.LatestCounts(ctx, CountFilter{LocationID: "lacassine-nwr"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "northern-pintail", rows[0].SpeciesSlug)
}

func TestLatestCountsExcludesAnnualSurveys(t *testing.T) {
	s := setupSeededStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertSurveyCount(ctx, models.SurveyCount{
		LocationID: "bald-knob-nwr", SpeciesSlug: "mallard", SurveyDate: day("2025-12-01"),
		Count: i64(999999), SurveyType: ExcludedSurveyType,
	}))

	rows, err := s.LatestCounts(ctx, CountFilter{LocationID: "bald-knob-nwr"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(6100), *rows[0].Count)
}

func TestLatestCountsNullCount(t *testing.T) {
	s := setupSeededStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertSurveyCount(ctx, models.SurveyCount{
		LocationID: "texas-point-nwr", SpeciesSlug: "snow-goose", SurveyDate: day("2025-11-25"), SurveyType: "aerial",
	}))

	rows, err := s.LatestCounts(ctx, CountFilter{LocationID: "texas-point-nwr"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Count)
}

func TestOpenSeasons(t *testing.T) {
	s := setupSeededStore(t)
	ctx := context.Background()

	seasons, err := s.OpenSeasons(ctx, SeasonFilter{States: []string{"AR"}, Category: DefaultCategory, Year: 2025, Date: day("2025-12-01")})
	require.NoError(t, err)
	require.Len(t, seasons, 2)
	assert.Equal(t, "mallard", seasons[0].SpeciesSlug)
	assert.Equal(t, day("2025-11-22"), seasons[0].StartDate)
	require.NotNil(t, seasons[0].BagLimit)
	assert.Equal(t, 6, *seasons[0].BagLimit)

	seasons, err = s.OpenSeasons(ctx, SeasonFilter{States: []string{"MO"}, Year: 2025, Date: day("2026-01-15")})
	require.NoError(t, err)
	require.Len(t, seasons, 1)
	assert.Equal(t, "snow-goose", seasons[0].SpeciesSlug)

	seasons, err = s.OpenSeasons(ctx, SeasonFilter{Year: 2025, Date: day("2025-10-01")})
	require.NoError(t, err)
	assert.Empty(t, seasons)

	seasons, err = s.OpenSeasons(ctx, SeasonFilter{SpeciesSlugs: []string{"sandhill-crane"}, Year: 2025, Date: day("2025-12-01")})
	require.NoError(t, err)
	require.Len(t, seasons, 1)
	assert.Equal(t, "NM", seasons[0].StateCode)
}

func TestGetLocation(t *testing.T) {
	s := setupSeededStore(t)
	ctx := context.Background()

	loc, err := s.GetLocation(ctx, "holla-bend-nwr")
	require.NoError(t, err)
	assert.Equal(t, "AR", loc.StateCode)
	assert.True(t, loc.HasCoordinates())

	loc, err = s.GetLocation(ctx, "ar-statewide-mwi")
	require.NoError(t, err)
	assert.False(t, loc.HasCoordinates())

	_, err = s.GetLocation(ctx, "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStateCoordinates(t *testing.T) {
	s := setupSeededStore(t)
	ctx := context.Background()

	coords, err := s.StateCoordinates(ctx, []string{"AR", "ZZ"})
	require.NoError(t, err)
	require.Len(t, coords, 1)
	assert.InDelta(t, 34.75, coords["AR"].Lat, 0.001)

	all, err := s.StateCoordinates(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 9)
}

func TestSeedIsRepeatable(t *testing.T) {
	s := setupSeededStore(t)
	ctx := context.Background()

	data, err := LoadSeed("")
	require.NoError(t, err)
	require.NoError(t, Seed(ctx, s, data))

	rows, err := s.LatestCounts(ctx, CountFilter{Category: DefaultCategory})
	require.NoError(t, err)
	assert.Len(t, rows, 6)
}

func TestLoadSeedMissingFile(t *testing.T) {
	_, err := LoadSeed("/nonexistent/seed.yaml")
	require.Error(t, err)
}
