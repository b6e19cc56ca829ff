package ingest

import (
	"fmt"
	"time"

	"github.com/lox/huntstack/internal/models"
	"github.com/lox/huntstack/internal/store"
)

const (
	FlagUnknownState    = "unknown_state"
	FlagUnknownLocation = "unknown_location"
	FlagUnknownSpecies  = "unknown_species"
	FlagNegativeCount   = "negative_count"
	FlagFutureSurvey    = "future_survey"
	FlagMissingDate     = "missing_date"
	FlagSeasonInverted  = "season_inverted"
	FlagBagLimitInvalid = "bag_limit_invalid"
	FlagCoordinateRange = "coordinate_out_of_range"
)

// Issue is one quality problem found in seed data.
type Issue struct {
	Kind string
	Key  string
	Flag string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s %s: %s", i.Kind, i.Key, i.Flag)
}

// ValidateSurveyCount returns quality flags for a single count row.
func ValidateSurveyCount(sc models.SurveyCount, now time.Time) []string {
	var flags []string
	if sc.Count != nil && *sc.Count < 0 {
		flags = append(flags, FlagNegativeCount)
	}
	if sc.SurveyDate.IsZero() {
		flags = append(flags, FlagMissingDate)
	} else if sc.SurveyDate.After(now) {
		flags = append(flags, FlagFutureSurvey)
	}
	return flags
}

// ValidateSeason returns quality flags for a season row.
func ValidateSeason(s models.Season) []string {
	var flags []string
	if s.StartDate.IsZero() || s.EndDate.IsZero() {
		flags = append(flags, FlagMissingDate)
	} else if s.EndDate.Before(s.StartDate) {
		flags = append(flags, FlagSeasonInverted)
	}
	if s.BagLimit != nil && *s.BagLimit < 0 {
		flags = append(flags, FlagBagLimitInvalid)
	}
	return flags
}

func validCoordinate(lat, lng *float64) bool {
	if lat == nil || lng == nil {
		return true
	}
	return *lat >= -90 && *lat <= 90 && *lng >= -180 && *lng <= 180
}

// ValidateSeed checks seed data for broken references and implausible
// values. An empty result means the data is safe to load.
func ValidateSeed(data *store.SeedData, now time.Time) []Issue {
	var issues []Issue
	add := func(kind, key string, flags ...string) {
		for _, f := range flags {
			issues = append(issues, Issue{Kind: kind, Key: key, Flag: f})
		}
	}

	states := make(map[string]bool, len(data.States))
	for _, st := range data.States {
		states[st.Code] = true
		if !validCoordinate(st.Lat, st.Lng) {
			add("state", st.Code, FlagCoordinateRange)
		}
	}
	species := make(map[string]bool, len(data.Species))
	for _, sp := range data.Species {
		species[sp.Slug] = true
	}
	locations := make(map[string]bool, len(data.Locations))
	for _, loc := range data.Locations {
		locations[loc.ID] = true
		if !states[loc.StateCode] {
			add("location", loc.ID, FlagUnknownState)
		}
		if !validCoordinate(loc.Lat, loc.Lng) {
			add("location", loc.ID, FlagCoordinateRange)
		}
	}

	for _, s := range data.Seasons {
		key := fmt.Sprintf("%s/%s/%d", s.StateCode, s.SpeciesSlug, s.Year)
		if !states[s.StateCode] {
			add("season", key, FlagUnknownState)
		}
		if !species[s.SpeciesSlug] {
			add("season", key, FlagUnknownSpecies)
		}
		add("season", key, ValidateSeason(s)...)
	}

	for _, sc := range data.SurveyCounts {
		key := fmt.Sprintf("%s/%s/%s", sc.LocationID, sc.SpeciesSlug, sc.SurveyDate.Format(time.DateOnly))
		if !locations[sc.LocationID] {
			add("survey_count", key, FlagUnknownLocation)
		}
		if !species[sc.SpeciesSlug] {
			add("survey_count", key, FlagUnknownSpecies)
		}
		add("survey_count", key, ValidateSurveyCount(sc, now)...)
	}
	return issues
}
