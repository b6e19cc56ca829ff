package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lox/huntstack/internal/models"
)

// ErrNotFound is returned when a single requested row does not exist.
var ErrNotFound = eris.New("not found")

const (
	// EligibleLocationType is the only location type recommended.
	EligibleLocationType = "wildlife_refuge"
	// ExcludedSurveyType marks statewide annual rollups that are not
	// current counts.
	ExcludedSurveyType = "mwi_annual"
	// DefaultCategory is the species category used when no species is given.
	DefaultCategory = "waterfowl"
)

// CountFilter narrows the latest-count query. Empty fields do not filter.
// SpeciesSlugs takes precedence over Category.
type CountFilter struct {
	States       []string
	SpeciesSlugs []string
	Category     string
	LocationID   string
}

// SeasonFilter selects seasons for a target year whose window contains Date.
type SeasonFilter struct {
	States       []string
	SpeciesSlugs []string
	Category     string
	Year         int
	Date         time.Time
}

// Store is the persisted store for reference data, survey counts and
// seasons.
type Store interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close()

	UpsertState(ctx context.Context, st models.State) error
	UpsertSpecies(ctx context.Context, sp models.Species) error
	UpsertLocation(ctx context.Context, loc models.Location) error
	InsertSurveyCount(ctx context.Context, sc models.SurveyCount) error
	InsertSeason(ctx context.Context, season models.Season) error

	ListStates(ctx context.Context) ([]models.State, error)
	StateCoordinates(ctx context.Context, states []string) (map[string]models.Coordinate, error)
	GetLocation(ctx context.Context, id string) (*models.Location, error)
	LatestCounts(ctx context.Context, f CountFilter) ([]models.CountRow, error)
	OpenSeasons(ctx context.Context, f SeasonFilter) ([]models.Season, error)
}
