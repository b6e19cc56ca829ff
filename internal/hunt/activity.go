package hunt

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lox/huntstack/internal/models"
	"github.com/lox/huntstack/internal/store"
)

// LocationActivity is the latest survey trend for one species at a location.
type LocationActivity struct {
	LocationID      string          `json:"locationId"`
	LocationName    string          `json:"locationName"`
	SpeciesSlug     string          `json:"speciesSlug"`
	SpeciesName     string          `json:"speciesName"`
	Count           *int64          `json:"count"`
	PreviousCount   *int64          `json:"previousCount"`
	SurveyDate      string          `json:"surveyDate"`
	Delta           *int64          `json:"delta"`
	DeltaPercent    *float64        `json:"deltaPercent"`
	Trend           Trend           `json:"trend"`
	MigrationStatus MigrationStatus `json:"migrationStatus"`
	IsAnomaly       bool            `json:"isAnomaly"`
}

// StateActivity is the migration snapshot for one state.
type StateActivity struct {
	State      string                  `json:"state"`
	StateName  string                  `json:"stateName"`
	Flyway     string                  `json:"flyway"`
	PushFactor *models.StatePushFactor `json:"pushFactor"`
	Locations  []LocationActivity      `json:"locations"`
	FetchedAt  time.Time               `json:"fetchedAt"`
}

// StateMigration returns per-location trends for a state alongside its push
// factor. The push factor is nil when weather is unavailable.
func (s *Service) StateMigration(ctx context.Context, state string) (*StateActivity, error) {
	state = strings.ToUpper(strings.TrimSpace(state))

	rows, err := s.store.LatestCounts(ctx, store.CountFilter{States: []string{state}, Category: store.DefaultCategory})
	if err != nil {
		return nil, eris.Wrapf(err, "load counts for %s", state)
	}
	if len(rows) == 0 {
		return nil, eris.Wrapf(ErrNoData, "state %s", state)
	}

	activity := &StateActivity{
		State:     state,
		StateName: rows[0].StateName,
		Flyway:    rows[0].Flyway,
		Locations: make([]LocationActivity, 0, len(rows)),
		FetchedAt: s.clock.Now().UTC(),
	}

	if report := s.pushFactors(ctx, []string{state}); report != nil {
		for i := range report.PushFactors {
			if report.PushFactors[i].State == state {
				activity.PushFactor = &report.PushFactors[i]
			}
		}
	}

	for _, r := range rows {
		t := ComputeTrend(r.Count, r.PreviousCount)
		activity.Locations = append(activity.Locations, LocationActivity{
			LocationID:      r.LocationID,
			LocationName:    r.LocationName,
			SpeciesSlug:     r.SpeciesSlug,
			SpeciesName:     r.SpeciesName,
			Count:           r.Count,
			PreviousCount:   r.PreviousCount,
			SurveyDate:      r.SurveyDate.Format(time.DateOnly),
			Delta:           t.Delta,
			DeltaPercent:    t.DeltaPercent,
			Trend:           t.Trend,
			MigrationStatus: StatusFor(t.Trend, t.DeltaPercent),
			IsAnomaly:       IsAnomaly(r.Count, t.DeltaPercent),
		})
	}
	return activity, nil
}
