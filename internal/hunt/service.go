package hunt

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lox/huntstack/internal/forecast"
	"github.com/lox/huntstack/internal/metrics"
	"github.com/lox/huntstack/internal/migration"
	"github.com/lox/huntstack/internal/models"
	"github.com/lox/huntstack/internal/store"
)

const (
	// EnrichTopK bounds live weather lookups per request.
	EnrichTopK   = 8
	MaxLimit     = 25
	DefaultLimit = 10
)

// ErrNoData is returned when a state has no survey data.
var ErrNoData = eris.New("no survey data")

// CountStore is the persisted survey data the scorer reads.
type CountStore interface {
	LatestCounts(ctx context.Context, f store.CountFilter) ([]models.CountRow, error)
	OpenSeasons(ctx context.Context, f store.SeasonFilter) ([]models.Season, error)
}

// PushSource computes push factors for a set of states.
type PushSource interface {
	PushFactors(ctx context.Context, states []string) (*migration.Report, error)
}

// ConditionsSource rates live hunting conditions at a coordinate.
type ConditionsSource interface {
	HuntingConditions(ctx context.Context, lat, lng float64) (*models.HuntingConditions, error)
}

// Query selects candidate locations. An empty Species means the whole
// waterfowl category; empty States means every state.
type Query struct {
	Species string
	States  []string
	Date    time.Time
	Limit   int
}

type QueryParams struct {
	Species *string  `json:"species"`
	States  []string `json:"states"`
	Date    string   `json:"date"`
	Limit   int      `json:"limit"`
}

// Recommendation is one scored location.
type Recommendation struct {
	Rank               int             `json:"rank"`
	LocationID         string          `json:"locationId"`
	LocationName       string          `json:"locationName"`
	StateCode          string          `json:"stateCode"`
	StateName          string          `json:"stateName"`
	Flyway             string          `json:"flyway"`
	Lat                *float64        `json:"lat"`
	Lng                *float64        `json:"lng"`
	SpeciesSlug        string          `json:"speciesSlug"`
	SpeciesName        string          `json:"speciesName"`
	Count              *int64          `json:"count"`
	PreviousCount      *int64          `json:"previousCount"`
	SurveyDate         string          `json:"surveyDate"`
	PreviousSurveyDate *string         `json:"previousSurveyDate"`
	SurveyType         string          `json:"surveyType"`
	Delta              *int64          `json:"delta"`
	DeltaPercent       *float64        `json:"deltaPercent"`
	Trend              Trend           `json:"trend"`
	MigrationStatus    MigrationStatus `json:"migrationStatus"`
	IsAnomaly          bool            `json:"isAnomaly"`
	SeasonOpen         bool            `json:"seasonOpen"`
	SeasonName         *string         `json:"seasonName"`
	SeasonEndDate      *string         `json:"seasonEndDate"`
	BagLimit           *int            `json:"bagLimit"`
	PushScore          int             `json:"pushScore"`
	WeatherRating      *string         `json:"weatherRating"`
	WeatherTemperature *float64        `json:"weatherTemperature"`
	WeatherWind        *string         `json:"weatherWind"`
	WeatherConditions  *string         `json:"weatherConditions"`
	Score              int             `json:"score"`
	ScoreBreakdown     ScoreBreakdown  `json:"scoreBreakdown"`
}

type Result struct {
	Recommendations []Recommendation `json:"recommendations"`
	QueryParams     QueryParams      `json:"queryParams"`
	TotalLocations  int              `json:"totalLocations"`
}

// candidate carries one location through the scoring pipeline. conditions is
// filled only for the enriched top-K.
type candidate struct {
	row        models.CountRow
	trend      TrendResult
	status     MigrationStatus
	anomaly    bool
	season     *models.Season
	pushScore  int
	conditions *models.HuntingConditions
	breakdown  ScoreBreakdown
}

type Service struct {
	store      CountStore
	push       PushSource
	conditions ConditionsSource
	clock      clockwork.Clock
	logger     *zap.Logger
}

func NewService(s CountStore, push PushSource, conditions ConditionsSource, clock clockwork.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      s,
		push:       push,
		conditions: conditions,
		clock:      clock,
		logger:     logger.Named("hunt"),
	}
}

// NormalizeLimit applies the default and cap to a requested result count.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// Recommend scores candidate locations and returns the best, highest first.
func (s *Service) Recommend(ctx context.Context, q Query) (*Result, error) {
	q = s.normalize(q)

	rows, seasons, report, err := s.load(ctx, q)
	if err != nil {
		return nil, err
	}

	cands := dedupe(rows)
	metrics.RecommendationCandidates.Observe(float64(len(cands)))

	score(cands, seasons, report, q.Date)
	sortCandidates(cands)
	s.enrich(ctx, cands)
	sortCandidates(cands)

	total := len(cands)
	if len(cands) > q.Limit {
		cands = cands[:q.Limit]
	}

	recs := make([]Recommendation, len(cands))
	for i, c := range cands {
		recs[i] = c.recommendation(i + 1)
	}

	return &Result{
		Recommendations: recs,
		QueryParams:     queryParams(q),
		TotalLocations:  total,
	}, nil
}

func (s *Service) normalize(q Query) Query {
	q.Species = strings.ToLower(strings.TrimSpace(q.Species))
	q.States = migration.NormalizeStates(q.States)
	if q.Date.IsZero() {
		q.Date = s.clock.Now()
	}
	q.Limit = NormalizeLimit(q.Limit)
	return q
}

func countFilter(q Query) store.CountFilter {
	f := store.CountFilter{States: q.States}
	if q.Species != "" {
		f.SpeciesSlugs = []string{q.Species}
	} else {
		f.Category = store.DefaultCategory
	}
	return f
}

func seasonFilter(q Query) store.SeasonFilter {
	f := store.SeasonFilter{States: q.States, Year: q.Date.Year(), Date: q.Date}
	if q.Species != "" {
		f.SpeciesSlugs = []string{q.Species}
	} else {
		f.Category = store.DefaultCategory
	}
	return f
}

// load reads counts and open seasons and fetches push factors concurrently.
// Without an explicit state list, push factors wait for the counts so only
// states with candidates are fetched.
func (s *Service) load(ctx context.Context, q Query) ([]models.CountRow, []models.Season, *migration.Report, error) {
	var (
		rows    []models.CountRow
		seasons []models.Season
		report  *migration.Report
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.store.LatestCounts(gctx, countFilter(q))
		return eris.Wrap(err, "load latest counts")
	})
	g.Go(func() error {
		var err error
		seasons, err = s.store.OpenSeasons(gctx, seasonFilter(q))
		return eris.Wrap(err, "load open seasons")
	})
	if len(q.States) > 0 {
		g.Go(func() error {
			report = s.pushFactors(gctx, q.States)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	if len(q.States) == 0 && len(rows) > 0 {
		report = s.pushFactors(ctx, rowStates(rows))
	}
	return rows, seasons, report, nil
}

// pushFactors degrades to no report when the push source fails.
func (s *Service) pushFactors(ctx context.Context, states []string) *migration.Report {
	if s.push == nil {
		return nil
	}
	report, err := s.push.PushFactors(ctx, states)
	if err != nil {
		s.logger.Warn("push factors unavailable", zap.Strings("states", states), zap.Error(err))
		return nil
	}
	return report
}

func rowStates(rows []models.CountRow) []string {
	seen := make(map[string]bool)
	var states []string
	for _, r := range rows {
		if !seen[r.StateCode] {
			seen[r.StateCode] = true
			states = append(states, r.StateCode)
		}
	}
	sort.Strings(states)
	return states
}

// dedupe keeps the highest-count row per location, in first-seen order.
func dedupe(rows []models.CountRow) []*candidate {
	byLocation := make(map[string]*candidate)
	var out []*candidate
	for _, r := range rows {
		existing, ok := byLocation[r.LocationID]
		if !ok {
			c := &candidate{row: r}
			byLocation[r.LocationID] = c
			out = append(out, c)
			continue
		}
		if countOrNegative(r.Count) > countOrNegative(existing.row.Count) {
			existing.row = r
		}
	}
	return out
}

func countOrNegative(c *int64) int64 {
	if c == nil {
		return -1
	}
	return *c
}

func seasonKey(state, species string) string {
	return state + "|" + species
}

// score fills every term except weather.
func score(cands []*candidate, seasons []models.Season, report *migration.Report, date time.Time) {
	open := make(map[string]*models.Season)
	for i := range seasons {
		se := &seasons[i]
		key := seasonKey(se.StateCode, se.SpeciesSlug)
		if _, ok := open[key]; !ok && se.Contains(date) {
			open[key] = se
		}
	}

	var maxCount int64
	for _, c := range cands {
		maxCount = max(maxCount, countOrNegative(c.row.Count))
	}

	for _, c := range cands {
		c.trend = ComputeTrend(c.row.Count, c.row.PreviousCount)
		c.status = StatusFor(c.trend.Trend, c.trend.DeltaPercent)
		c.anomaly = IsAnomaly(c.row.Count, c.trend.DeltaPercent)
		c.season = open[seasonKey(c.row.StateCode, c.row.SpeciesSlug)]
		c.pushScore = report.ScoreFor(c.row.StateCode)

		c.breakdown = ScoreBreakdown{
			TrendScore:     TrendScore(c.trend.Trend),
			MagnitudeScore: MagnitudeScore(c.row.Count, maxCount),
			SeasonScore:    SeasonScore(c.season != nil),
			PushScore:      PushTermScore(c.pushScore),
			MigrationScore: MigrationScore(c.status),
			AnomalyBonus:   AnomalyScore(c.anomaly),
		}
		c.breakdown.finalize()
	}
}

// sortCandidates orders by total score, then count, then location id.
func sortCandidates(cands []*candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.breakdown.Total != b.breakdown.Total {
			return a.breakdown.Total > b.breakdown.Total
		}
		ca, cb := countOrNegative(a.row.Count), countOrNegative(b.row.Count)
		if ca != cb {
			return ca > cb
		}
		return a.row.LocationID < b.row.LocationID
	})
}

// enrich fetches live conditions for the top EnrichTopK candidates. A failed
// lookup leaves that candidate without a weather term.
func (s *Service) enrich(ctx context.Context, cands []*candidate) {
	if s.conditions == nil {
		return
	}

	var g errgroup.Group
	for _, c := range cands[:min(EnrichTopK, len(cands))] {
		if c.row.Lat == nil || c.row.Lng == nil {
			continue
		}
		g.Go(func() error {
			hc, err := s.conditions.HuntingConditions(ctx, *c.row.Lat, *c.row.Lng)
			if err != nil {
				metrics.EnrichmentFailures.Inc()
				s.logger.Warn("weather enrichment failed", zap.String("location", c.row.LocationID), zap.Error(err))
				return nil
			}
			c.conditions = hc
			c.breakdown.WeatherScore = WeatherScore(forecast.Rating(hc.Rating))
			c.breakdown.finalize()
			return nil
		})
	}
	_ = g.Wait()
}

func (c *candidate) recommendation(rank int) Recommendation {
	r := c.row
	rec := Recommendation{
		Rank:            rank,
		LocationID:      r.LocationID,
		LocationName:    r.LocationName,
		StateCode:       r.StateCode,
		StateName:       r.StateName,
		Flyway:          r.Flyway,
		Lat:             r.Lat,
		Lng:             r.Lng,
		SpeciesSlug:     r.SpeciesSlug,
		SpeciesName:     r.SpeciesName,
		Count:           r.Count,
		PreviousCount:   r.PreviousCount,
		SurveyDate:      r.SurveyDate.Format(time.DateOnly),
		SurveyType:      r.SurveyType,
		Delta:           c.trend.Delta,
		DeltaPercent:    c.trend.DeltaPercent,
		Trend:           c.trend.Trend,
		MigrationStatus: c.status,
		IsAnomaly:       c.anomaly,
		SeasonOpen:      c.season != nil,
		PushScore:       c.pushScore,
		Score:           c.breakdown.Total,
		ScoreBreakdown:  c.breakdown,
	}
	if r.PreviousSurveyDate != nil {
		d := r.PreviousSurveyDate.Format(time.DateOnly)
		rec.PreviousSurveyDate = &d
	}
	if c.season != nil {
		name := c.season.Name
		end := c.season.EndDate.Format(time.DateOnly)
		rec.SeasonName = &name
		rec.SeasonEndDate = &end
		rec.BagLimit = c.season.BagLimit
	}
	if hc := c.conditions; hc != nil {
		rating := hc.Rating
		temp := hc.Temperature
		wind := strings.TrimSpace(fmt.Sprintf("%s %s", hc.WindSpeed, hc.WindDirection))
		cond := hc.Conditions
		rec.WeatherRating = &rating
		rec.WeatherTemperature = &temp
		rec.WeatherWind = &wind
		rec.WeatherConditions = &cond
	}
	return rec
}

func queryParams(q Query) QueryParams {
	p := QueryParams{
		States: q.States,
		Date:   q.Date.Format(time.DateOnly),
		Limit:  q.Limit,
	}
	if q.Species != "" {
		p.Species = &q.Species
	}
	return p
}
