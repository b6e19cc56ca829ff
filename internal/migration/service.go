package migration

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lox/huntstack/internal/forecast"
	"github.com/lox/huntstack/internal/models"
	"github.com/lox/huntstack/internal/weather"
)

const maxConcurrentStates = 8

// CoordinateSource supplies one representative coordinate per state.
type CoordinateSource interface {
	StateCoordinates(ctx context.Context, states []string) (map[string]models.Coordinate, error)
}

// WeatherSource supplies forecasts and alerts.
type WeatherSource interface {
	Forecast(ctx context.Context, lat, lng float64, hourly bool) ([]models.ForecastPeriod, error)
	Alerts(ctx context.Context, state string) ([]models.WeatherAlert, error)
}

// Report is a batch of per-state push factors.
type Report struct {
	PushFactors      []models.StatePushFactor `json:"pushFactors"`
	OverallPushScore int                      `json:"overallPushScore"`
	FetchedAt        time.Time                `json:"fetchedAt"`
}

// ScoreFor returns the push score for state, or 0 when the state has no
// result.
func (r *Report) ScoreFor(state string) int {
	if r == nil {
		return 0
	}
	for _, pf := range r.PushFactors {
		if pf.State == state {
			return pf.PushScore
		}
	}
	return 0
}

type Service struct {
	coords  CoordinateSource
	weather WeatherSource
	clock   clockwork.Clock
	logger  *zap.Logger
}

func NewService(coords CoordinateSource, ws WeatherSource, clock clockwork.Clock, logger *zap.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		coords:  coords,
		weather: ws,
		clock:   clock,
		logger:  logger.Named("migration"),
	}
}

// PushFactors computes push factors for states concurrently. An empty list
// means every state with a coordinate. States without a coordinate or whose
// forecast fails are omitted.
func (s *Service) PushFactors(ctx context.Context, states []string) (*Report, error) {
	states = NormalizeStates(states)
	coords, err := s.coords.StateCoordinates(ctx, states)
	if err != nil {
		return nil, eris.Wrap(err, "load state coordinates")
	}
	if len(states) == 0 {
		for st := range coords {
			states = append(states, st)
		}
		sort.Strings(states)
	}

	results := make([]*models.StatePushFactor, len(states))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentStates)

	for i, state := range states {
		c, ok := coords[state]
		if !ok {
			s.logger.Debug("no coordinate for state", zap.String("state", state))
			continue
		}
		g.Go(func() error {
			pf, err := s.StatePushFactor(gctx, state, c.Lat, c.Lng)
			if err != nil {
				s.logger.Warn("push factor failed", zap.String("state", state), zap.Error(err))
				return nil
			}
			results[i] = &pf
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{
		PushFactors: []models.StatePushFactor{},
		FetchedAt:   s.clock.Now().UTC(),
	}
	for _, pf := range results {
		if pf != nil {
			report.PushFactors = append(report.PushFactors, *pf)
		}
	}
	report.OverallPushScore = OverallPushScore(report.PushFactors)
	return report, nil
}

// StatePushFactor computes the push factor for one state at a coordinate.
// Alert failures degrade to no alerts; forecast failures are returned.
func (s *Service) StatePushFactor(ctx context.Context, state string, lat, lng float64) (models.StatePushFactor, error) {
	var (
		periods []models.ForecastPeriod
		alerts  []models.WeatherAlert
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		periods, err = s.weather.Forecast(gctx, lat, lng, false)
		return err
	})
	g.Go(func() error {
		a, err := s.weather.Alerts(gctx, state)
		if err != nil {
			s.logger.Warn("alerts unavailable", zap.String("state", state), zap.Error(err))
			return nil
		}
		alerts = a
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.StatePushFactor{}, err
	}

	return forecast.BuildPushFactor(state, periods, weather.FilterRelevant(alerts, weather.MaxStateAlerts)), nil
}

// OverallPushScore is the maximum push score across states, 0 for none.
func OverallPushScore(factors []models.StatePushFactor) int {
	best := 0
	for _, pf := range factors {
		best = max(best, pf.PushScore)
	}
	return best
}

// NormalizeStates uppercases, trims and dedupes state codes, keeping only
// two-letter codes, in sorted order.
func NormalizeStates(states []string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, raw := range states {
		for _, part := range strings.Split(raw, ",") {
			st := strings.ToUpper(strings.TrimSpace(part))
			if len(st) != 2 || seen[st] {
				continue
			}
			seen[st] = true
			out = append(out, st)
		}
	}
	sort.Strings(out)
	return out
}
