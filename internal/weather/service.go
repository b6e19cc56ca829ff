package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lox/huntstack/internal/cache"
	"github.com/lox/huntstack/internal/forecast"
	"github.com/lox/huntstack/internal/models"
)

const (
	DefaultForecastTTL = 2 * time.Hour
	DefaultAlertsTTL   = 30 * time.Minute
)

// ErrUnavailable marks a weather lookup that failed upstream.
var ErrUnavailable = eris.New("weather unavailable")

// Provider is the upstream weather API.
type Provider interface {
	Points(ctx context.Context, lat, lng float64) (models.GridPoint, error)
	Forecast(ctx context.Context, gp models.GridPoint, hourly bool) ([]models.ForecastPeriod, error)
	ActiveAlerts(ctx context.Context, state string) ([]models.WeatherAlert, error)
}

// SignalCache holds the per-kind caches in front of the weather provider.
// Grid points never expire.
type SignalCache struct {
	Grid      *cache.TTL[models.GridPoint]
	Forecasts *cache.TTL[[]models.ForecastPeriod]
	Alerts    *cache.TTL[[]models.WeatherAlert]

	ForecastTTL time.Duration
	AlertsTTL   time.Duration
}

func NewSignalCache(clock clockwork.Clock, forecastTTL, alertsTTL time.Duration) *SignalCache {
	if forecastTTL <= 0 {
		forecastTTL = DefaultForecastTTL
	}
	if alertsTTL <= 0 {
		alertsTTL = DefaultAlertsTTL
	}
	return &SignalCache{
		Grid:        cache.New[models.GridPoint]("grid_points", clock),
		Forecasts:   cache.New[[]models.ForecastPeriod]("forecasts", clock),
		Alerts:      cache.New[[]models.WeatherAlert]("alerts", clock),
		ForecastTTL: forecastTTL,
		AlertsTTL:   alertsTTL,
	}
}

// CoordKey rounds a coordinate to 4 decimal places for cache keys.
func CoordKey(lat, lng float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lng)
}

// Service serves cached weather signals.
type Service struct {
	provider Provider
	cache    *SignalCache
	logger   *zap.Logger
}

func NewService(provider Provider, signals *SignalCache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		provider: provider,
		cache:    signals,
		logger:   logger.Named("weather"),
	}
}

func (s *Service) GridPoint(ctx context.Context, lat, lng float64) (models.GridPoint, error) {
	key := CoordKey(lat, lng)
	if gp, ok := s.cache.Grid.Get(key); ok {
		return gp, nil
	}

	gp, err := s.provider.Points(ctx, lat, lng)
	if err != nil {
		s.logger.Warn("resolve grid point", zap.String("coord", key), zap.Error(err))
		return models.GridPoint{}, eris.Wrapf(ErrUnavailable, "grid point %s: %v", key, err)
	}
	s.cache.Grid.Put(key, gp, cache.Permanent)
	return gp, nil
}

// Forecast returns time-ordered forecast periods for a coordinate.
func (s *Service) Forecast(ctx context.Context, lat, lng float64, hourly bool) ([]models.ForecastPeriod, error) {
	key := CoordKey(lat, lng) + ":daily"
	if hourly {
		key = CoordKey(lat, lng) + ":hourly"
	}
	if periods, ok := s.cache.Forecasts.Get(key); ok {
		return periods, nil
	}

	gp, err := s.GridPoint(ctx, lat, lng)
	if err != nil {
		return nil, err
	}

	periods, err := s.provider.Forecast(ctx, gp, hourly)
	if err != nil {
		s.logger.Warn("fetch forecast", zap.String("key", key), zap.Error(err))
		return nil, eris.Wrapf(ErrUnavailable, "forecast %s: %v", key, err)
	}
	s.cache.Forecasts.Put(key, periods, s.cache.ForecastTTL)
	return periods, nil
}

// Alerts returns active alerts for a state, most severe first.
func (s *Service) Alerts(ctx context.Context, state string) ([]models.WeatherAlert, error) {
	if alerts, ok := s.cache.Alerts.Get(state); ok {
		return alerts, nil
	}

	alerts, err := s.provider.ActiveAlerts(ctx, state)
	if err != nil {
		s.logger.Warn("fetch alerts", zap.String("state", state), zap.Error(err))
		return nil, eris.Wrapf(ErrUnavailable, "alerts %s: %v", state, err)
	}
	SortAlerts(alerts)
	s.cache.Alerts.Put(state, alerts, s.cache.AlertsTTL)
	return alerts, nil
}

// HuntingConditions rates current conditions at a coordinate from the daily
// forecast.
func (s *Service) HuntingConditions(ctx context.Context, lat, lng float64) (*models.HuntingConditions, error) {
	periods, err := s.Forecast(ctx, lat, lng, false)
	if err != nil {
		return nil, err
	}
	hc := forecast.Assess(periods)
	if hc == nil {
		return nil, eris.Wrapf(ErrUnavailable, "forecast %s: no periods", CoordKey(lat, lng))
	}
	return hc, nil
}
