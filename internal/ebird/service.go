package ebird

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lox/huntstack/internal/cache"
	"github.com/lox/huntstack/internal/models"
)

const (
	DefaultRadiusKM = 25
	DefaultDaysBack = 14
	DefaultCacheTTL = time.Hour
)

// ErrDisabled is returned when no eBird API key is configured.
var ErrDisabled = eris.New("ebird disabled")

// Observer fetches raw sightings around a point.
type Observer interface {
	RecentObservations(ctx context.Context, lat, lng float64, radiusKM, daysBack int) ([]Record, error)
}

type ServiceOptions struct {
	RadiusKM int
	DaysBack int
	CacheTTL time.Duration
	Clock    clockwork.Clock
}

// Service aggregates recent community sightings per location.
type Service struct {
	observer Observer
	aliases  Aliases
	opts     ServiceOptions
	cache    *cache.TTL[[]models.Observation]
	logger   *zap.Logger
}

// NewService builds the observation service. A nil observer disables it.
func NewService(observer Observer, aliases Aliases, opts ServiceOptions, logger *zap.Logger) *Service {
	if opts.RadiusKM <= 0 {
		opts.RadiusKM = DefaultRadiusKM
	}
	if opts.DaysBack <= 0 {
		opts.DaysBack = DefaultDaysBack
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if aliases == nil {
		aliases = DefaultAliases()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		observer: observer,
		aliases:  aliases,
		opts:     opts,
		cache:    cache.New[[]models.Observation]("observations", opts.Clock),
		logger:   logger.Named("ebird"),
	}
}

// Enabled reports whether an upstream is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.observer != nil
}

// Observations returns aggregated sightings near a location. Upstream
// failures and locations without coordinates yield an empty result.
func (s *Service) Observations(ctx context.Context, loc models.Location) ([]models.Observation, error) {
	if !s.Enabled() {
		return []models.Observation{}, ErrDisabled
	}
	if !loc.HasCoordinates() {
		return []models.Observation{}, nil
	}
	if obs, ok := s.cache.Get(loc.ID); ok {
		return obs, nil
	}

	records, err := s.observer.RecentObservations(ctx, *loc.Lat, *loc.Lng, s.opts.RadiusKM, s.opts.DaysBack)
	if err != nil {
		s.logger.Warn("fetch observations", zap.String("location", loc.ID), zap.Error(err))
		return []models.Observation{}, nil
	}

	obs := Aggregate(Locality{ID: loc.ID, Name: loc.Name}, records, s.aliases)
	s.cache.Put(loc.ID, obs, s.opts.CacheTTL)
	return obs, nil
}
