package store

import (
	"context"
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lox/huntstack/internal/models"
)

//go:embed seed.yaml
var defaultSeed []byte

// SeedData is reference data loaded into a fresh database.
type SeedData struct {
	States       []models.State       `yaml:"states"`
	Species      []models.Species     `yaml:"species"`
	Locations    []models.Location    `yaml:"locations"`
	Seasons      []models.Season      `yaml:"seasons"`
	SurveyCounts []models.SurveyCount `yaml:"survey_counts"`
}

// LoadSeed reads seed data from path, or the built-in data when path is
// empty.
func LoadSeed(path string) (*SeedData, error) {
	raw := defaultSeed
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read seed %s", path)
		}
		raw = b
	}

	var data SeedData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, eris.Wrap(err, "parse seed")
	}
	return &data, nil
}

// Seed writes seed data in dependency order. Existing reference rows are
// updated; counts and seasons already present are left alone.
func Seed(ctx context.Context, s Store, data *SeedData) error {
	for _, st := range data.States {
		if err := s.UpsertState(ctx, st); err != nil {
			return err
		}
	}
	for _, sp := range data.Species {
		if err := s.UpsertSpecies(ctx, sp); err != nil {
			return err
		}
	}
	for _, loc := range data.Locations {
		if err := s.UpsertLocation(ctx, loc); err != nil {
			return err
		}
	}
	for _, season := range data.Seasons {
		if err := s.InsertSeason(ctx, season); err != nil {
			return err
		}
	}
	for _, sc := range data.SurveyCounts {
		if err := s.InsertSurveyCount(ctx, sc); err != nil {
			return err
		}
	}

	zap.L().Info("seeded store",
		zap.Int("states", len(data.States)),
		zap.Int("species", len(data.Species)),
		zap.Int("locations", len(data.Locations)),
		zap.Int("seasons", len(data.Seasons)),
		zap.Int("survey_counts", len(data.SurveyCounts)))
	return nil
}
