package ebird

import (
	"sort"

	"github.com/lox/huntstack/internal/models"
)

const (
	// MinGroupCount drops incidental sightings from the aggregate.
	MinGroupCount = 5

	Source     = "ebird"
	SurveyType = "community_observation"
)

// Record is one sighting as reported by eBird. Count is nil for
// presence-only ("X") reports. Date is ISO formatted.
type Record struct {
	SpeciesCode string
	CommonName  string
	Count       *int
	Date        string
	Valid       bool
}

// Locality identifies the location sightings are aggregated for.
type Locality struct {
	ID   string
	Name string
}

// Aggregate groups valid, counted sightings by canonical species. Counts are
// summed and the latest date kept; groups below MinGroupCount and codes with
// no alias are dropped. Results are ordered by count descending, then slug.
func Aggregate(loc Locality, records []Record, aliases Aliases) []models.Observation {
	type group struct {
		alias Alias
		count int
		date  string
	}
	groups := make(map[string]*group)

	for _, r := range records {
		if r.Count == nil || !r.Valid {
			continue
		}
		alias, ok := aliases.Lookup(r.SpeciesCode)
		if !ok {
			continue
		}
		g, ok := groups[alias.Slug]
		if !ok {
			g = &group{alias: alias}
			groups[alias.Slug] = g
		}
		g.count += *r.Count
		if r.Date > g.date {
			g.date = r.Date
		}
	}

	out := make([]models.Observation, 0, len(groups))
	for slug, g := range groups {
		if g.count < MinGroupCount {
			continue
		}
		out = append(out, models.Observation{
			LocationID:   loc.ID,
			LocationName: loc.Name,
			SpeciesSlug:  slug,
			SpeciesName:  g.alias.Name,
			Count:        g.count,
			SurveyDate:   g.date,
			SurveyType:   SurveyType,
			Source:       Source,
			IsCommunity:  true,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].SpeciesSlug < out[j].SpeciesSlug
	})
	return out
}
