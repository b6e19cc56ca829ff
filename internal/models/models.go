package models

import (
	"time"
)

type State struct {
	Code   string   `json:"code" yaml:"code"`
	Name   string   `json:"name" yaml:"name"`
	Flyway string   `json:"flyway" yaml:"flyway"`
	Lat    *float64 `json:"lat" yaml:"lat"`
	Lng    *float64 `json:"lng" yaml:"lng"`
}

type Species struct {
	Slug     string `json:"slug" yaml:"slug"`
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category" yaml:"category"` // "waterfowl", "upland", ...
}

type Location struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	LocationType string   `json:"locationType" yaml:"location_type"` // "wildlife_refuge", "statewide", ...
	StateCode    string   `json:"stateCode" yaml:"state_code"`
	Lat          *float64 `json:"lat" yaml:"lat"`
	Lng          *float64 `json:"lng" yaml:"lng"`
}

// HasCoordinates reports whether weather can be looked up for the location.
func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lng != nil
}

type SurveyCount struct {
	LocationID  string    `json:"locationId" yaml:"location_id"`
	SpeciesSlug string    `json:"speciesSlug" yaml:"species_slug"`
	SurveyDate  time.Time `json:"surveyDate" yaml:"survey_date"`
	Count       *int64    `json:"count" yaml:"count"`
	SurveyType  string    `json:"surveyType" yaml:"survey_type"`
	SourceURL   string    `json:"sourceUrl,omitempty" yaml:"source_url"`
}

// CountRow is the latest survey for a (location, species) pair joined with
// the survey immediately before it.
type CountRow struct {
	LocationID         string
	LocationName       string
	StateCode          string
	StateName          string
	Flyway             string
	Lat                *float64
	Lng                *float64
	SpeciesSlug        string
	SpeciesName        string
	Count              *int64
	SurveyDate         time.Time
	SurveyType         string
	PreviousCount      *int64
	PreviousSurveyDate *time.Time
}

type Season struct {
	StateCode   string    `json:"stateCode" yaml:"state_code"`
	SpeciesSlug string    `json:"speciesSlug" yaml:"species_slug"`
	Name        string    `json:"name" yaml:"name"`
	SeasonType  string    `json:"seasonType" yaml:"season_type"`
	StartDate   time.Time `json:"startDate" yaml:"start_date"`
	EndDate     time.Time `json:"endDate" yaml:"end_date"`
	Year        int       `json:"year" yaml:"year"`
	BagLimit    *int      `json:"bagLimit" yaml:"bag_limit"`
}

// Contains reports whether date falls inside the season window, inclusive.
func (s Season) Contains(date time.Time) bool {
	d := date.Format(time.DateOnly)
	return s.StartDate.Format(time.DateOnly) <= d && d <= s.EndDate.Format(time.DateOnly)
}

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// GridPoint is the forecast-grid reference for a coordinate.
type GridPoint struct {
	Office            string `json:"office"`
	GridX             int    `json:"gridX"`
	GridY             int    `json:"gridY"`
	ForecastURL       string `json:"forecastUrl,omitempty"`
	ForecastHourlyURL string `json:"forecastHourlyUrl,omitempty"`
}

type ForecastPeriod struct {
	Number                   int       `json:"number"`
	Name                     string    `json:"name"`
	StartTime                time.Time `json:"startTime"`
	EndTime                  time.Time `json:"endTime"`
	IsDaytime                bool      `json:"isDaytime"`
	Temperature              float64   `json:"temperature"`
	TemperatureUnit          string    `json:"temperatureUnit"`
	WindSpeed                string    `json:"windSpeed"`
	WindDirection            string    `json:"windDirection"`
	PrecipitationProbability *float64  `json:"precipitationProbability"`
	RelativeHumidity         *float64  `json:"relativeHumidity"`
	ShortForecast            string    `json:"shortForecast"`
	DetailedForecast         string    `json:"detailedForecast"`
}

type WeatherAlert struct {
	ID        string     `json:"id"`
	Event     string     `json:"event"`
	Severity  string     `json:"severity"`
	Urgency   string     `json:"urgency"`
	Headline  string     `json:"headline"`
	AreaDesc  string     `json:"areaDesc"`
	Effective *time.Time `json:"effective"`
	Expires   *time.Time `json:"expires"`
}

// StatePushFactor summarizes how strongly weather is pushing birds south in
// a state. PushScore is 0-3.
type StatePushFactor struct {
	State             string         `json:"state"`
	PushScore         int            `json:"pushScore"`
	ColdFrontPresent  bool           `json:"coldFrontPresent"`
	ColdFrontIncoming bool           `json:"coldFrontIncoming"`
	NorthWind         bool           `json:"northWind"`
	SubFreezing       bool           `json:"subFreezing"`
	WindDirection     string         `json:"windDirection"`
	WindSpeed         string         `json:"windSpeed"`
	Temperature       *float64       `json:"temperature"`
	ShortForecast     string         `json:"shortForecast"`
	Alerts            []WeatherAlert `json:"alerts"`
}

type HuntingConditions struct {
	Rating                   string           `json:"rating"`
	WindSpeedMPH             float64          `json:"windSpeedMph"`
	WindCategory             string           `json:"windCategory"`
	WindDirection            string           `json:"windDirection"`
	WindSpeed                string           `json:"windSpeed"`
	Temperature              float64          `json:"temperature"`
	TemperatureUnit          string           `json:"temperatureUnit"`
	PrecipitationProbability *float64         `json:"precipitationProbability"`
	RelativeHumidity         *float64         `json:"relativeHumidity"`
	Conditions               string           `json:"conditions"`
	DetailedForecast         string           `json:"detailedForecast"`
	Notes                    []string         `json:"notes"`
	Periods                  []ForecastPeriod `json:"periods"`
}

// Observation is a community-reported species count aggregated for one
// location. PreviousCount is always nil: sightings carry no prior survey.
type Observation struct {
	LocationID    string `json:"locationId"`
	LocationName  string `json:"locationName"`
	SpeciesSlug   string `json:"speciesSlug"`
	SpeciesName   string `json:"speciesName"`
	Count         int    `json:"count"`
	SurveyDate    string `json:"surveyDate"`
	PreviousCount *int   `json:"previousCount"`
	SurveyType    string `json:"surveyType"`
	Source        string `json:"source"`
	IsCommunity   bool   `json:"isCommunity"`
}
