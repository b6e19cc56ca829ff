package forecast

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/lox/huntstack/internal/models"
)

// WindCategory buckets wind speed for hunting notes.
type WindCategory string

const (
	WindCalm      WindCategory = "calm"
	WindLight     WindCategory = "light"
	WindModerate  WindCategory = "moderate"
	WindStrong    WindCategory = "strong"
	WindDangerous WindCategory = "dangerous"
)

// Rating is the overall hunting-conditions grade.
type Rating string

const (
	RatingExcellent Rating = "excellent"
	RatingGood      Rating = "good"
	RatingFair      Rating = "fair"
	RatingPoor      Rating = "poor"
)

const noteWindowPeriods = 12

const (
	NoteDangerousWind = "Dangerous winds over 30 mph. Consider postponing the hunt."
	NoteStrongWind    = "Strong winds will keep birds moving and low. Hunt protected water."
	NoteNorthWind     = "Moderate north winds favor new birds moving in."
	NoteCalmWind      = "Calm winds make birds decoy-shy. Spread the spread and keep calling soft."
	NoteIce           = "Temperatures below 25°F. Expect skim ice on shallow water."
	NoteRainGear      = "High chance of precipitation. Bring rain gear and protect shells."
	NoteColdFront     = "Cold front approaching. Expect fresh birds on the leading edge."
	NoteSouthWind     = "South winds can hold birds in place or drift them back north."
)

// windSpeedPattern matches "10 mph" and "10 to 15 mph".
var windSpeedPattern = regexp.MustCompile(`(\d+)(?:\s*to\s*(\d+))?\s*mph`)

var southWinds = map[string]bool{
	"S":  true,
	"SW": true,
	"SE": true,
}

// ParseWindMPH returns the upper bound of a textual wind speed, or 0 when the
// text carries no speed.
func ParseWindMPH(s string) float64 {
	m := windSpeedPattern.FindStringSubmatch(strings.ToLower(s))
	if m == nil {
		return 0
	}
	upper := m[1]
	if m[2] != "" {
		upper = m[2]
	}
	v, err := strconv.ParseFloat(upper, 64)
	if err != nil {
		return 0
	}
	return v
}

func ClassifyWind(mph float64) WindCategory {
	switch {
	case mph <= 5:
		return WindCalm
	case mph <= 10:
		return WindLight
	case mph <= 20:
		return WindModerate
	case mph <= 30:
		return WindStrong
	default:
		return WindDangerous
	}
}

// Rate grades hunting conditions. Unknown precipitation counts as 0%.
// Rules apply in order, first match wins.
func Rate(windMPH float64, precip *float64, tempF float64) Rating {
	p := 0.0
	if precip != nil {
		p = *precip
	}

	switch {
	case windMPH > 30 || p > 80:
		return RatingPoor
	case windMPH >= 10 && windMPH <= 20 && p < 30 && tempF >= 25 && tempF <= 50:
		return RatingExcellent
	case windMPH >= 5 && windMPH <= 25 && p < 50 && tempF >= 20 && tempF <= 60:
		return RatingGood
	default:
		return RatingFair
	}
}

// Notes builds advisory notes for the current period, looking ahead over the
// next twelve periods for an approaching front.
func Notes(periods []models.ForecastPeriod) []string {
	notes := []string{}
	if len(periods) == 0 {
		return notes
	}

	current := periods[0]
	mph := ParseWindMPH(current.WindSpeed)
	category := ClassifyWind(mph)
	dir := strings.ToUpper(strings.TrimSpace(current.WindDirection))

	switch category {
	case WindDangerous:
		notes = append(notes, NoteDangerousWind)
	case WindStrong:
		notes = append(notes, NoteStrongWind)
	case WindModerate:
		if IsNorthWind(dir) {
			notes = append(notes, NoteNorthWind)
		}
	case WindCalm:
		notes = append(notes, NoteCalmWind)
	}

	if current.Temperature < 25 {
		notes = append(notes, NoteIce)
	}
	if current.PrecipitationProbability != nil && *current.PrecipitationProbability > 60 {
		notes = append(notes, NoteRainGear)
	}
	if frontAhead(periods[:min(noteWindowPeriods, len(periods))]) {
		notes = append(notes, NoteColdFront)
	}
	if category != WindCalm && southWinds[dir] {
		notes = append(notes, NoteSouthWind)
	}
	return notes
}

func frontAhead(window []models.ForecastPeriod) bool {
	if len(window) < minIncomingPeriods {
		return false
	}
	return maxTemp(window[:4])-minTemp(window[4:]) >= ColdFrontDropF
}

// Assess derives hunting conditions from a forecast whose first period is
// the current one. Returns nil for an empty forecast.
func Assess(periods []models.ForecastPeriod) *models.HuntingConditions {
	if len(periods) == 0 {
		return nil
	}
	current := periods[0]
	mph := ParseWindMPH(current.WindSpeed)

	return &models.HuntingConditions{
		Rating:                   string(Rate(mph, current.PrecipitationProbability, current.Temperature)),
		WindSpeedMPH:             mph,
		WindCategory:             string(ClassifyWind(mph)),
		WindDirection:            current.WindDirection,
		WindSpeed:                current.WindSpeed,
		Temperature:              current.Temperature,
		TemperatureUnit:          current.TemperatureUnit,
		PrecipitationProbability: current.PrecipitationProbability,
		RelativeHumidity:         current.RelativeHumidity,
		Conditions:               current.ShortForecast,
		DetailedForecast:         current.DetailedForecast,
		Notes:                    Notes(periods),
		Periods:                  periods[:min(noteWindowPeriods, len(periods))],
	}
}
