package forecast

import (
	"strings"

	"github.com/lox/huntstack/internal/models"
)

const (
	// ColdFrontDropF is the temperature drop (°F) that marks a cold front.
	ColdFrontDropF = 10.0
	// FreezingF is the sub-freezing threshold.
	FreezingF = 32.0
	// MaxPushScore is the push score with every signal present.
	MaxPushScore = 3

	minFrontPeriods      = 4
	minIncomingPeriods   = 6
	incomingWindowPeriod = 8
)

// northWinds are the directions that push birds south.
var northWinds = map[string]bool{
	"N":   true,
	"NW":  true,
	"NNW": true,
	"NNE": true,
	"NE":  true,
}

type FrontSignal struct {
	Present  bool
	Incoming bool
}

// DetectColdFront looks for a temperature drop in an ordered forecast. A front
// is present when the first two periods run at least ColdFrontDropF warmer than
// the next two. Otherwise a front is incoming when the first half of the next
// eight periods runs that much warmer than the second half.
func DetectColdFront(periods []models.ForecastPeriod) FrontSignal {
	if len(periods) < minFrontPeriods {
		return FrontSignal{}
	}

	lead := max(periods[0].Temperature, periods[1].Temperature)
	trail := min(periods[2].Temperature, periods[3].Temperature)
	if lead-trail >= ColdFrontDropF {
		return FrontSignal{Present: true}
	}

	if len(periods) < minIncomingPeriods {
		return FrontSignal{}
	}
	window := periods[:min(incomingWindowPeriod, len(periods))]
	half := len(window) / 2
	if maxTemp(window[:half])-minTemp(window[half:]) >= ColdFrontDropF {
		return FrontSignal{Incoming: true}
	}
	return FrontSignal{}
}

// IsNorthWind reports whether dir is one of N, NW, NNW, NNE or NE.
func IsNorthWind(dir string) bool {
	return northWinds[strings.ToUpper(strings.TrimSpace(dir))]
}

func IsSubFreezing(tempF float64) bool {
	return tempF < FreezingF
}

// PushScore counts the push signals present, 0-3.
func PushScore(frontPresent, northWind, subFreezing bool) int {
	score := 0
	for _, b := range []bool{frontPresent, northWind, subFreezing} {
		if b {
			score++
		}
	}
	return score
}

// BuildPushFactor derives a state's push factor from its forecast and alerts.
// The current period is periods[0]; an empty forecast scores zero.
func BuildPushFactor(state string, periods []models.ForecastPeriod, alerts []models.WeatherAlert) models.StatePushFactor {
	pf := models.StatePushFactor{
		State:  state,
		Alerts: alerts,
	}
	if pf.Alerts == nil {
		pf.Alerts = []models.WeatherAlert{}
	}
	if len(periods) == 0 {
		return pf
	}

	current := periods[0]
	front := DetectColdFront(periods)
	temp := current.Temperature

	pf.ColdFrontPresent = front.Present
	pf.ColdFrontIncoming = front.Incoming
	pf.NorthWind = IsNorthWind(current.WindDirection)
	pf.SubFreezing = IsSubFreezing(temp)
	pf.WindDirection = current.WindDirection
	pf.WindSpeed = current.WindSpeed
	pf.Temperature = &temp
	pf.ShortForecast = current.ShortForecast
	pf.PushScore = PushScore(pf.ColdFrontPresent, pf.NorthWind, pf.SubFreezing)
	return pf
}

func maxTemp(periods []models.ForecastPeriod) float64 {
	m := periods[0].Temperature
	for _, p := range periods[1:] {
		m = max(m, p.Temperature)
	}
	return m
}

func minTemp(periods []models.ForecastPeriod) float64 {
	m := periods[0].Temperature
	for _, p := range periods[1:] {
		m = min(m, p.Temperature)
	}
	return m
}
