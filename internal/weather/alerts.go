package weather

import (
	"sort"
	"strings"

	"github.com/lox/huntstack/internal/models"
)

// MaxStateAlerts bounds the alerts attached to a state push factor.
const MaxStateAlerts = 3

var severityRank = map[string]int{
	"Extreme":  0,
	"Severe":   1,
	"Moderate": 2,
	"Minor":    3,
	"Unknown":  4,
}

// relevantEvents are substrings of alert events that matter to a hunter in
// the field.
var relevantEvents = []string{
	"winter", "wind", "freeze", "frost", "blizzard", "ice", "snow",
	"cold", "chill", "storm", "flood", "fog", "tornado",
}

func severity(s string) int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return severityRank["Unknown"]
}

// SortAlerts orders alerts most severe first, then by expiry soonest.
func SortAlerts(alerts []models.WeatherAlert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		si, sj := severity(alerts[i].Severity), severity(alerts[j].Severity)
		if si != sj {
			return si < sj
		}
		ei, ej := alerts[i].Expires, alerts[j].Expires
		if ei != nil && ej != nil {
			return ei.Before(*ej)
		}
		return ei != nil && ej == nil
	})
}

// FilterRelevant keeps weather-relevant alerts, most severe first, up to
// limit.
func FilterRelevant(alerts []models.WeatherAlert, limit int) []models.WeatherAlert {
	out := []models.WeatherAlert{}
	for _, a := range alerts {
		event := strings.ToLower(a.Event)
		for _, kw := range relevantEvents {
			if strings.Contains(event, kw) {
				out = append(out, a)
				break
			}
		}
	}
	SortAlerts(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
