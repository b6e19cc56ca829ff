package hunt

import "github.com/lox/huntstack/internal/forecast"

const (
	MaxScore          = 100
	MaxMagnitudeScore = 20
	SeasonOpenScore   = 20
	AnomalyBonus      = 5
)

var trendScores = map[Trend]int{
	TrendIncreasing: 25,
	TrendStable:     15,
	TrendNew:        10,
	TrendDecreasing: 5,
	TrendNoData:     0,
}

var pushScores = map[int]int{0: 0, 1: 4, 2: 7, 3: 10}

var migrationScores = map[MigrationStatus]int{
	StatusArriving:    10,
	StatusBuilding:    7,
	StatusPeak:        5,
	StatusDeclining:   2,
	StatusDeparting:   0,
	StatusFirstSurvey: 6,
	StatusNoData:      0,
}

var weatherScores = map[forecast.Rating]int{
	forecast.RatingExcellent: 15,
	forecast.RatingGood:      10,
	forecast.RatingFair:      5,
	forecast.RatingPoor:      0,
}

// ScoreBreakdown exposes every term that went into a recommendation score.
type ScoreBreakdown struct {
	TrendScore     int `json:"trendScore"`
	MagnitudeScore int `json:"magnitudeScore"`
	SeasonScore    int `json:"seasonScore"`
	WeatherScore   int `json:"weatherScore"`
	PushScore      int `json:"pushScore"`
	MigrationScore int `json:"migrationScore"`
	AnomalyBonus   int `json:"anomalyBonus"`
	Total          int `json:"total"`
}

func (b ScoreBreakdown) sum() int {
	return b.TrendScore + b.MagnitudeScore + b.SeasonScore + b.WeatherScore +
		b.PushScore + b.MigrationScore + b.AnomalyBonus
}

// finalize recomputes Total, clamped to [0, MaxScore].
func (b *ScoreBreakdown) finalize() {
	b.Total = min(max(b.sum(), 0), MaxScore)
}

func TrendScore(t Trend) int { return trendScores[t] }

func MigrationScore(s MigrationStatus) int { return migrationScores[s] }

// PushTermScore maps a 0-3 push score onto its term value.
func PushTermScore(pushScore int) int {
	return pushScores[min(max(pushScore, 0), forecast.MaxPushScore)]
}

func WeatherScore(r forecast.Rating) int { return weatherScores[r] }

// MagnitudeScore scales count against the largest count in the result set.
func MagnitudeScore(count *int64, maxCount int64) int {
	if count == nil || maxCount <= 0 || *count <= 0 {
		return 0
	}
	return int(jsRound(float64(*count) / float64(maxCount) * MaxMagnitudeScore))
}

func SeasonScore(open bool) int {
	if open {
		return SeasonOpenScore
	}
	return 0
}

func AnomalyScore(anomaly bool) int {
	if anomaly {
		return AnomalyBonus
	}
	return 0
}
