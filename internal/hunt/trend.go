package hunt

import "math"

type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendStable     Trend = "stable"
	TrendDecreasing Trend = "decreasing"
	TrendNew        Trend = "new"
	TrendNoData     Trend = "no_data"
)

type MigrationStatus string

const (
	StatusArriving    MigrationStatus = "arriving"
	StatusBuilding    MigrationStatus = "building"
	StatusPeak        MigrationStatus = "peak"
	StatusDeclining   MigrationStatus = "declining"
	StatusDeparting   MigrationStatus = "departing"
	StatusFirstSurvey MigrationStatus = "first_survey"
	StatusNoData      MigrationStatus = "no_data"
)

const (
	// StablePercent is the band either side of zero treated as no change.
	StablePercent = 5.0
	// FastChangePercent separates arriving/building and departing/declining.
	FastChangePercent = 20.0

	AnomalyMinCount        = 500
	AnomalyMinDeltaPercent = 30.0
)

// TrendResult is the change between the latest and previous survey.
// DeltaPercent has one decimal place and is nil when previous is zero.
type TrendResult struct {
	Trend        Trend
	Delta        *int64
	DeltaPercent *float64
}

// ComputeTrend classifies the change from previous to count.
func ComputeTrend(count, previous *int64) TrendResult {
	if count == nil {
		return TrendResult{Trend: TrendNoData}
	}
	if previous == nil {
		return TrendResult{Trend: TrendNew}
	}

	delta := *count - *previous
	res := TrendResult{Delta: &delta}
	if *previous != 0 {
		pct := jsRound(float64(delta)/float64(*previous)*1000) / 10
		res.DeltaPercent = &pct
	}

	switch {
	case res.DeltaPercent != nil && math.Abs(*res.DeltaPercent) < StablePercent:
		res.Trend = TrendStable
	case delta > 0:
		res.Trend = TrendIncreasing
	case delta < 0:
		res.Trend = TrendDecreasing
	default:
		res.Trend = TrendStable
	}
	return res
}

// StatusFor maps a trend to a migration status. A change with no
// percentage (previous count zero) is never fast, so it maps to building or
// declining.
func StatusFor(trend Trend, deltaPercent *float64) MigrationStatus {
	switch trend {
	case TrendNew:
		return StatusFirstSurvey
	case TrendIncreasing:
		if deltaPercent != nil && *deltaPercent > FastChangePercent {
			return StatusArriving
		}
		return StatusBuilding
	case TrendStable:
		return StatusPeak
	case TrendDecreasing:
		if deltaPercent != nil && *deltaPercent < -FastChangePercent {
			return StatusDeparting
		}
		return StatusDeclining
	default:
		return StatusNoData
	}
}

// IsAnomaly flags a large jump on a count big enough to trust the percentage.
func IsAnomaly(count *int64, deltaPercent *float64) bool {
	return count != nil && deltaPercent != nil &&
		*deltaPercent >= AnomalyMinDeltaPercent && *count >= AnomalyMinCount
}

// jsRound rounds half up, matching the scores already published to clients.
func jsRound(x float64) float64 {
	return math.Floor(x + 0.5)
}
