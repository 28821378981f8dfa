package scoring

import "math"

// Sub-score names, as persisted in snapshot breakdowns.
const (
	SubResponsiveness = "responsiveness"
	SubSatisfaction   = "satisfaction"
	SubThroughput     = "throughput"
	SubRetention      = "retention"
	SubEngagement     = "engagement"
)

// subScoreWeights must sum to 1.0 across all sub-scores.
var subScoreWeights = map[string]float64{
	SubResponsiveness: 0.25,
	SubSatisfaction:   0.30,
	SubThroughput:     0.20,
	SubRetention:      0.15,
	SubEngagement:     0.10,
}

// Normalization ceilings for the trailing 30-day window. Values at or above
// a ceiling map to 100. Tunable constants pending product sign-off.
const (
	responseCeilingHours = 48.0 // avg first-response latency; 0h -> 100, 48h+ -> 0
	satisfactionCeiling  = 9.0  // avg survey score out of 10
	throughputCeiling    = 10.0 // completed deliveries
	engagementCeiling    = 8.0  // held meetings
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// scaleToCeiling maps value linearly onto [0,100] against a target ceiling.
func scaleToCeiling(value, ceiling float64) float64 {
	return clamp(100*value/ceiling, 0, 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// CalculateScore maps a MetricSet to a normalized composite score with its
// per-sub-score breakdown. Pure and deterministic: the same input always
// yields the same output. Sub-scores whose input metric is nil (or has no
// population, for retention) are dropped and the remaining weights are
// renormalized proportionally, so an owner with partial data is scored only
// on what is known instead of being penalized to zero.
func CalculateScore(m MetricSet) ScoreBreakdown {
	subs := make(map[string]float64)

	if m.AvgResponseHours != nil {
		subs[SubResponsiveness] = clamp(100*(1-*m.AvgResponseHours/responseCeilingHours), 0, 100)
	}
	if m.AvgSatisfaction != nil {
		subs[SubSatisfaction] = scaleToCeiling(*m.AvgSatisfaction, satisfactionCeiling)
	}
	subs[SubThroughput] = scaleToCeiling(float64(m.DeliveriesCompleted), throughputCeiling)
	if m.TotalCompanies > 0 {
		retained := 1 - float64(m.AtRiskCompanies)/float64(m.TotalCompanies)
		subs[SubRetention] = clamp(100*retained, 0, 100)
	}
	subs[SubEngagement] = scaleToCeiling(float64(m.MeetingsHeld), engagementCeiling)

	var totalWeight float64
	for name := range subs {
		totalWeight += subScoreWeights[name]
	}

	// Throughput and engagement are count-based and always present, so
	// totalWeight is never zero.
	weights := make(map[string]float64, len(subs))
	var composite float64
	for name, s := range subs {
		w := subScoreWeights[name] / totalWeight
		weights[name] = w
		composite += w * s
	}

	return ScoreBreakdown{
		Score:     round2(clamp(composite, 0, 100)),
		SubScores: subs,
		Weights:   weights,
	}
}
