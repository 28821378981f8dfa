package scoring

// MetricSet holds the raw aggregates for one owner over a date window.
// Pointer fields are nil when the window has no underlying data for that
// metric; a nil average means "no data" and is excluded from scoring rather
// than treated as zero.
type MetricSet struct {
	DeliveriesCompleted int      `json:"deliveries_completed"`
	AvgResponseHours    *float64 `json:"avg_response_hours"`
	AvgSatisfaction     *float64 `json:"avg_satisfaction"` // 0-10 survey scale
	AtRiskCompanies     int      `json:"at_risk_companies"`
	TotalCompanies      int      `json:"total_companies"`
	MeetingsHeld        int      `json:"meetings_held"`
}

// ScoreBreakdown is the result of scoring a MetricSet: the weighted composite
// plus each sub-score and the effective weight it carried. Sub-scores with no
// underlying data are absent from both maps.
type ScoreBreakdown struct {
	Score     float64            `json:"score"`
	SubScores map[string]float64 `json:"sub_scores"`
	Weights   map[string]float64 `json:"weights"`
}
