package postprocess

type RiskLevel string

const (
	RiskSafe   RiskLevel = "Safe"
	RiskLow    RiskLevel = "Low Risk"
	RiskMedium RiskLevel = "Medium Risk"
	RiskHigh   RiskLevel = "High Risk"
)

// Coverage thresholds in percent. A value equal to a threshold falls into
// the lower tier.
const (
	HighRiskAbove   = 2.0
	MediumRiskAbove = 0.5
	LowRiskAbove    = 0.1
)

func ClassifyRisk(coverage float64) RiskLevel {
	switch {
	case coverage > HighRiskAbove:
		return RiskHigh
	case coverage > MediumRiskAbove:
		return RiskMedium
	case coverage > LowRiskAbove:
		return RiskLow
	default:
		return RiskSafe
	}
}

// Rank orders tiers from Safe (0) to High Risk (3).
func (r RiskLevel) Rank() int {
	switch r {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

type Recommendation struct {
	Priority string `json:"priority"`
	Action   string `json:"action"`
}

// Recommendations returns the fixed follow-up actions for a tier.
func (r RiskLevel) Recommendations() []Recommendation {
	if r == RiskHigh || r == RiskMedium {
		return []Recommendation{
			{Priority: "urgent", Action: "Schedule consultation with an oncologist for further evaluation"},
			{Priority: "urgent", Action: "Biopsy recommended for histopathological confirmation"},
			{Priority: "monitoring", Action: "Close monitoring with follow-up imaging"},
		}
	}
	return []Recommendation{
		{Priority: "routine", Action: "Monitor during next routine screening"},
		{Priority: "routine", Action: "Continue standard screening interval"},
	}
}
