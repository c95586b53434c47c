package analysis

import "math"

// Remediation cost table, minutes per open issue.
var remediationMinutes = map[Severity]float64{
	SeverityInfo:     5,
	SeverityMinor:    10,
	SeverityMajor:    20,
	SeverityCritical: 60,
	SeverityBlocker:  120,
}

// Development cost in minutes per line: 30 person-days per 25,000 lines
// at 8h/day.
const developmentCostPerLine = 0.576

// DefaultLinesOfCode applies when no lines_of_code metric was stored.
const DefaultLinesOfCode = 10000

// MetricLinesOfCode is the stored metric key the calculator reads.
const MetricLinesOfCode = "lines_of_code"

// MetricDebtRatio is emitted so the next analysis can gate on it.
const MetricDebtRatio = "debt_ratio"

type DebtResult struct {
	RemediationCost float64
	DevelopmentCost float64
	DebtRatio       float64
	Rating          Rating
}

// ComputeDebt converts the open-issue severities of an analysis into a
// remediation estimate and a maintainability rating.
func ComputeDebt(openSeverities []Severity, linesOfCode float64) DebtResult {
	if linesOfCode <= 0 {
		linesOfCode = DefaultLinesOfCode
	}

	var remediation float64
	for _, severity := range openSeverities {
		remediation += remediationMinutes[severity]
	}

	development := linesOfCode * developmentCostPerLine

	var ratio float64
	if development > 0 {
		ratio = round2(remediation / development * 100)
	}

	return DebtResult{
		RemediationCost: remediation,
		DevelopmentCost: development,
		DebtRatio:       ratio,
		Rating:          RatingForRatio(ratio),
	}
}

// RatingForRatio maps a debt ratio percentage to a letter rating with
// inclusive upper bounds.
func RatingForRatio(ratio float64) Rating {
	switch {
	case ratio <= 5:
		return RatingA
	case ratio <= 10:
		return RatingB
	case ratio <= 20:
		return RatingC
	case ratio <= 50:
		return RatingD
	default:
		return RatingE
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
