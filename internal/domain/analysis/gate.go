package analysis

// GateCondition is one configured threshold over an aggregated metric.
type GateCondition struct {
	MetricKey string
	Operator  GateOperator
	Threshold float64
	Scope     GateScope
}

type ConditionResult struct {
	Condition GateCondition
	Actual    float64
	Passed    bool
}

type GateResult struct {
	Status     GateStatus
	Conditions []ConditionResult
}

// EvaluateGate is a pure function of the conditions and the two metric
// snapshots; re-evaluation with the same inputs yields the same result.
// Callers with no configured gate report GateStatusUnknown instead.
func EvaluateGate(conditions []GateCondition, allMetrics, newMetrics map[string]float64) GateResult {
	result := GateResult{
		Status:     GateStatusPass,
		Conditions: make([]ConditionResult, 0, len(conditions)),
	}

	for _, cond := range conditions {
		metrics := allMetrics
		if cond.Scope == ScopeNew {
			metrics = newMetrics
		}
		actual := metrics[cond.MetricKey] // absent metric reads as 0

		passed := compare(actual, cond.Operator, cond.Threshold)
		if !passed {
			result.Status = GateStatusFail
		}
		result.Conditions = append(result.Conditions, ConditionResult{
			Condition: cond,
			Actual:    actual,
			Passed:    passed,
		})
	}

	return result
}

// compare holds iff the actual value does NOT violate the threshold: a
// GT condition fails when actual > threshold.
func compare(actual float64, op GateOperator, threshold float64) bool {
	switch op {
	case OperatorGT:
		return !(actual > threshold)
	case OperatorLT:
		return !(actual < threshold)
	case OperatorEQ:
		return actual != threshold
	default:
		return true
	}
}
