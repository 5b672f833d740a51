package performance

import "strings"

// TotalWeight sums the weights of every KPI across all objectives.
func TotalWeight(objectives []Objective) int {
	total := 0
	for _, obj := range objectives {
		for _, kpi := range obj.KPIs {
			total += kpi.Weight
		}
	}
	return total
}

// WeightExceeded is advisory; it never blocks a Draft edit.
func WeightExceeded(objectives []Objective) bool {
	return TotalWeight(objectives) > RequiredTotalWeight
}

func WeightComplete(objectives []Objective) bool {
	return TotalWeight(objectives) == RequiredTotalWeight
}

func validateKPIInput(in KPIInput, siblings []KPI, selfID string) *ValidationError {
	verr := &ValidationError{}
	if strings.TrimSpace(in.Indicator) == "" {
		verr.add("indicator", "required")
	}
	if in.Weight < MinKPIWeight || in.Weight > MaxKPIWeight {
		verr.add("weight", "must be between 1 and 100")
	}
	key := normalizeKey(in.Indicator)
	for _, kpi := range siblings {
		if kpi.ID == selfID {
			continue
		}
		if key != "" && normalizeKey(kpi.Indicator) == key {
			verr.add("indicator", "duplicate indicator within objective")
			break
		}
	}
	return verr
}

func normalizeKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func sameTriple(a Objective, perspectiveID, name, initiative string) bool {
	return normalizeKey(a.PerspectiveID) == normalizeKey(perspectiveID) &&
		normalizeKey(a.Name) == normalizeKey(name) &&
		normalizeKey(a.Initiative) == normalizeKey(initiative)
}
