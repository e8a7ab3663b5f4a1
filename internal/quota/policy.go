package quota

import (
	"fmt"

	"app/internal/model"
)

// plans is the static plan table. Plans never change at runtime; changing a
// limit is a deploy.
var plans = map[string]model.Plan{
	"anonymous": {
		ID:          "anonymous",
		DisplayName: "Anonymous",
		Tier:        model.TierAnonymous,
		Limits: model.PlanLimits{
			MonthlyOperations:    30,
			MaxOperationsPerDay:  10,
			MaxOperationsPerHour: 5,
			ResetPolicy:          "rolling",
			MaxFileSizeBytes:     10 << 20,
		},
	},
	"free": {
		ID:          "free",
		DisplayName: "Free",
		Tier:        model.TierFree,
		Limits: model.PlanLimits{
			MonthlyOperations:    300,
			MaxOperationsPerDay:  100,
			MaxOperationsPerHour: 30,
			ResetPolicy:          "rolling",
			MaxFileSizeBytes:     25 << 20,
		},
	},
	"pro": {
		ID:          "pro",
		DisplayName: "Pro",
		Tier:        model.TierPro,
		Limits: model.PlanLimits{
			MonthlyOperations:    5000,
			MaxOperationsPerDay:  1000,
			MaxOperationsPerHour: 200,
			ResetPolicy:          "rolling",
			MaxFileSizeBytes:     200 << 20,
		},
	},
	"enterprise": {
		ID:          "enterprise",
		DisplayName: "Enterprise",
		Tier:        model.TierEnterprise,
		Limits: model.PlanLimits{
			// Zero means unlimited.
			MonthlyOperations:    0,
			MaxOperationsPerDay:  0,
			MaxOperationsPerHour: 0,
			ResetPolicy:          "rolling",
			MaxFileSizeBytes:     2 << 30,
		},
	},
}

// GetPlan looks up a plan by ID.
func GetPlan(planID string) (model.Plan, error) {
	p, ok := plans[planID]
	if !ok {
		return model.Plan{}, fmt.Errorf("unknown plan %q", planID)
	}
	return p, nil
}

// CheckOperationLimits evaluates the requested operations against every
// finite window of the plan. When more than one window is violated the
// narrowest one wins, so a caller always sees the limit that recovers
// soonest. Remaining is the minimum headroom across all finite windows.
func CheckOperationLimits(planID string, monthlyUsed, dailyUsed, hourlyUsed, requestedOps int) (model.OperationResult, error) {
	plan, err := GetPlan(planID)
	if err != nil {
		return model.OperationResult{}, err
	}

	windows := []struct {
		name  string
		used  int
		limit int
	}{
		{"hourly", hourlyUsed, plan.Limits.MaxOperationsPerHour},
		{"daily", dailyUsed, plan.Limits.MaxOperationsPerDay},
		{"monthly", monthlyUsed, plan.Limits.MonthlyOperations},
	}

	res := model.OperationResult{Allowed: true, PlanID: planID, Remaining: -1}
	for _, w := range windows {
		if w.limit <= 0 {
			continue // unlimited window
		}
		headroom := w.limit - w.used
		if headroom < 0 {
			headroom = 0
		}
		if res.Remaining < 0 || headroom < res.Remaining {
			res.Remaining = headroom
		}
		if res.Allowed && w.used+requestedOps > w.limit {
			res.Allowed = false
			res.LimitType = w.name
			res.Message = fmt.Sprintf("%s operation limit reached for plan %s", w.name, planID)
		}
	}
	if res.Remaining < 0 {
		res.Remaining = 0 // all windows unlimited; headroom is meaningless
	}
	return res, nil
}
