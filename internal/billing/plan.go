package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mmeshcher/gymmaster/internal/model"
)

// ErrInvalidPlan возвращается для идентификатора плана вне каталога.
var ErrInvalidPlan = errors.New("invalid plan")

var catalog = []model.Plan{
	model.PlanMonthly,
	model.PlanQuarterly,
	model.PlanSemiannual,
	model.PlanAnnual,
}

var aliases = map[string]model.Plan{
	"monthly":    model.PlanMonthly,
	"mensal":     model.PlanMonthly,
	"quarterly":  model.PlanQuarterly,
	"trimestral": model.PlanQuarterly,
	"semiannual": model.PlanSemiannual,
	"semestral":  model.PlanSemiannual,
	"annual":     model.PlanAnnual,
	"anual":      model.PlanAnnual,
}

// Plans возвращает все планы каталога.
func Plans() []model.Plan {
	res := make([]model.Plan, len(catalog))
	copy(res, catalog)
	return res
}

// ParsePlan приводит строку к плану каталога.
func ParsePlan(s string) (model.Plan, error) {
	p, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidPlan, s)
	}
	return p, nil
}

// RenewalPeriod возвращает длительность продления плана в расчётных месяцах.
func RenewalPeriod(p model.Plan) (int, error) {
	switch p {
	case model.PlanMonthly:
		return 1, nil
	case model.PlanQuarterly:
		return 3, nil
	case model.PlanSemiannual:
		return 6, nil
	case model.PlanAnnual:
		return 12, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidPlan, string(p))
	}
}
