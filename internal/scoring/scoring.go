// Package scoring ranks leads with point-based rules. The score is computed
// once at enrollment and cached as the link priority; dispatch orders by
// that cached value.
package scoring

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ignite/prospect-cadence/internal/domain"
)

// Operator compares a lead field against a rule value.
type Operator string

const (
	OpEquals     Operator = "equals"
	OpNotEquals  Operator = "not_equals"
	OpContains   Operator = "contains"
	OpGte        Operator = "gte"
	OpLte        Operator = "lte"
	OpIsEmpty    Operator = "is_empty"
	OpIsNotEmpty Operator = "is_not_empty"
)

// Rule awards Points when Field satisfies Operator against Value.
type Rule struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    string   `json:"value,omitempty" yaml:"value"`
	Points   int      `json:"points" yaml:"points"`
}

// Result is a score with per-rule contributions.
type Result struct {
	Score     int            `json:"score"`
	Breakdown map[string]int `json:"breakdown"`
}

// MaxScore caps the total.
const MaxScore = 100

// DefaultRules favors established, reachable businesses.
var DefaultRules = []Rule{
	{Field: "website", Operator: OpIsNotEmpty, Points: 20},
	{Field: "rating", Operator: OpGte, Value: "4.0", Points: 25},
	{Field: "reviews", Operator: OpGte, Value: "50", Points: 25},
	{Field: "reviews", Operator: OpGte, Value: "200", Points: 10},
	{Field: "company", Operator: OpIsNotEmpty, Points: 10},
	{Field: "rating", Operator: OpLte, Value: "2.5", Points: -20},
}

// Scorer computes lead scores.
type Scorer interface {
	Score(lead *domain.Lead, rules []Rule) Result
}

// RuleScorer is the default Scorer.
type RuleScorer struct{}

// Score sums the points of every matching rule, clamped to [0, MaxScore].
// A nil rule set uses DefaultRules.
func (RuleScorer) Score(lead *domain.Lead, rules []Rule) Result {
	if rules == nil {
		rules = DefaultRules
	}
	res := Result{Breakdown: make(map[string]int)}
	for _, r := range rules {
		if !matches(lead, r) {
			continue
		}
		res.Score += r.Points
		res.Breakdown[r.key()] = r.Points
	}
	if res.Score < 0 {
		res.Score = 0
	}
	if res.Score > MaxScore {
		res.Score = MaxScore
	}
	return res
}

func (r Rule) key() string {
	if r.Value == "" {
		return fmt.Sprintf("%s %s", r.Field, r.Operator)
	}
	return fmt.Sprintf("%s %s %s", r.Field, r.Operator, r.Value)
}

func field(lead *domain.Lead, name string) (string, bool) {
	switch name {
	case "name":
		return lead.Name, true
	case "company":
		return lead.Company, true
	case "city":
		return lead.City, true
	case "category":
		return lead.Category, true
	case "website":
		return lead.Website, true
	case "phone":
		return lead.Phone, true
	case "rating":
		return strconv.FormatFloat(lead.Rating, 'f', -1, 64), true
	case "reviews":
		return strconv.Itoa(lead.Reviews), true
	default:
		return "", false
	}
}

func matches(lead *domain.Lead, r Rule) bool {
	v, ok := field(lead, r.Field)
	if !ok {
		return false
	}
	switch r.Operator {
	case OpEquals:
		return strings.EqualFold(v, r.Value)
	case OpNotEquals:
		return !strings.EqualFold(v, r.Value)
	case OpContains:
		return strings.Contains(strings.ToLower(v), strings.ToLower(r.Value))
	case OpIsEmpty:
		return strings.TrimSpace(v) == ""
	case OpIsNotEmpty:
		return strings.TrimSpace(v) != ""
	case OpGte, OpLte:
		got, err1 := strconv.ParseFloat(v, 64)
		want, err2 := strconv.ParseFloat(r.Value, 64)
		if err1 != nil || err2 != nil {
			return false
		}
		if r.Operator == OpGte {
			return got >= want
		}
		return got <= want
	default:
		return false
	}
}

// Validate reports the first malformed rule.
func Validate(rules []Rule) error {
	for i, r := range rules {
		if _, ok := field(&domain.Lead{}, r.Field); !ok {
			return fmt.Errorf("rule %d: unknown field %q", i, r.Field)
		}
		switch r.Operator {
		case OpEquals, OpNotEquals, OpContains:
		case OpIsEmpty, OpIsNotEmpty:
			continue
		case OpGte, OpLte:
			if _, err := strconv.ParseFloat(r.Value, 64); err != nil {
				return fmt.Errorf("rule %d: %s needs a number, got %q", i, r.Operator, r.Value)
			}
			continue
		default:
			return fmt.Errorf("rule %d: unknown operator %q", i, r.Operator)
		}
		if r.Value == "" {
			return fmt.Errorf("rule %d: %s requires a value", i, r.Operator)
		}
	}
	return nil
}
