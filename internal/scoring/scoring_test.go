package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/prospect-cadence/internal/domain"
)

func TestDefaultRules(t *testing.T) {
	strong := &domain.Lead{Company: "Padaria Sol", Website: "https://sol.com.br", Rating: 4.7, Reviews: 320}
	weak := &domain.Lead{Rating: 2.1, Reviews: 3}

	s := RuleScorer{}
	got := s.Score(strong, nil)
	assert.Equal(t, 90, got.Score)
	assert.Equal(t, 25, got.Breakdown["rating gte 4.0"])

	assert.Equal(t, 0, s.Score(weak, nil).Score, "negative totals clamp to zero")
}

func TestCustomRulesClampAtMax(t *testing.T) {
	rules := []Rule{
		{Field: "category", Operator: OpContains, Value: "padaria", Points: 80},
		{Field: "city", Operator: OpEquals, Value: "campinas", Points: 40},
	}
	lead := &domain.Lead{Category: "Padaria e Confeitaria", City: "Campinas"}
	assert.Equal(t, MaxScore, RuleScorer{}.Score(lead, rules).Score)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(DefaultRules))
	assert.Error(t, Validate([]Rule{{Field: "shoe_size", Operator: OpEquals, Value: "42"}}))
	assert.Error(t, Validate([]Rule{{Field: "rating", Operator: OpGte, Value: "high"}}))
	assert.Error(t, Validate([]Rule{{Field: "city", Operator: OpEquals}}))
	assert.Error(t, Validate([]Rule{{Field: "city", Operator: "near"}}))
}
