package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

func TestEvalExpression_Precedence(t *testing.T) {
	result, err := evalExpression("2 + 3 * 4")
	require.NoError(t, err)
	assert.True(t, dec("14").Equal(result))

	result, err = evalExpression("(2 + 3) * 4")
	require.NoError(t, err)
	assert.True(t, dec("20").Equal(result))

	result, err = evalExpression("10 / 4")
	require.NoError(t, err)
	assert.True(t, dec("2.5").Equal(result))
}

func TestEvalExpression_UnaryMinus(t *testing.T) {
	result, err := evalExpression("-5 + 3")
	require.NoError(t, err)
	assert.True(t, dec("-2").Equal(result))

	result, err = evalExpression("2 * -3")
	require.NoError(t, err)
	assert.True(t, dec("-6").Equal(result))
}

func TestEvalExpression_RejectsDisallowedTokens(t *testing.T) {
	cases := []string{
		"__import__('os')",
		"2 + x",
		"len(1)",
		"2 ** 3",
		"1; 2",
	}
	for _, expr := range cases {
		_, err := evalExpression(expr)
		assert.Error(t, err, "expression %q must be rejected", expr)
	}
}

func TestEvalExpression_DivisionByZero(t *testing.T) {
	_, err := evalExpression("1 / 0")
	assert.Error(t, err)

	_, err = evalExpression("1 / (2 - 2)")
	assert.Error(t, err)
}

func TestEvalExpression_MalformedInput(t *testing.T) {
	for _, expr := range []string{"", "1 +", "(1 + 2", "1 2", ".."} {
		_, err := evalExpression(expr)
		assert.Error(t, err, "expression %q must be rejected", expr)
	}
}

func TestEvaluateFormula_Arithmetic(t *testing.T) {
	formula := map[string]any{
		"type":       "arithmetic",
		"expression": "{calls} * 2 + {gb}",
		"variables": map[string]any{
			"calls": map[string]any{"metric": "api_calls"},
			"gb":    map[string]any{"metric": "data_gb"},
		},
	}
	inputs := map[string]decimal.Decimal{
		"api_calls": dec("100"),
		"data_gb":   dec("5.5"),
	}

	result, err := evaluateFormula(formula, inputs)
	require.NoError(t, err)
	assert.True(t, dec("205.5").Equal(result))
}

func TestEvaluateFormula_ArithmeticMissingInput(t *testing.T) {
	formula := map[string]any{
		"type":       "arithmetic",
		"expression": "{calls} * 2",
		"variables": map[string]any{
			"calls": map[string]any{"metric": "api_calls"},
		},
	}

	_, err := evaluateFormula(formula, map[string]decimal.Decimal{})
	assert.ErrorContains(t, err, "missing value for metric api_calls")
}

func TestEvaluateFormula_WeightedSum(t *testing.T) {
	formula := map[string]any{
		"type":     "function",
		"function": "weighted_sum",
		"weights": map[string]any{
			"api_calls": 0.5,
			"data_gb":   2.0,
		},
	}
	inputs := map[string]decimal.Decimal{
		"api_calls": dec("100"),
		"data_gb":   dec("3"),
	}

	result, err := evaluateFormula(formula, inputs)
	require.NoError(t, err)
	assert.True(t, dec("56").Equal(result))
}

func TestEvaluateFormula_UnknownShapes(t *testing.T) {
	_, err := evaluateFormula(map[string]any{"type": "magic"}, nil)
	assert.ErrorContains(t, err, "unknown formula type")

	_, err = evaluateFormula(map[string]any{"type": "function", "function": "median"}, nil)
	assert.ErrorContains(t, err, "unknown function")

	_, err = evaluateFormula(map[string]any{"type": "arithmetic"}, nil)
	assert.ErrorContains(t, err, "missing expression")
}
