package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// evaluateFormula computes a composite metric value from its formula
// payload and the per-metric input values.
//
// Two shapes are supported:
//
//	{"type": "arithmetic", "expression": "{a} * 2 + {b}",
//	 "variables": {"a": {"metric": "api_calls"}, "b": {"metric": "data_gb"}}}
//	{"type": "function", "function": "weighted_sum",
//	 "weights": {"api_calls": 2.0, "data_gb": 0.5}}
func evaluateFormula(formula map[string]any, inputs map[string]decimal.Decimal) (decimal.Decimal, error) {
	formulaType, _ := formula["type"].(string)

	switch formulaType {
	case "arithmetic":
		expression, _ := formula["expression"].(string)
		if strings.TrimSpace(expression) == "" {
			return decimal.Zero, fmt.Errorf("missing expression in formula")
		}

		variables, _ := formula["variables"].(map[string]any)
		substituted := expression
		for varName, rawConfig := range variables {
			config, _ := rawConfig.(map[string]any)
			sourceMetric, _ := config["metric"].(string)
			value, ok := inputs[sourceMetric]
			if !ok {
				return decimal.Zero, fmt.Errorf("missing value for metric %s", sourceMetric)
			}
			substituted = strings.ReplaceAll(substituted, "{"+varName+"}", value.String())
		}

		return evalExpression(substituted)

	case "function":
		funcName, _ := formula["function"].(string)
		if funcName == "weighted_sum" {
			weights, _ := formula["weights"].(map[string]any)
			result := decimal.Zero
			for metricName, rawWeight := range weights {
				value, ok := inputs[metricName]
				if !ok {
					return decimal.Zero, fmt.Errorf("missing value for metric %s", metricName)
				}
				weight, err := toDecimal(rawWeight)
				if err != nil {
					return decimal.Zero, fmt.Errorf("invalid weight for metric %s", metricName)
				}
				result = result.Add(value.Mul(weight))
			}
			return result, nil
		}
		return decimal.Zero, fmt.Errorf("unknown function: %s", funcName)

	default:
		return decimal.Zero, fmt.Errorf("unknown formula type: %s", formulaType)
	}
}

func toDecimal(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		return decimal.NewFromString(v)
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Zero, fmt.Errorf("unsupported numeric type %T", raw)
	}
}

// evalExpression evaluates a plain arithmetic expression. The token
// alphabet is restricted to digits, decimal points, the operators
// + - * / ( ), and whitespace; anything else is rejected before any
// value is computed.
func evalExpression(input string) (decimal.Decimal, error) {
	for _, r := range input {
		if !isAllowedRune(r) {
			return decimal.Zero, fmt.Errorf("disallowed token %q in expression", string(r))
		}
	}

	p := &exprParser{input: []rune(input)}
	result, err := p.parseExpr()
	if err != nil {
		return decimal.Zero, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return decimal.Zero, fmt.Errorf("unexpected token %q at position %d", string(p.input[p.pos]), p.pos)
	}
	return result, nil
}

func isAllowedRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r == '.', r == '+', r == '-', r == '*', r == '/', r == '(', r == ')':
		return true
	case r == ' ', r == '\t', r == '\n', r == '\r':
		return true
	default:
		return false
	}
}

// exprParser is a recursive-descent evaluator over the restricted
// grammar: expr := term (('+'|'-') term)*; term := factor (('*'|'/')
// factor)*; factor := ('+'|'-')* (number | '(' expr ')').
type exprParser struct {
	input []rune
	pos   int
}

func (p *exprParser) parseExpr() (decimal.Decimal, error) {
	left, err := p.parseTerm()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return left, nil
		}
		switch p.input[p.pos] {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return decimal.Zero, err
			}
			left = left.Add(right)
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return decimal.Zero, err
			}
			left = left.Sub(right)
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseTerm() (decimal.Decimal, error) {
	left, err := p.parseFactor()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return left, nil
		}
		switch p.input[p.pos] {
		case '*':
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return decimal.Zero, err
			}
			left = left.Mul(right)
		case '/':
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return decimal.Zero, err
			}
			if right.IsZero() {
				return decimal.Zero, fmt.Errorf("division by zero")
			}
			left = left.Div(right)
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseFactor() (decimal.Decimal, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return decimal.Zero, fmt.Errorf("unexpected end of expression")
	}

	switch p.input[p.pos] {
	case '+':
		p.pos++
		return p.parseFactor()
	case '-':
		p.pos++
		value, err := p.parseFactor()
		if err != nil {
			return decimal.Zero, err
		}
		return value.Neg(), nil
	case '(':
		p.pos++
		value, err := p.parseExpr()
		if err != nil {
			return decimal.Zero, err
		}
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return decimal.Zero, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return value, nil
	}

	return p.parseNumber()
}

func (p *exprParser) parseNumber() (decimal.Decimal, error) {
	start := p.pos
	sawDigit := false
	for p.pos < len(p.input) {
		r := p.input[p.pos]
		if r >= '0' && r <= '9' {
			sawDigit = true
			p.pos++
			continue
		}
		if r == '.' {
			p.pos++
			continue
		}
		break
	}
	if !sawDigit {
		return decimal.Zero, fmt.Errorf("expected number at position %d", start)
	}
	value, err := decimal.NewFromString(string(p.input[start:p.pos]))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", string(p.input[start:p.pos]))
	}
	return value, nil
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) {
		switch p.input[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}
