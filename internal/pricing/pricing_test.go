package pricing

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func threeTierComponent() Component {
	return Component{
		DisplayName: "API Calls",
		MetricName:  "api_calls",
		Type:        TypeTiered,
		Details: map[string]any{
			"tiers": []any{
				map[string]any{"start": 0.0, "end": 1000.0, "price": 0.01},
				map[string]any{"start": 1000.0, "end": 10000.0, "price": 0.005},
				map[string]any{"start": 10000.0, "price": 0.002},
			},
		},
	}
}

func TestEvaluateFlat(t *testing.T) {
	e := New(zap.NewNop())

	component := Component{
		DisplayName: "Base Fee",
		Type:        TypeFlat,
		Details:     map[string]any{"amount": 49.99},
	}

	for _, q := range []string{"0", "1", "100000"} {
		result := e.Evaluate(component, dec(q))
		assert.True(t, result.Charge.Equal(dec("49.99")), "q=%s charge=%s", q, result.Charge)
		assert.True(t, result.UnitPrice.Equal(dec("49.99")))
	}
	assert.Equal(t, "Flat fee for Base Fee", e.Evaluate(component, dec("5")).Description)

	component.Type = TypeSubscription
	result := e.Evaluate(component, dec("5"))
	assert.True(t, result.Charge.Equal(dec("49.99")))
	assert.Equal(t, "Subscription fee for Base Fee", result.Description)
}

func TestEvaluateTieredCrossing(t *testing.T) {
	e := New(zap.NewNop())

	result := e.Evaluate(threeTierComponent(), dec("1500"))

	require.True(t, result.Charge.Equal(dec("12.5")), "charge=%s", result.Charge)
	expectedUnit := dec("12.5").Div(dec("1500"))
	assert.True(t, result.UnitPrice.Equal(expectedUnit), "unit=%s", result.UnitPrice)
	assert.Contains(t, result.Description, "Tiered pricing for API Calls")
	assert.Contains(t, result.Description, "1000 units @ $0.01/unit = $10")
	assert.Contains(t, result.Description, "500 units @ $0.005/unit = $2.5")
}

func TestEvaluateTieredBoundaries(t *testing.T) {
	e := New(zap.NewNop())
	component := threeTierComponent()

	cases := []struct {
		quantity string
		charge   string
	}{
		{"0", "0"},
		{"1000", "10"},
		{"10000", "55"},
		{"12000", "59"},
	}
	for _, tc := range cases {
		result := e.Evaluate(component, dec(tc.quantity))
		assert.True(t, result.Charge.Equal(dec(tc.charge)),
			"q=%s expected %s got %s", tc.quantity, tc.charge, result.Charge)
	}

	zero := e.Evaluate(component, dec("0"))
	assert.True(t, zero.UnitPrice.IsZero())
}

func TestEvaluateTieredAdditivity(t *testing.T) {
	e := New(zap.NewNop())
	component := threeTierComponent()

	// Splitting usage across a boundary and charging the pieces
	// marginally equals charging the total.
	total := e.Evaluate(component, dec("1500")).Charge
	first := e.Evaluate(component, dec("900")).Charge
	remainder := total.Sub(first)
	assert.True(t, first.Add(remainder).Equal(total))
	assert.True(t, remainder.Equal(dec("3.5")), "remainder=%s", remainder)
}

func TestEvaluateVolumeSelection(t *testing.T) {
	e := New(zap.NewNop())

	component := Component{
		DisplayName: "Data Transfer",
		Type:        TypeVolume,
		Details: map[string]any{
			"tiers": []any{
				map[string]any{"start": 0.0, "price": 0.10},
				map[string]any{"start": 100.0, "price": 0.08},
				map[string]any{"start": 1000.0, "price": 0.06},
			},
		},
	}

	result := e.Evaluate(component, dec("150"))
	require.True(t, result.Charge.Equal(dec("12")), "charge=%s", result.Charge)
	assert.True(t, result.UnitPrice.Equal(dec("0.08")))
	assert.Contains(t, result.Description, "Volume pricing for Data Transfer")

	// Exactly on a tier start picks that tier.
	atBoundary := e.Evaluate(component, dec("1000"))
	assert.True(t, atBoundary.UnitPrice.Equal(dec("0.06")))

	// Below every start falls back to the first configured tier.
	component.Details = map[string]any{
		"tiers": []any{
			map[string]any{"start": 50.0, "price": 0.10},
			map[string]any{"start": 100.0, "price": 0.08},
		},
	}
	fallback := e.Evaluate(component, dec("10"))
	assert.True(t, fallback.UnitPrice.Equal(dec("0.10")))
}

func TestEvaluateGraduated(t *testing.T) {
	e := New(zap.NewNop())

	component := Component{
		DisplayName: "Storage",
		Type:        TypeGraduated,
		Details: map[string]any{
			"tiers": []any{
				map[string]any{"start": 0.0, "price": 0.05},
				map[string]any{"start": 500.0, "price": 0.04},
			},
		},
	}

	result := e.Evaluate(component, dec("600"))
	assert.True(t, result.Charge.Equal(dec("24")), "charge=%s", result.Charge)
	assert.True(t, result.UnitPrice.Equal(dec("0.04")))
	assert.Contains(t, result.Description, "(tier: 500+)")
}

func TestEvaluatePackageCeiling(t *testing.T) {
	e := New(zap.NewNop())

	component := Component{
		DisplayName: "API Calls",
		Type:        TypePackage,
		Details:     map[string]any{"package_size": 1000.0, "package_price": 5.0},
	}

	result := e.Evaluate(component, dec("1500"))
	require.True(t, result.Charge.Equal(dec("10")), "charge=%s", result.Charge)
	assert.Contains(t, result.Description, "2 packages of 1000 units")

	exact := e.Evaluate(component, dec("2000"))
	assert.True(t, exact.Charge.Equal(dec("10")))

	zero := e.Evaluate(component, dec("0"))
	assert.True(t, zero.Charge.IsZero())
	assert.True(t, zero.UnitPrice.IsZero())

	one := e.Evaluate(component, dec("1"))
	assert.True(t, one.Charge.Equal(dec("5")))
}

func TestEvaluateThresholdAggregation(t *testing.T) {
	e := New(zap.NewNop())

	component := Component{
		DisplayName: "Alerts",
		Type:        TypeThreshold,
		Details: map[string]any{
			"thresholds": []any{
				map[string]any{"threshold": 10.0, "price": 5.0},
				map[string]any{"threshold": 50.0, "price": 15.0},
				map[string]any{"threshold": 100.0, "price": 25.0},
			},
		},
	}

	result := e.Evaluate(component, dec("60"))
	require.True(t, result.Charge.Equal(dec("20")), "charge=%s", result.Charge)
	assert.Contains(t, result.Description, "Threshold 10 crossed: $5")
	assert.Contains(t, result.Description, "Threshold 50 crossed: $15")
	assert.NotContains(t, result.Description, "Threshold 100")

	all := e.Evaluate(component, dec("100"))
	assert.True(t, all.Charge.Equal(dec("45")))

	none := e.Evaluate(component, dec("9"))
	assert.True(t, none.Charge.IsZero())
}

func TestEvaluateUsageBasedSubscription(t *testing.T) {
	e := New(zap.NewNop())

	component := Component{
		DisplayName: "Platform",
		Type:        TypeUsageBasedSubscription,
		Details:     map[string]any{"base_fee": 20.0, "usage_price": 0.02},
	}

	result := e.Evaluate(component, dec("500"))
	assert.True(t, result.Charge.Equal(dec("30")), "charge=%s", result.Charge)
	assert.True(t, result.UnitPrice.Equal(dec("0.06")))

	// At zero usage only the base fee applies and it doubles as the
	// reported unit price.
	zero := e.Evaluate(component, dec("0"))
	assert.True(t, zero.Charge.Equal(dec("20")))
	assert.True(t, zero.UnitPrice.Equal(dec("20")))
}

func TestEvaluateTimeBased(t *testing.T) {
	e := New(zap.NewNop())

	component := Component{
		DisplayName: "Compute",
		Type:        TypeTimeBased,
		Details:     map[string]any{"rate_per_unit": 0.75, "unit": "hour"},
	}

	result := e.Evaluate(component, dec("8"))
	assert.True(t, result.Charge.Equal(dec("6")), "charge=%s", result.Charge)
	assert.True(t, result.UnitPrice.Equal(dec("0.75")))
	assert.Contains(t, result.Description, "8 hours @ $0.75/hour")
}

func TestEvaluateDimensionBased(t *testing.T) {
	e := New(zap.NewNop())

	component := Component{
		DisplayName: "Regional Compute",
		Type:        TypeDimensionBased,
		Details: map[string]any{
			"base_rate": 0.10,
			"dimensions": map[string]any{
				"region": map[string]any{"region": 1.0, "multiplier": 0.5},
			},
		},
	}

	// rate = 0.10 * (1 + 1*0.5) = 0.15
	result := e.Evaluate(component, dec("100"))
	assert.True(t, result.Charge.Equal(dec("15")), "charge=%s", result.Charge)
	assert.True(t, result.UnitPrice.Equal(dec("0.15")))
	assert.Contains(t, result.Description, "region: 1 (factor: 0.50)")

	component.Details = map[string]any{"base_rate": 0.10}
	plain := e.Evaluate(component, dec("100"))
	assert.True(t, plain.Charge.Equal(dec("10")))
	assert.Contains(t, plain.Description, "no dimension adjustments")
}

func TestEvaluateDynamic(t *testing.T) {
	e := New(zap.NewNop())

	component := Component{
		DisplayName: "Spot",
		Type:        TypeDynamic,
		Details:     map[string]any{"base_rate": 0.03, "formula": "demand * 1.2"},
	}

	result := e.Evaluate(component, dec("200"))
	assert.True(t, result.Charge.Equal(dec("6")), "charge=%s", result.Charge)
	assert.Contains(t, result.Description, "formula: demand * 1.2")
}

func TestEvaluateUnknownType(t *testing.T) {
	e := New(zap.NewNop())

	result := e.Evaluate(Component{DisplayName: "Mystery", Type: Type("surge")}, dec("10"))
	assert.True(t, result.Charge.IsZero())
	assert.True(t, result.UnitPrice.IsZero())
	assert.Equal(t, "Unknown pricing type for Mystery", result.Description)
}

func TestEvaluateMalformedDetails(t *testing.T) {
	e := New(zap.NewNop())

	cases := []Component{
		{DisplayName: "A", Type: TypeFlat, Details: map[string]any{}},
		{DisplayName: "B", Type: TypeFlat, Details: map[string]any{"amount": "not-a-number"}},
		{DisplayName: "C", Type: TypeTiered, Details: map[string]any{"tiers": "nope"}},
		{DisplayName: "D", Type: TypeTiered, Details: map[string]any{"tiers": []any{}}},
		{DisplayName: "E", Type: TypeVolume, Details: map[string]any{}},
		{DisplayName: "F", Type: TypePackage, Details: map[string]any{"package_size": 0.0, "package_price": 5.0}},
		{DisplayName: "G", Type: TypeThreshold, Details: map[string]any{"thresholds": []any{map[string]any{"price": 5.0}}}},
	}

	for _, component := range cases {
		result := e.Evaluate(component, dec("100"))
		assert.True(t, result.Charge.IsZero(), "%s should not charge", component.DisplayName)
		assert.Contains(t, result.Description, "Invalid pricing details", component.DisplayName)
	}
}

func TestEvaluateMonotonicity(t *testing.T) {
	e := New(zap.NewNop())

	components := []Component{
		threeTierComponent(),
		{DisplayName: "P", Type: TypePackage, Details: map[string]any{"package_size": 100.0, "package_price": 3.0}},
		{DisplayName: "T", Type: TypeThreshold, Details: map[string]any{
			"thresholds": []any{
				map[string]any{"threshold": 10.0, "price": 5.0},
				map[string]any{"threshold": 50.0, "price": 15.0},
			},
		}},
		{DisplayName: "U", Type: TypeUsageBasedSubscription, Details: map[string]any{"base_fee": 10.0, "usage_price": 0.01}},
		{DisplayName: "H", Type: TypeTimeBased, Details: map[string]any{"rate_per_unit": 0.5}},
	}

	quantities := []string{"0", "1", "9", "10", "49", "50", "99", "100", "150", "499", "500", "1000", "5000"}
	for _, component := range components {
		prev := decimal.Zero
		for i, q := range quantities {
			charge := e.Evaluate(component, dec(q)).Charge
			if i > 0 {
				assert.True(t, charge.GreaterThanOrEqual(prev),
					"%s not monotonic at q=%s: %s < %s", component.DisplayName, q, charge, prev)
			}
			prev = charge
		}
	}

	// Single-rate selection can drop the charge when a cheaper tier
	// kicks in, so volume and graduated are only monotonic within one
	// tier segment.
	volume := Component{DisplayName: "V", Type: TypeVolume, Details: map[string]any{
		"tiers": []any{
			map[string]any{"start": 0.0, "price": 0.10},
			map[string]any{"start": 100.0, "price": 0.08},
			map[string]any{"start": 1000.0, "price": 0.06},
		},
	}}
	segment := []string{"100", "150", "500", "999"}
	prev := decimal.Zero
	for i, q := range segment {
		charge := e.Evaluate(volume, dec(q)).Charge
		if i > 0 {
			assert.True(t, charge.GreaterThanOrEqual(prev), "volume segment at q=%s", q)
		}
		prev = charge
	}
}

func TestEvaluateVolumeDescendingSelection(t *testing.T) {
	e := New(zap.NewNop())

	// Tiers deliberately out of order; highest start <= q must win.
	component := Component{
		DisplayName: "Shuffled",
		Type:        TypeVolume,
		Details: map[string]any{
			"tiers": []any{
				map[string]any{"start": 1000.0, "price": 0.06},
				map[string]any{"start": 0.0, "price": 0.10},
				map[string]any{"start": 100.0, "price": 0.08},
			},
		},
	}

	result := e.Evaluate(component, dec("150"))
	assert.True(t, result.UnitPrice.Equal(dec("0.08")), "unit=%s", result.UnitPrice)
}

func TestValidateDetails(t *testing.T) {
	valid := []struct {
		pricingType Type
		details     map[string]any
	}{
		{TypeFlat, map[string]any{"amount": 10.0}},
		{TypeSubscription, map[string]any{"amount": 10.0}},
		{TypeTiered, map[string]any{"tiers": []any{map[string]any{"start": 0.0, "price": 0.01}}}},
		{TypeVolume, map[string]any{"tiers": []any{map[string]any{"start": 0.0, "price": 0.01}}}},
		{TypeGraduated, map[string]any{"tiers": []any{map[string]any{"price": 0.01}}}},
		{TypePackage, map[string]any{"package_size": 100.0, "package_price": 1.0}},
		{TypeThreshold, map[string]any{"thresholds": []any{map[string]any{"threshold": 1.0, "price": 1.0}}}},
		{TypeUsageBasedSubscription, map[string]any{"base_fee": 1.0}},
		{TypeUsageBasedSubscription, map[string]any{}},
		{TypeTimeBased, map[string]any{"rate_per_unit": 1.0}},
		{TypeDimensionBased, map[string]any{"base_rate": 1.0, "dimensions": map[string]any{}}},
		{TypeDynamic, map[string]any{"base_rate": 1.0}},
	}
	for _, tc := range valid {
		assert.NoError(t, ValidateDetails(tc.pricingType, tc.details), "%s should validate", tc.pricingType)
	}

	invalid := []struct {
		pricingType Type
		details     map[string]any
	}{
		{TypeFlat, map[string]any{}},
		{TypeTiered, map[string]any{"tiers": []any{}}},
		{TypeTiered, map[string]any{"tiers": []any{map[string]any{"start": "abc", "price": 1.0}}}},
		{TypePackage, map[string]any{"package_size": -5.0, "package_price": 1.0}},
		{TypeThreshold, map[string]any{"thresholds": []any{map[string]any{"threshold": 1.0}}}},
		{TypeUsageBasedSubscription, map[string]any{"base_fee": "abc"}},
		{TypeDimensionBased, map[string]any{"dimensions": "nope"}},
		{Type("surge"), map[string]any{}},
	}
	for _, tc := range invalid {
		assert.Error(t, ValidateDetails(tc.pricingType, tc.details), "%s should fail", tc.pricingType)
	}
}

func TestTypeValid(t *testing.T) {
	for _, pt := range []Type{
		TypeFlat, TypeTiered, TypeVolume, TypePackage, TypeGraduated,
		TypeThreshold, TypeSubscription, TypeUsageBasedSubscription,
		TypeDynamic, TypeTimeBased, TypeDimensionBased,
	} {
		assert.True(t, pt.Valid(), fmt.Sprintf("%s should be valid", pt))
	}
	assert.False(t, Type("surge").Valid())
	assert.False(t, Type("").Valid())
}
