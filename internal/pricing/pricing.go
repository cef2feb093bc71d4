// Package pricing evaluates price components against usage quantities.
package pricing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Type string

const (
	TypeFlat                   Type = "flat"
	TypeTiered                 Type = "tiered"
	TypeVolume                 Type = "volume"
	TypePackage                Type = "package"
	TypeGraduated              Type = "graduated"
	TypeThreshold              Type = "threshold"
	TypeSubscription           Type = "subscription"
	TypeUsageBasedSubscription Type = "usage_based_subscription"
	TypeDynamic                Type = "dynamic"
	TypeTimeBased              Type = "time_based"
	TypeDimensionBased         Type = "dimension_based"
)

func (t Type) Valid() bool {
	switch t {
	case TypeFlat, TypeTiered, TypeVolume, TypePackage, TypeGraduated,
		TypeThreshold, TypeSubscription, TypeUsageBasedSubscription,
		TypeDynamic, TypeTimeBased, TypeDimensionBased:
		return true
	default:
		return false
	}
}

// Component is the evaluator's view of a price component.
type Component struct {
	DisplayName string
	MetricName  string
	Type        Type
	Details     map[string]any
}

// Result carries the charge, the effective per-unit price, and a
// human-readable breakdown for the invoice line. Malformed marks a
// diagnostic zero charge produced from broken details.
type Result struct {
	Charge      decimal.Decimal
	UnitPrice   decimal.Decimal
	Description string
	Malformed   bool
}

type Evaluator struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Evaluator {
	return &Evaluator{log: log.Named("pricing.evaluator")}
}

// Evaluate computes the charge for one component at the given quantity.
// Rounding is left to the caller; all intermediate math stays exact.
// Malformed details never abort: they yield a zero charge with a
// diagnostic description so invoice assembly can continue.
func (e *Evaluator) Evaluate(component Component, quantity decimal.Decimal) Result {
	switch component.Type {
	case TypeFlat:
		return e.evaluateFixed(component, "Flat fee for %s")
	case TypeSubscription:
		return e.evaluateFixed(component, "Subscription fee for %s")
	case TypeTiered:
		return e.evaluateTiered(component, quantity)
	case TypeVolume:
		return e.evaluateSingleRate(component, quantity, false)
	case TypeGraduated:
		return e.evaluateSingleRate(component, quantity, true)
	case TypePackage:
		return e.evaluatePackage(component, quantity)
	case TypeThreshold:
		return e.evaluateThreshold(component, quantity)
	case TypeUsageBasedSubscription:
		return e.evaluateUsageBasedSubscription(component, quantity)
	case TypeTimeBased:
		return e.evaluateTimeBased(component, quantity)
	case TypeDimensionBased:
		return e.evaluateDimensionBased(component, quantity)
	case TypeDynamic:
		return e.evaluateDynamic(component, quantity)
	default:
		return Result{
			Charge:      decimal.Zero,
			UnitPrice:   decimal.Zero,
			Description: fmt.Sprintf("Unknown pricing type for %s", component.DisplayName),
			Malformed:   true,
		}
	}
}

// evaluateFixed handles flat and subscription components: the charge is
// the configured amount, usage is ignored.
func (e *Evaluator) evaluateFixed(component Component, format string) Result {
	amount, ok := toDecimal(component.Details["amount"])
	if !ok {
		return e.malformed(component, "missing or non-numeric amount")
	}
	return Result{
		Charge:      amount,
		UnitPrice:   amount,
		Description: fmt.Sprintf(format, component.DisplayName),
	}
}

// evaluateTiered applies marginal tier pricing: usage fills tiers from
// the lowest start upward, each slice billed at its tier price.
func (e *Evaluator) evaluateTiered(component Component, quantity decimal.Decimal) Result {
	tiers, ok := decodeTiers(component.Details["tiers"])
	if !ok || len(tiers) == 0 {
		return e.malformed(component, "missing or invalid tiers")
	}

	ascending := make([]tier, len(tiers))
	copy(ascending, tiers)
	sort.SliceStable(ascending, func(i, j int) bool {
		return ascending[i].Start.LessThan(ascending[j].Start)
	})

	total := decimal.Zero
	remaining := quantity
	var parts []string

	for _, t := range ascending {
		if t.Start.GreaterThan(quantity) {
			continue
		}

		tierUsage := remaining
		if t.End != nil {
			tierUsage = decimal.Min(remaining, t.End.Sub(t.Start))
		}

		tierCharge := tierUsage.Mul(t.Price)
		total = total.Add(tierCharge)
		parts = append(parts, fmt.Sprintf("%s units @ $%s/unit = $%s", tierUsage, t.Price, tierCharge))

		remaining = remaining.Sub(tierUsage)
		if remaining.Sign() <= 0 {
			break
		}
	}

	unitPrice := decimal.Zero
	if quantity.Sign() > 0 {
		unitPrice = total.Div(quantity)
	}

	return Result{
		Charge:      total,
		UnitPrice:   unitPrice,
		Description: fmt.Sprintf("Tiered pricing for %s: %s", component.DisplayName, strings.Join(parts, ", ")),
	}
}

// evaluateSingleRate handles volume and graduated components: the whole
// quantity is billed at the rate of the highest tier reached.
func (e *Evaluator) evaluateSingleRate(component Component, quantity decimal.Decimal, graduated bool) Result {
	tiers, ok := decodeTiers(component.Details["tiers"])
	if !ok || len(tiers) == 0 {
		return e.malformed(component, "missing or invalid tiers")
	}

	descending := make([]tier, len(tiers))
	copy(descending, tiers)
	sort.SliceStable(descending, func(i, j int) bool {
		return descending[i].Start.GreaterThan(descending[j].Start)
	})

	applied := tiers[0]
	for _, t := range descending {
		if t.Start.LessThanOrEqual(quantity) {
			applied = t
			break
		}
	}

	charge := quantity.Mul(applied.Price)
	var description string
	if graduated {
		description = fmt.Sprintf("Graduated pricing for %s: %s units @ $%s/unit (tier: %s+)",
			component.DisplayName, quantity, applied.Price, applied.Start)
	} else {
		description = fmt.Sprintf("Volume pricing for %s: %s units @ $%s/unit",
			component.DisplayName, quantity, applied.Price)
	}

	return Result{Charge: charge, UnitPrice: applied.Price, Description: description}
}

// evaluatePackage bills whole packages: usage rounds up to the next
// package boundary.
func (e *Evaluator) evaluatePackage(component Component, quantity decimal.Decimal) Result {
	size, okSize := toDecimal(component.Details["package_size"])
	price, okPrice := toDecimal(component.Details["package_price"])
	if !okSize || !okPrice || size.Sign() <= 0 {
		return e.malformed(component, "package_size and package_price must be numeric, package_size > 0")
	}

	packages := quantity.Div(size).Ceil()
	charge := packages.Mul(price)

	unitPrice := decimal.Zero
	if quantity.Sign() > 0 {
		unitPrice = charge.Div(quantity)
	}

	return Result{
		Charge:    charge,
		UnitPrice: unitPrice,
		Description: fmt.Sprintf("Package pricing for %s: %s packages of %s units @ $%s/package",
			component.DisplayName, packages, size, price),
	}
}

// evaluateThreshold adds a one-shot fee for every threshold the
// quantity has crossed.
func (e *Evaluator) evaluateThreshold(component Component, quantity decimal.Decimal) Result {
	thresholds, ok := decodeThresholds(component.Details["thresholds"])
	if !ok || len(thresholds) == 0 {
		return e.malformed(component, "missing or invalid thresholds")
	}

	total := decimal.Zero
	var parts []string
	for _, t := range thresholds {
		if quantity.GreaterThanOrEqual(t.Threshold) {
			total = total.Add(t.Price)
			parts = append(parts, fmt.Sprintf("Threshold %s crossed: $%s", t.Threshold, t.Price))
		}
	}

	unitPrice := decimal.Zero
	if quantity.Sign() > 0 {
		unitPrice = total.Div(quantity)
	}

	return Result{
		Charge:      total,
		UnitPrice:   unitPrice,
		Description: fmt.Sprintf("Threshold pricing for %s: %s", component.DisplayName, strings.Join(parts, ", ")),
	}
}

func (e *Evaluator) evaluateUsageBasedSubscription(component Component, quantity decimal.Decimal) Result {
	baseFee := decimalOrZero(component.Details["base_fee"])
	usagePrice := decimalOrZero(component.Details["usage_price"])

	charge := baseFee.Add(quantity.Mul(usagePrice))

	unitPrice := baseFee
	if quantity.Sign() > 0 {
		unitPrice = charge.Div(quantity)
	}

	return Result{
		Charge:    charge,
		UnitPrice: unitPrice,
		Description: fmt.Sprintf("Usage-based subscription for %s: $%s base + %s units @ $%s/unit = $%s",
			component.DisplayName, baseFee, quantity, usagePrice, charge),
	}
}

func (e *Evaluator) evaluateTimeBased(component Component, quantity decimal.Decimal) Result {
	rate := decimalOrZero(component.Details["rate_per_unit"])
	unit := stringOr(component.Details["unit"], "hour")

	return Result{
		Charge:    quantity.Mul(rate),
		UnitPrice: rate,
		Description: fmt.Sprintf("Time-based pricing for %s: %s %ss @ $%s/%s",
			component.DisplayName, quantity, unit, rate, unit),
	}
}

// evaluateDimensionBased multiplies the base rate by (1 + value *
// multiplier) per configured dimension. Dimensions apply in name order
// so the description is stable.
func (e *Evaluator) evaluateDimensionBased(component Component, quantity decimal.Decimal) Result {
	rate := decimalOrZero(component.Details["base_rate"])
	dimensions, _ := component.Details["dimensions"].(map[string]any)

	names := make([]string, 0, len(dimensions))
	for name := range dimensions {
		names = append(names, name)
	}
	sort.Strings(names)

	one := decimal.NewFromInt(1)
	var factors []string
	for _, name := range names {
		cfg, _ := dimensions[name].(map[string]any)
		value := decimalOrZero(cfg[name])
		multiplier := one
		if m, ok := toDecimal(cfg["multiplier"]); ok {
			multiplier = m
		}

		factor := value.Mul(multiplier)
		rate = rate.Mul(one.Add(factor))
		factors = append(factors, fmt.Sprintf("%s: %s (factor: %s)", name, value, factor.StringFixed(2)))
	}

	factorDesc := "no dimension adjustments"
	if len(factors) > 0 {
		factorDesc = strings.Join(factors, ", ")
	}

	return Result{
		Charge:    quantity.Mul(rate),
		UnitPrice: rate,
		Description: fmt.Sprintf("Dimension-based pricing for %s: %s units @ $%s/unit (%s)",
			component.DisplayName, quantity, rate, factorDesc),
	}
}

// evaluateDynamic is base-rate passthrough; the formula rides along in
// the description only.
func (e *Evaluator) evaluateDynamic(component Component, quantity decimal.Decimal) Result {
	rate := decimalOrZero(component.Details["base_rate"])
	formula := stringOr(component.Details["formula"], "")

	return Result{
		Charge:    quantity.Mul(rate),
		UnitPrice: rate,
		Description: fmt.Sprintf("Dynamic pricing for %s: %s units @ $%s/unit (formula: %s)",
			component.DisplayName, quantity, rate, formula),
	}
}

func (e *Evaluator) malformed(component Component, reason string) Result {
	e.log.Warn("pricing details malformed",
		zap.String("component", component.DisplayName),
		zap.String("pricing_type", string(component.Type)),
		zap.String("reason", reason),
	)
	return Result{
		Charge:      decimal.Zero,
		UnitPrice:   decimal.Zero,
		Description: fmt.Sprintf("Invalid pricing details for %s: %s", component.DisplayName, reason),
		Malformed:   true,
	}
}
