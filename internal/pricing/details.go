package pricing

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type tier struct {
	Start decimal.Decimal
	End   *decimal.Decimal
	Price decimal.Decimal
}

type threshold struct {
	Threshold decimal.Decimal
	Price     decimal.Decimal
}

// toDecimal converts the value shapes a JSON details payload can carry.
func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func decimalOrZero(v any) decimal.Decimal {
	d, ok := toDecimal(v)
	if !ok {
		return decimal.Zero
	}
	return d
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

// decodeTiers accepts [{start?, end?, price}]. A missing start defaults
// to 0; a missing end means the tier is unbounded.
func decodeTiers(v any) ([]tier, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}

	tiers := make([]tier, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}

		var t tier
		if sv, present := m["start"]; present && sv != nil {
			s, ok := toDecimal(sv)
			if !ok {
				return nil, false
			}
			t.Start = s
		}
		if ev, present := m["end"]; present && ev != nil {
			e, ok := toDecimal(ev)
			if !ok {
				return nil, false
			}
			t.End = &e
		}
		p, ok := toDecimal(m["price"])
		if !ok {
			return nil, false
		}
		t.Price = p

		tiers = append(tiers, t)
	}
	return tiers, true
}

// decodeThresholds accepts [{threshold, price}]; both fields required.
func decodeThresholds(v any) ([]threshold, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}

	thresholds := make([]threshold, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		tv, ok := toDecimal(m["threshold"])
		if !ok {
			return nil, false
		}
		p, ok := toDecimal(m["price"])
		if !ok {
			return nil, false
		}
		thresholds = append(thresholds, threshold{Threshold: tv, Price: p})
	}
	return thresholds, true
}

// ValidateDetails schema-checks a pricing_details payload for its type.
// Used at plan and component creation; evaluation itself stays lenient.
func ValidateDetails(t Type, details map[string]any) error {
	switch t {
	case TypeFlat, TypeSubscription:
		if _, ok := toDecimal(details["amount"]); !ok {
			return fmt.Errorf("%s pricing requires a numeric amount", t)
		}
	case TypeTiered, TypeVolume, TypeGraduated:
		tiers, ok := decodeTiers(details["tiers"])
		if !ok || len(tiers) == 0 {
			return fmt.Errorf("%s pricing requires a non-empty tiers list with numeric start/price", t)
		}
	case TypePackage:
		size, okSize := toDecimal(details["package_size"])
		_, okPrice := toDecimal(details["package_price"])
		if !okSize || !okPrice {
			return fmt.Errorf("package pricing requires numeric package_size and package_price")
		}
		if size.Sign() <= 0 {
			return fmt.Errorf("package_size must be positive")
		}
	case TypeThreshold:
		thresholds, ok := decodeThresholds(details["thresholds"])
		if !ok || len(thresholds) == 0 {
			return fmt.Errorf("threshold pricing requires a non-empty thresholds list with numeric threshold/price")
		}
	case TypeUsageBasedSubscription:
		if err := optionalNumeric(details, "base_fee"); err != nil {
			return err
		}
		if err := optionalNumeric(details, "usage_price"); err != nil {
			return err
		}
	case TypeTimeBased:
		if err := optionalNumeric(details, "rate_per_unit"); err != nil {
			return err
		}
	case TypeDimensionBased:
		if err := optionalNumeric(details, "base_rate"); err != nil {
			return err
		}
		if v, present := details["dimensions"]; present && v != nil {
			if _, ok := v.(map[string]any); !ok {
				return fmt.Errorf("dimensions must be an object")
			}
		}
	case TypeDynamic:
		if err := optionalNumeric(details, "base_rate"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown pricing type %q", t)
	}
	return nil
}

func optionalNumeric(details map[string]any, key string) error {
	v, present := details[key]
	if !present || v == nil {
		return nil
	}
	if _, ok := toDecimal(v); !ok {
		return fmt.Errorf("%s must be numeric", key)
	}
	return nil
}
