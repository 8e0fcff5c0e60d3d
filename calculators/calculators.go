// Package calculators contains the financial calculator modules plugged into
// the orchestrator: liquidity and structure ratios, vertical and horizontal
// composition, multi-period evolution, and the composite credit score.
//
// All arithmetic runs on shopspring/decimal and results are rounded to four
// places before being published as float64 in the result maps.
package calculators

import (
	"github.com/shopspring/decimal"

	"github.com/fincalc/engine/calc"
)

// RegisterAll registers every calculator under its declared name.
func RegisterAll(registry *calc.Registry) error {
	entries := map[string]calc.Calculator{
		"indices":    &Indices{},
		"composicao": &Composicao{},
		"evolucao":   &Evolucao{},
		"scoring":    &Scoring{},
	}
	for name, c := range entries {
		if err := registry.Register(name, c); err != nil {
			return err
		}
	}
	return nil
}

// section picks a nested object out of the input data.
func section(data map[string]any, key string) map[string]any {
	m, _ := data[key].(map[string]any)
	return m
}

func field(m map[string]any, key string) (decimal.Decimal, bool) {
	if m == nil {
		return decimal.Zero, false
	}
	return toDecimal(m[key])
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int64:
		return decimal.NewFromInt(t), true
	case string:
		d, err := decimal.NewFromString(t)
		return d, err == nil
	}
	return decimal.Zero, false
}

// ratio returns a/b rounded to four places; ok is false when b is zero or
// either operand is absent.
func ratio(a decimal.Decimal, aok bool, b decimal.Decimal, bok bool) (float64, bool) {
	if !aok || !bok || b.IsZero() {
		return 0, false
	}
	return round4(a.Div(b)), true
}

func round4(d decimal.Decimal) float64 {
	return d.Round(4).InexactFloat64()
}

// percent returns part/total as a percentage rounded to two places.
func percent(part, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	return part.Div(total).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}
