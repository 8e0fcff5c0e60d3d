package calculators

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	"github.com/fincalc/engine/calc"
)

// Evolucao computes period-over-period growth of net revenue and the
// compound annual growth rate over the whole series in data["historico"].
// With fewer than two periods there is nothing to derive and the result is
// empty, not an error: trend analysis is an optional view over whatever
// history the user filled in.
type Evolucao struct{}

func (Evolucao) Calculate(ctx context.Context, data map[string]any, prior calc.Results) (map[string]any, error) {
	periodos := periods(data)
	out := make(map[string]any)
	if len(periodos) < 2 {
		return out, nil
	}

	series := make([]decimal.Decimal, 0, len(periodos))
	for _, p := range periodos {
		receita, ok := field(p, "receitaLiquida")
		if !ok {
			return out, nil
		}
		series = append(series, receita)
	}

	growth := make([]any, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1].IsZero() {
			growth = append(growth, nil)
			continue
		}
		delta := series[i].Sub(series[i-1]).Div(series[i-1]).Mul(decimal.NewFromInt(100))
		growth = append(growth, delta.Round(2).InexactFloat64())
	}
	out["crescimentoReceita"] = growth

	if cagr, ok := compoundGrowth(series[0], series[len(series)-1], len(series)-1); ok {
		out["cagrReceita"] = cagr
	}

	return out, nil
}

// compoundGrowth returns the CAGR in percent between first and last over n
// intervals. Undefined for non-positive endpoints.
func compoundGrowth(first, last decimal.Decimal, n int) (float64, bool) {
	if n <= 0 || first.Sign() <= 0 || last.Sign() <= 0 {
		return 0, false
	}

	ratio := last.Div(first).InexactFloat64()
	cagr := (math.Pow(ratio, 1/float64(n)) - 1) * 100
	return decimal.NewFromFloat(cagr).Round(2).InexactFloat64(), true
}
