package calculators

import (
	"context"
	"fmt"

	"github.com/fincalc/engine/calc"
)

// Scoring derives the composite credit score from the ratios computed by the
// indices calculator earlier in the same run. Each ratio is graded 1..5
// against fixed bands, the grades are weighted into a 0..100 score, and the
// score maps to a risk class A..E.
//
// Scoring depends on upstream output: it must be declared after "indices" in
// the execution order.
type Scoring struct{}

// scoreBand grades a ratio: the grade is 1 + the number of thresholds the
// value meets or exceeds (higherIsBetter), or the reverse for ratios where
// lower is healthier.
type scoreBand struct {
	indicator      string
	weight         float64
	thresholds     [4]float64
	higherIsBetter bool
}

var bands = []scoreBand{
	{indicator: "liquidezCorrente", weight: 0.25, thresholds: [4]float64{0.5, 1.0, 1.5, 2.0}, higherIsBetter: true},
	{indicator: "liquidezGeral", weight: 0.10, thresholds: [4]float64{0.5, 1.0, 1.2, 1.5}, higherIsBetter: true},
	{indicator: "endividamentoGeral", weight: 0.25, thresholds: [4]float64{0.3, 0.5, 0.7, 0.9}, higherIsBetter: false},
	{indicator: "margemLiquida", weight: 0.20, thresholds: [4]float64{0.0, 0.05, 0.10, 0.20}, higherIsBetter: true},
	{indicator: "roe", weight: 0.20, thresholds: [4]float64{0.0, 0.05, 0.10, 0.15}, higherIsBetter: true},
}

func (Scoring) Calculate(ctx context.Context, data map[string]any, prior calc.Results) (map[string]any, error) {
	indices, ok := prior["indices"]
	if !ok {
		return nil, fmt.Errorf("indices results not available: scoring must run after the indices calculator")
	}

	notas := make(map[string]any, len(bands))
	var score, totalWeight float64

	for _, band := range bands {
		value, ok := toFloat(indices[band.indicator])
		if !ok {
			continue
		}
		nota := band.grade(value)
		notas[band.indicator] = nota
		score += float64(nota) * band.weight
		totalWeight += band.weight
	}

	if totalWeight == 0 {
		return nil, fmt.Errorf("no gradeable indicators in indices results")
	}

	// Normalize to 0..100: a straight-5 grade scores 100.
	final := score / totalWeight / 5 * 100

	return map[string]any{
		"notas":         notas,
		"score":         final,
		"classificacao": classify(final),
	}, nil
}

func (b scoreBand) grade(value float64) int {
	nota := 1
	for _, threshold := range b.thresholds {
		if b.higherIsBetter && value >= threshold {
			nota++
		}
		if !b.higherIsBetter && value <= threshold {
			nota++
		}
	}
	if nota > 5 {
		nota = 5
	}
	return nota
}

func classify(score float64) string {
	switch {
	case score >= 80:
		return "A"
	case score >= 60:
		return "B"
	case score >= 40:
		return "C"
	case score >= 20:
		return "D"
	default:
		return "E"
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}
