package calculators

import (
	"context"
	"math"
	"testing"

	"github.com/fincalc/engine/calc"
)

func testData() map[string]any {
	return map[string]any{
		"balanco": map[string]any{
			"ativoCirculante":   500.0,
			"estoques":          100.0,
			"ativoTotal":        1000.0,
			"passivoCirculante": 250.0,
			"passivoTotal":      400.0,
			"patrimonioLiquido": 600.0,
		},
		"dre": map[string]any{
			"receitaLiquida": 2000.0,
			"lucroLiquido":   150.0,
			"custos":         1200.0,
		},
		"historico": map[string]any{
			"periodos": []any{
				map[string]any{"ano": 2021.0, "receitaLiquida": 1000.0},
				map[string]any{"ano": 2022.0, "receitaLiquida": 1200.0},
				map[string]any{"ano": 2023.0, "receitaLiquida": 1500.0},
			},
		},
	}
}

func approx(t *testing.T, got any, want float64, label string) {
	t.Helper()
	f, ok := got.(float64)
	if !ok {
		t.Fatalf("%s: expected a float64, got %T (%v)", label, got, got)
	}
	if math.Abs(f-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", label, f, want)
	}
}

func TestIndicesRatios(t *testing.T) {
	out, err := (Indices{}).Calculate(context.Background(), testData(), nil)
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}

	approx(t, out["liquidezCorrente"], 2.0, "liquidezCorrente")
	approx(t, out["liquidezSeca"], 1.6, "liquidezSeca")
	approx(t, out["liquidezGeral"], 2.5, "liquidezGeral")
	approx(t, out["endividamentoGeral"], 0.4, "endividamentoGeral")
	approx(t, out["margemLiquida"], 0.075, "margemLiquida")
	approx(t, out["roe"], 0.25, "roe")
	approx(t, out["participacaoCapitalProprio"], 0.6, "participacaoCapitalProprio")
}

func TestIndicesOmitsZeroDenominatorRatios(t *testing.T) {
	data := testData()
	data["balanco"].(map[string]any)["passivoCirculante"] = 0.0

	out, err := (Indices{}).Calculate(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}

	if _, ok := out["liquidezCorrente"]; ok {
		t.Error("A zero-denominator ratio must be omitted, not published as infinity")
	}
	if _, ok := out["liquidezGeral"]; !ok {
		t.Error("Other ratios should still be computed")
	}
}

func TestIndicesEmptyDataYieldsEmptyResult(t *testing.T) {
	out, err := (Indices{}).Calculate(context.Background(), map[string]any{}, nil)
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("No inputs, no ratios; got %v", out)
	}
}

func TestComposicaoVerticalAndHorizontal(t *testing.T) {
	out, err := (Composicao{}).Calculate(context.Background(), testData(), nil)
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}

	vertical, ok := out["verticalBalanco"].(map[string]any)
	if !ok {
		t.Fatalf("verticalBalanco missing: %v", out)
	}
	approx(t, vertical["ativoCirculante"], 50.0, "verticalBalanco.ativoCirculante")
	approx(t, vertical["patrimonioLiquido"], 60.0, "verticalBalanco.patrimonioLiquido")

	verticalDRE, ok := out["verticalDRE"].(map[string]any)
	if !ok {
		t.Fatalf("verticalDRE missing: %v", out)
	}
	approx(t, verticalDRE["custos"], 60.0, "verticalDRE.custos")
	approx(t, verticalDRE["lucroLiquido"], 7.5, "verticalDRE.lucroLiquido")

	horizontal, ok := out["horizontalReceita"].([]any)
	if !ok || len(horizontal) != 3 {
		t.Fatalf("horizontalReceita = %v", out["horizontalReceita"])
	}
	first := horizontal[0].(map[string]any)
	last := horizontal[2].(map[string]any)
	approx(t, first["indice"], 100.0, "horizontalReceita[0]")
	approx(t, last["indice"], 150.0, "horizontalReceita[2]")
	if last["ano"] != 2023.0 {
		t.Errorf("Period year should be carried through, got %v", last["ano"])
	}
}

func TestComposicaoSinglePeriodHasNoHorizontal(t *testing.T) {
	data := testData()
	data["historico"] = map[string]any{
		"periodos": []any{map[string]any{"ano": 2023.0, "receitaLiquida": 1500.0}},
	}

	out, err := (Composicao{}).Calculate(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}
	if _, ok := out["horizontalReceita"]; ok {
		t.Error("Horizontal analysis needs at least two periods")
	}
}

func TestEvolucaoGrowthAndCAGR(t *testing.T) {
	out, err := (Evolucao{}).Calculate(context.Background(), testData(), nil)
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}

	growth, ok := out["crescimentoReceita"].([]any)
	if !ok || len(growth) != 2 {
		t.Fatalf("crescimentoReceita = %v", out["crescimentoReceita"])
	}
	approx(t, growth[0], 20.0, "crescimentoReceita[0]")
	approx(t, growth[1], 25.0, "crescimentoReceita[1]")

	// (1500/1000)^(1/2) - 1 = 22.47%.
	approx(t, out["cagrReceita"], 22.47, "cagrReceita")
}

func TestEvolucaoZeroBasePeriodYieldsNilGrowth(t *testing.T) {
	data := testData()
	data["historico"] = map[string]any{
		"periodos": []any{
			map[string]any{"receitaLiquida": 0.0},
			map[string]any{"receitaLiquida": 1200.0},
		},
	}

	out, err := (Evolucao{}).Calculate(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}

	growth := out["crescimentoReceita"].([]any)
	if growth[0] != nil {
		t.Errorf("Growth over a zero base is undefined, got %v", growth[0])
	}
	if _, ok := out["cagrReceita"]; ok {
		t.Error("CAGR is undefined for a non-positive first period")
	}
}

func TestEvolucaoFewerThanTwoPeriodsIsEmptyNotError(t *testing.T) {
	out, err := (Evolucao{}).Calculate(context.Background(), map[string]any{}, nil)
	if err != nil {
		t.Fatalf("Missing history must not be an error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Expected an empty result, got %v", out)
	}
}

func TestScoringGradesWeightsAndClassifies(t *testing.T) {
	prior := calc.Results{
		"indices": map[string]any{
			"liquidezCorrente":   2.0,
			"liquidezGeral":      2.5,
			"endividamentoGeral": 0.4,
			"margemLiquida":      0.075,
			"roe":                0.25,
		},
	}

	out, err := (Scoring{}).Calculate(context.Background(), testData(), prior)
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}

	notas := out["notas"].(map[string]any)
	grades := map[string]int{
		"liquidezCorrente":   5,
		"liquidezGeral":      5,
		"endividamentoGeral": 4,
		"margemLiquida":      3,
		"roe":                5,
	}
	for indicator, want := range grades {
		if notas[indicator] != want {
			t.Errorf("notas[%s] = %v, want %d", indicator, notas[indicator], want)
		}
	}

	// 5*.25 + 5*.10 + 4*.25 + 3*.20 + 5*.20 = 4.35 of 5 = 87.
	approx(t, out["score"], 87.0, "score")
	if out["classificacao"] != "A" {
		t.Errorf("classificacao = %v, want A", out["classificacao"])
	}
}

func TestScoringNormalizesOverAvailableIndicators(t *testing.T) {
	prior := calc.Results{
		"indices": map[string]any{"liquidezCorrente": 2.0},
	}

	out, err := (Scoring{}).Calculate(context.Background(), testData(), prior)
	if err != nil {
		t.Fatalf("Calculate() failed: %v", err)
	}
	approx(t, out["score"], 100.0, "score")
}

func TestScoringClassBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{score: 80, want: "A"},
		{score: 79.99, want: "B"},
		{score: 60, want: "B"},
		{score: 40, want: "C"},
		{score: 20, want: "D"},
		{score: 19.99, want: "E"},
		{score: 0, want: "E"},
	}
	for _, tc := range cases {
		if got := classify(tc.score); got != tc.want {
			t.Errorf("classify(%v) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestScoringRequiresIndicesResults(t *testing.T) {
	if _, err := (Scoring{}).Calculate(context.Background(), testData(), calc.Results{}); err == nil {
		t.Error("Scoring without upstream indices results must fail")
	}

	prior := calc.Results{"indices": map[string]any{}}
	if _, err := (Scoring{}).Calculate(context.Background(), testData(), prior); err == nil {
		t.Error("Scoring with no gradeable indicators must fail")
	}
}

func TestRegisterAllBindsEveryCalculator(t *testing.T) {
	registry := calc.NewRegistry()
	if err := RegisterAll(registry); err != nil {
		t.Fatalf("RegisterAll() failed: %v", err)
	}

	for _, name := range []string{"indices", "composicao", "evolucao", "scoring"} {
		if _, ok := registry.Get(name); !ok {
			t.Errorf("Calculator %q not registered", name)
		}
	}
}
