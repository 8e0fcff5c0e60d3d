package calculators

import (
	"context"

	"github.com/fincalc/engine/calc"
)

// Indices derives the liquidity, structure, and profitability ratios from
// the most recent balance sheet and income statement. Ratios whose
// denominator is zero are omitted from the result rather than published as
// infinities.
type Indices struct{}

func (Indices) Calculate(ctx context.Context, data map[string]any, prior calc.Results) (map[string]any, error) {
	balanco := section(data, "balanco")
	dre := section(data, "dre")

	ativoCirculante, acOK := field(balanco, "ativoCirculante")
	estoques, _ := field(balanco, "estoques")
	ativoTotal, atOK := field(balanco, "ativoTotal")
	passivoCirculante, pcOK := field(balanco, "passivoCirculante")
	passivoTotal, ptOK := field(balanco, "passivoTotal")
	patrimonioLiquido, plOK := field(balanco, "patrimonioLiquido")
	receitaLiquida, rlOK := field(dre, "receitaLiquida")
	lucroLiquido, llOK := field(dre, "lucroLiquido")

	out := make(map[string]any)

	if v, ok := ratio(ativoCirculante, acOK, passivoCirculante, pcOK); ok {
		out["liquidezCorrente"] = v
	}
	if v, ok := ratio(ativoCirculante.Sub(estoques), acOK, passivoCirculante, pcOK); ok {
		out["liquidezSeca"] = v
	}
	if v, ok := ratio(ativoTotal, atOK, passivoTotal, ptOK); ok {
		out["liquidezGeral"] = v
	}
	if v, ok := ratio(passivoTotal, ptOK, ativoTotal, atOK); ok {
		out["endividamentoGeral"] = v
	}
	if v, ok := ratio(lucroLiquido, llOK, receitaLiquida, rlOK); ok {
		out["margemLiquida"] = v
	}
	if v, ok := ratio(lucroLiquido, llOK, patrimonioLiquido, plOK); ok {
		out["roe"] = v
	}
	if v, ok := ratio(patrimonioLiquido, plOK, ativoTotal, atOK); ok {
		out["participacaoCapitalProprio"] = v
	}

	return out, nil
}
