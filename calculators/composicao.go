package calculators

import (
	"context"

	"github.com/fincalc/engine/calc"
)

// Composicao computes the vertical composition of the balance sheet (each
// account as a percentage of total assets) and of the income statement (net
// income over net revenue), plus the horizontal revenue index across the
// periods in data["historico"], base 100 at the first period.
type Composicao struct{}

func (Composicao) Calculate(ctx context.Context, data map[string]any, prior calc.Results) (map[string]any, error) {
	balanco := section(data, "balanco")
	dre := section(data, "dre")

	out := make(map[string]any)

	if ativoTotal, ok := field(balanco, "ativoTotal"); ok && !ativoTotal.IsZero() {
		vertical := make(map[string]any)
		for _, account := range []string{"ativoCirculante", "estoques", "passivoCirculante", "passivoTotal", "patrimonioLiquido"} {
			if v, ok := field(balanco, account); ok {
				vertical[account] = percent(v, ativoTotal)
			}
		}
		out["verticalBalanco"] = vertical
	}

	if receita, ok := field(dre, "receitaLiquida"); ok && !receita.IsZero() {
		verticalDRE := make(map[string]any)
		for _, line := range []string{"custos", "despesasOperacionais", "lucroLiquido"} {
			if v, ok := field(dre, line); ok {
				verticalDRE[line] = percent(v, receita)
			}
		}
		out["verticalDRE"] = verticalDRE
	}

	if horizontal := horizontalReceita(data); len(horizontal) > 0 {
		out["horizontalReceita"] = horizontal
	}

	return out, nil
}

// horizontalReceita indexes each period's net revenue against the first
// period. Returns nil when fewer than two periods are available.
func horizontalReceita(data map[string]any) []any {
	periodos := periods(data)
	if len(periodos) < 2 {
		return nil
	}

	base, ok := field(periodos[0], "receitaLiquida")
	if !ok || base.IsZero() {
		return nil
	}

	out := make([]any, 0, len(periodos))
	for _, p := range periodos {
		receita, ok := field(p, "receitaLiquida")
		if !ok {
			return nil
		}
		entry := map[string]any{"indice": percent(receita, base)}
		if ano, ok := p["ano"]; ok {
			entry["ano"] = ano
		}
		out = append(out, entry)
	}
	return out
}

// periods extracts the multi-period series from data["historico"].
func periods(data map[string]any) []map[string]any {
	historico := section(data, "historico")
	raw, _ := historico["periodos"].([]any)

	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if p, ok := item.(map[string]any); ok {
			out = append(out, p)
		}
	}
	return out
}
