package service

import (
	"stock-opportunity-engine/internal/entity"
	"stock-opportunity-engine/internal/screener/rules"
)

// yoyGrowthPct computes year-over-year TTM profit growth. A non-positive
// prior period has no usable baseline: growth is 100% if the current period
// is profitable, otherwise 0%.
func yoyGrowthPct(currentTTM, prevTTM float64) float64 {
	if prevTTM <= 0 {
		if currentTTM > 0 {
			return 100.0
		}
		return 0.0
	}
	return (currentTTM - prevTTM) / prevTTM * 100.0
}

// applyUniverseFilters keeps snapshots inside the configured market-cap band
// and, when allow-sets are non-empty, the configured exchanges/sectors.
// Order-stable and purely reductive.
func applyUniverseFilters(stocks []entity.StockSnapshot, u rules.Universe) []entity.StockSnapshot {
	exchanges := toSet(u.Exchanges)
	sectors := toSet(u.SectorsAllowlist)

	out := make([]entity.StockSnapshot, 0, len(stocks))
	for _, s := range stocks {
		if s.MarketCapCr < u.MinMarketCapCr || s.MarketCapCr > u.MaxMarketCapCr {
			continue
		}
		if len(exchanges) > 0 && !exchanges[s.Exchange] {
			continue
		}
		if len(sectors) > 0 && !sectors[s.Sector] {
			continue
		}
		out = append(out, s)
	}
	return out
}

// applyQualityFilters drops surveillance-flagged and loss-making stocks
// where configured, then enforces the profit floor, minimum YoY growth, and
// PE ceiling.
func applyQualityFilters(stocks []entity.StockSnapshot, f rules.Filters) []entity.StockSnapshot {
	out := make([]entity.StockSnapshot, 0, len(stocks))
	for _, s := range stocks {
		if f.ExcludeESM && s.ESMFlag {
			continue
		}
		if f.ExcludeLossMaking && s.ProfitTTMCr <= 0 {
			continue
		}
		if s.ProfitTTMCr < f.MinProfitTTMCr {
			continue
		}
		if yoyGrowthPct(s.ProfitTTMCr, s.ProfitPrevTTMCr) < f.MinProfitYoYGrowthPct {
			continue
		}
		if f.MaxPE > 0 && s.PE > f.MaxPE {
			continue
		}
		out = append(out, s)
	}
	return out
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
