package service

import (
	"testing"

	"stock-opportunity-engine/internal/entity"
	"stock-opportunity-engine/internal/screener/rules"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filterFixtures() []entity.StockSnapshot {
	return []entity.StockSnapshot{
		{Symbol: "SMALL", Exchange: "NSE", Sector: "IT", MarketCapCr: 200, PE: 18, ProfitTTMCr: 30, ProfitPrevTTMCr: 20},
		{Symbol: "MID", Exchange: "NSE", Sector: "Pharma", MarketCapCr: 5000, PE: 25, ProfitTTMCr: 120, ProfitPrevTTMCr: 100},
		{Symbol: "HUGE", Exchange: "NSE", Sector: "IT", MarketCapCr: 900000, PE: 30, ProfitTTMCr: 9000, ProfitPrevTTMCr: 8000},
		{Symbol: "BOMBAY", Exchange: "BSE", Sector: "IT", MarketCapCr: 4000, PE: 22, ProfitTTMCr: 80, ProfitPrevTTMCr: 60},
		{Symbol: "FLAGGED", Exchange: "NSE", Sector: "IT", MarketCapCr: 3000, PE: 20, ProfitTTMCr: 50, ProfitPrevTTMCr: 40, ESMFlag: true},
		{Symbol: "LOSSY", Exchange: "NSE", Sector: "IT", MarketCapCr: 2000, PE: 0, ProfitTTMCr: -10, ProfitPrevTTMCr: 5},
	}
}

func TestApplyUniverseFiltersMarketCapBand(t *testing.T) {
	got := applyUniverseFilters(filterFixtures(), rules.Universe{
		MinMarketCapCr: 500,
		MaxMarketCapCr: 100000,
	})

	symbols := make([]string, 0, len(got))
	for _, s := range got {
		symbols = append(symbols, s.Symbol)
	}
	assert.Equal(t, []string{"MID", "BOMBAY", "FLAGGED", "LOSSY"}, symbols)
}

func TestApplyUniverseFiltersEmptyAllowSetsAreOpen(t *testing.T) {
	u := rules.Universe{MinMarketCapCr: 0, MaxMarketCapCr: 1e9}
	got := applyUniverseFilters(filterFixtures(), u)
	assert.Len(t, got, len(filterFixtures()))
}

func TestApplyUniverseFiltersAllowSets(t *testing.T) {
	u := rules.Universe{
		MaxMarketCapCr:   1e9,
		Exchanges:        []string{"NSE"},
		SectorsAllowlist: []string{"IT"},
	}
	got := applyUniverseFilters(filterFixtures(), u)

	require.NotEmpty(t, got)
	for _, s := range got {
		assert.Equal(t, "NSE", s.Exchange)
		assert.Equal(t, "IT", s.Sector)
	}
	assert.NotContains(t, symbolsOf(got), "BOMBAY")
	assert.NotContains(t, symbolsOf(got), "MID")
}

func TestApplyQualityFilters(t *testing.T) {
	f := rules.Filters{
		ExcludeESM:            true,
		ExcludeLossMaking:     true,
		MinProfitTTMCr:        40,
		MinProfitYoYGrowthPct: 10,
		MaxPE:                 28,
	}
	got := applyQualityFilters(filterFixtures(), f)

	// FLAGGED drops on ESM, LOSSY on losses, SMALL on the profit floor,
	// HUGE on PE. MID at +20% YoY and PE 25 survives.
	assert.Equal(t, []string{"MID", "BOMBAY"}, symbolsOf(got))
}

func TestApplyQualityFiltersZeroBaselinePassesGrowthGate(t *testing.T) {
	turnaround := entity.StockSnapshot{
		Symbol: "TURN", ProfitTTMCr: 15, ProfitPrevTTMCr: -3, PE: 10,
	}
	f := rules.Filters{MinProfitYoYGrowthPct: 50, MaxPE: 100}
	got := applyQualityFilters([]entity.StockSnapshot{turnaround}, f)
	assert.Equal(t, []string{"TURN"}, symbolsOf(got))
}

func TestApplyQualityFiltersUnsetMaxPEIsOpen(t *testing.T) {
	pricey := entity.StockSnapshot{Symbol: "PRICEY", PE: 500, ProfitTTMCr: 10, ProfitPrevTTMCr: 8}
	got := applyQualityFilters([]entity.StockSnapshot{pricey}, rules.Filters{})
	assert.Equal(t, []string{"PRICEY"}, symbolsOf(got))
}

func TestFiltersAreReductiveAndOrderStable(t *testing.T) {
	in := filterFixtures()
	u := rules.Universe{MinMarketCapCr: 500, MaxMarketCapCr: 1e9, Exchanges: []string{"NSE", "BSE"}}
	f := rules.Filters{ExcludeLossMaking: true, MaxPE: 1e9}

	got := applyQualityFilters(applyUniverseFilters(in, u), f)

	assert.LessOrEqual(t, len(got), len(in))
	assertSubsequence(t, symbolsOf(in), symbolsOf(got))
}

func symbolsOf(stocks []entity.StockSnapshot) []string {
	out := make([]string, 0, len(stocks))
	for _, s := range stocks {
		out = append(out, s.Symbol)
	}
	return out
}

func assertSubsequence(t *testing.T, full, sub []string) {
	t.Helper()
	i := 0
	for _, v := range full {
		if i < len(sub) && sub[i] == v {
			i++
		}
	}
	assert.Equalf(t, len(sub), i, "%v is not an order-preserving subsequence of %v", sub, full)
}
