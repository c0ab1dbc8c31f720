package service

import (
	"testing"
	"time"

	"stock-opportunity-engine/internal/entity"
	"stock-opportunity-engine/internal/screener/rules"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules() *rules.Rules {
	return &rules.Rules{
		Filters: rules.Filters{
			MaxPE:        60,
			MaxPledgePct: 40,
		},
		Weights: rules.Weights{
			ProfitTrend:  35,
			Valuation:    20,
			FutureEvents: 25,
			Quality:      10,
			Risk:         10,
		},
		EventWeights: map[string]float64{
			entity.EventLargeOrder:        20,
			entity.EventCapacityExpansion: 25,
		},
	}
}

func newTestEngine(r *rules.Rules, now time.Time) *scoreEngine {
	engine := NewScoreEngine(r).(*scoreEngine)
	engine.now = func() time.Time { return now }
	return engine
}

func baseSnapshot() entity.StockSnapshot {
	return entity.StockSnapshot{
		Symbol:             "ACME",
		Name:               "Acme Industries",
		Exchange:           "NSE",
		Sector:             "Industrials",
		MarketCapCr:        1000,
		PE:                 15,
		ProfitQ1Cr:         10,
		ProfitQ2Cr:         12,
		ProfitQ3Cr:         14,
		ProfitQ4Cr:         16,
		ProfitTTMCr:        52,
		ProfitPrevTTMCr:    40,
		PromoterHoldingPct: 50,
		HNINetBuyingCr:     5,
	}
}

func TestScoreEngineProfitTrendWorkedExample(t *testing.T) {
	engine := newTestEngine(testRules(), time.Now())

	// growth 30% -> normalized 53.33, consistency 3/3 -> 100
	scored := engine.Score([]entity.StockSnapshot{baseSnapshot()}, nil)
	require.Len(t, scored, 1)

	assert.InDelta(t, 67.33, scored[0].ScoreBreakdown["profit_trend"], 0.01)
	assert.Equal(t, 100.0, scored[0].ScoreBreakdown["valuation"])
	assert.Contains(t, scored[0].Reasons, "Profit YoY growth: 30.0%")
	assert.Contains(t, scored[0].Reasons, "Quarterly trend consistency: 3/3")
}

func TestScoreEngineValuationBands(t *testing.T) {
	engine := newTestEngine(testRules(), time.Now())

	tests := []struct {
		name string
		pe   float64
		want float64
	}{
		{"non-positive PE is neutral", -1, 100},
		{"zero PE is neutral", 0, 100},
		{"cheap PE", 18, 100},
		{"band boundary", 20, 100},
		{"mid band decays toward 45", 40, 80},
		{"max PE hits the floor of the band", 60, 60},
		{"beyond max decays 2 points per unit", 70, 25},
		{"deep beyond max floors at zero", 200, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := baseSnapshot()
			s.PE = tc.pe
			scored := engine.Score([]entity.StockSnapshot{s}, nil)
			require.Len(t, scored, 1)
			assert.InDelta(t, tc.want, scored[0].ScoreBreakdown["valuation"], 0.01)
		})
	}
}

func TestScoreEngineValuationDefaultBandWhenMaxPEUnset(t *testing.T) {
	r := testRules()
	r.Filters.MaxPE = 0
	engine := newTestEngine(r, time.Now())

	// Band falls back to a ceiling of 40: PE 30 decays to 80 instead of
	// scoring near 100 against an unbounded band.
	s := baseSnapshot()
	s.PE = 30
	scored := engine.Score([]entity.StockSnapshot{s}, nil)
	require.Len(t, scored, 1)
	assert.InDelta(t, 80.0, scored[0].ScoreBreakdown["valuation"], 0.01)

	s.PE = 50
	scored = engine.Score([]entity.StockSnapshot{s}, nil)
	require.Len(t, scored, 1)
	assert.InDelta(t, 25.0, scored[0].ScoreBreakdown["valuation"], 0.01)
}

func TestScoreEngineNoEvents(t *testing.T) {
	engine := newTestEngine(testRules(), time.Now())

	scored := engine.Score([]entity.StockSnapshot{baseSnapshot()}, nil)
	require.Len(t, scored, 1)

	assert.Equal(t, 0.0, scored[0].ScoreBreakdown["future_events"])
	assert.Equal(t, 0, scored[0].EventCount)
	assert.Contains(t, scored[0].Reasons, "No recent qualifying events")
}

func TestScoreEngineEventRecencyDecay(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	engine := newTestEngine(testRules(), now)

	tests := []struct {
		name string
		age  int
		want float64
	}{
		{"fresh event keeps full weight", 0, 20.0},
		{"45 day old event at half decay", 45, 10.0},
		{"90 day old event floors at 35 percent", 90, 7.0},
		{"older events keep the floor", 150, 7.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			events := []entity.StockEvent{{
				Symbol:    "ACME",
				EventType: entity.EventLargeOrder,
				EventDate: now.AddDate(0, 0, -tc.age),
			}}
			scored := engine.Score([]entity.StockSnapshot{baseSnapshot()}, events)
			require.Len(t, scored, 1)
			assert.InDelta(t, tc.want, scored[0].ScoreBreakdown["future_events"], 0.01)
		})
	}
}

func TestScoreEngineUnweightedEventsCountButDoNotScore(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	engine := newTestEngine(testRules(), now)

	events := []entity.StockEvent{
		{Symbol: "ACME", EventType: "provider_custom_type", EventDate: now},
		{Symbol: "ACME", EventType: entity.EventLargeOrder, EventDate: now},
		{Symbol: "OTHER", EventType: entity.EventLargeOrder, EventDate: now},
	}

	scored := engine.Score([]entity.StockSnapshot{baseSnapshot()}, events)
	require.Len(t, scored, 1)

	assert.Equal(t, 2, scored[0].EventCount)
	assert.InDelta(t, 20.0, scored[0].ScoreBreakdown["future_events"], 0.01)
}

func TestScoreEngineEventSaturation(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	engine := newTestEngine(testRules(), now)

	var events []entity.StockEvent
	for i := 0; i < 10; i++ {
		events = append(events, entity.StockEvent{
			Symbol:    "ACME",
			EventType: entity.EventCapacityExpansion,
			EventDate: now,
		})
	}

	scored := engine.Score([]entity.StockSnapshot{baseSnapshot()}, events)
	require.Len(t, scored, 1)
	assert.Equal(t, 100.0, scored[0].ScoreBreakdown["future_events"])
}

func TestScoreEngineRiskPenaltyESMOnly(t *testing.T) {
	engine := newTestEngine(testRules(), time.Now())

	s := baseSnapshot()
	s.ESMFlag = true
	s.PledgePct = 10

	scored := engine.Score([]entity.StockSnapshot{s}, nil)
	require.Len(t, scored, 1)

	assert.Equal(t, 50.0, scored[0].ScoreBreakdown["risk_penalty"])
	assert.Contains(t, scored[0].Reasons, "Risk: ESM/ASM-like flag present")
}

func TestScoreEngineRiskPenaltyStacksAndClamps(t *testing.T) {
	engine := newTestEngine(testRules(), time.Now())

	s := baseSnapshot()
	s.ESMFlag = true
	s.GovernanceFlag = true
	s.PledgePct = 80
	s.ProfitPrevTTMCr = 100
	s.ProfitTTMCr = 50

	scored := engine.Score([]entity.StockSnapshot{s}, nil)
	require.Len(t, scored, 1)

	// 50 + 35 + 25 + 30 = 140, clamped to 100
	assert.Equal(t, 100.0, scored[0].ScoreBreakdown["risk_penalty"])
}

func TestScoreEngineZeroBaselineGrowth(t *testing.T) {
	assert.Equal(t, 100.0, yoyGrowthPct(10, 0))
	assert.Equal(t, 100.0, yoyGrowthPct(10, -5))
	assert.Equal(t, 0.0, yoyGrowthPct(-10, -5))
	assert.Equal(t, 0.0, yoyGrowthPct(0, 0))
	assert.InDelta(t, 30.0, yoyGrowthPct(52, 40), 0.001)
}

func TestScoreEngineAllScoresWithinBounds(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	engine := newTestEngine(testRules(), now)

	extreme := []entity.StockSnapshot{
		{Symbol: "A", PE: 500, ProfitTTMCr: -1000, ProfitPrevTTMCr: 2000, PledgePct: 100, ESMFlag: true, GovernanceFlag: true},
		{Symbol: "B", PE: -10, ProfitTTMCr: 1e6, ProfitPrevTTMCr: 1, PromoterHoldingPct: 200, HNINetBuyingCr: 1e5},
		{Symbol: "C"},
	}
	events := []entity.StockEvent{
		{Symbol: "B", EventType: entity.EventCapacityExpansion, EventDate: now},
	}

	for _, s := range engine.Score(extreme, events) {
		assert.GreaterOrEqual(t, s.FinalScore, 0.0)
		assert.LessOrEqual(t, s.FinalScore, 100.0)
		for name, sub := range s.ScoreBreakdown {
			assert.GreaterOrEqualf(t, sub, 0.0, "sub-score %s", name)
			assert.LessOrEqualf(t, sub, 100.0, "sub-score %s", name)
		}
		assert.LessOrEqual(t, len(s.Reasons), 10)
	}
}

func TestScoreEngineIdempotentAndStable(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	engine := newTestEngine(testRules(), now)

	twin := baseSnapshot()
	twin.Symbol = "TWIN"
	stocks := []entity.StockSnapshot{baseSnapshot(), twin}
	events := []entity.StockEvent{
		{Symbol: "ACME", EventType: entity.EventLargeOrder, EventDate: now.AddDate(0, 0, -10)},
		{Symbol: "TWIN", EventType: entity.EventLargeOrder, EventDate: now.AddDate(0, 0, -10)},
	}

	first := engine.Score(stocks, events)
	second := engine.Score(stocks, events)
	assert.Equal(t, first, second)

	// Identical scores: input order is preserved.
	require.Len(t, first, 2)
	assert.Equal(t, first[0].FinalScore, first[1].FinalScore)
	assert.Equal(t, "ACME", first[0].Symbol)
	assert.Equal(t, "TWIN", first[1].Symbol)
}

func TestScoreEngineSortsByFinalScoreDescending(t *testing.T) {
	engine := newTestEngine(testRules(), time.Now())

	weak := baseSnapshot()
	weak.Symbol = "WEAK"
	weak.ESMFlag = true
	weak.GovernanceFlag = true
	weak.PE = 120

	scored := engine.Score([]entity.StockSnapshot{weak, baseSnapshot()}, nil)
	require.Len(t, scored, 2)
	assert.Equal(t, "ACME", scored[0].Symbol)
	assert.GreaterOrEqual(t, scored[0].FinalScore, scored[1].FinalScore)
}
