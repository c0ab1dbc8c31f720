package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"stock-opportunity-engine/internal/entity"
	"stock-opportunity-engine/internal/screener/rules"
	"stock-opportunity-engine/pkg/utils"
)

// Reference ceilings for the quality sub-scores.
const (
	promoterHoldingCeilingPct = 75.0
	hniNetBuyingCeilingCr     = 20.0
	pledgeCeilingPct          = 50.0
)

const eventRecencyWindowDays = 90.0

// Valuation band ceiling used when the rules file leaves max_pe unset. The
// PE quality gate is open in that case, but the sub-score still needs a
// finite band to decay across.
const defaultValuationMaxPE = 40.0

const maxReasons = 10

// ScoreEngine ranks filtered snapshots with the multi-factor weighted model.
type ScoreEngine interface {
	Score(stocks []entity.StockSnapshot, events []entity.StockEvent) []entity.ScoredStock
}

// NewScoreEngine creates a score engine bound to one rules snapshot.
func NewScoreEngine(r *rules.Rules) ScoreEngine {
	return &scoreEngine{rules: r, now: time.Now}
}

type scoreEngine struct {
	rules *rules.Rules
	now   func() time.Time
}

// Score computes the five sub-scores and the weighted final score for every
// stock, returning the list sorted by final score descending. Ties keep
// input order. Events for symbols outside the input list are ignored.
func (e *scoreEngine) Score(stocks []entity.StockSnapshot, events []entity.StockEvent) []entity.ScoredStock {
	eventsBySymbol := make(map[string][]entity.StockEvent)
	for _, ev := range events {
		eventsBySymbol[ev.Symbol] = append(eventsBySymbol[ev.Symbol], ev)
	}

	weights := e.rules.Weights
	positiveWeightSum := weights.PositiveWeightSum()

	scored := make([]entity.ScoredStock, 0, len(stocks))
	for _, stock := range stocks {
		symbolEvents := eventsBySymbol[stock.Symbol]

		profitScore, profitReasons := e.profitTrendScore(stock)
		valuationScore, valuationReasons := e.valuationScore(stock)
		eventScore, eventReasons := e.futureEventScore(symbolEvents)
		qualityScore, qualityReasons := e.qualityScore(stock)
		riskPenalty, riskReasons := e.riskPenalty(stock)

		weightedPositive := (profitScore*weights.ProfitTrend +
			valuationScore*weights.Valuation +
			eventScore*weights.FutureEvents +
			qualityScore*weights.Quality) / positiveWeightSum

		weightedRisk := riskPenalty * (weights.Risk / 100.0)
		finalScore := utils.Clamp(weightedPositive-weightedRisk, 0.0, 100.0)

		reasons := make([]string, 0, maxReasons)
		reasons = append(reasons, profitReasons...)
		reasons = append(reasons, valuationReasons...)
		reasons = append(reasons, eventReasons...)
		reasons = append(reasons, qualityReasons...)
		reasons = append(reasons, riskReasons...)
		if len(reasons) > maxReasons {
			reasons = reasons[:maxReasons]
		}

		scored = append(scored, entity.ScoredStock{
			Symbol:      stock.Symbol,
			Name:        stock.Name,
			Exchange:    stock.Exchange,
			Sector:      stock.Sector,
			MarketCapCr: stock.MarketCapCr,
			PE:          stock.PE,
			FinalScore:  utils.Round2(finalScore),
			ScoreBreakdown: map[string]float64{
				"profit_trend":  utils.Round2(profitScore),
				"valuation":     utils.Round2(valuationScore),
				"future_events": utils.Round2(eventScore),
				"quality":       utils.Round2(qualityScore),
				"risk_penalty":  utils.Round2(riskPenalty),
			},
			Reasons:    reasons,
			EventCount: len(symbolEvents),
			Metrics:    stock.Metrics,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].FinalScore > scored[j].FinalScore
	})
	return scored
}

// profitTrendScore blends normalized YoY growth (70%) with quarter-over-
// quarter consistency (30%).
func (e *scoreEngine) profitTrendScore(stock entity.StockSnapshot) (float64, []string) {
	yoy := yoyGrowthPct(stock.ProfitTTMCr, stock.ProfitPrevTTMCr)

	quarters := []float64{stock.ProfitQ1Cr, stock.ProfitQ2Cr, stock.ProfitQ3Cr, stock.ProfitQ4Cr}
	increasingSteps := 0
	for i := 1; i < len(quarters); i++ {
		if quarters[i] >= quarters[i-1] {
			increasingSteps++
		}
	}
	consistencyScore := float64(increasingSteps) / 3.0 * 100.0

	growthScore := utils.Clamp(yoy, -50, 100)
	growthScoreNormalized := (growthScore + 50.0) / 150.0 * 100.0

	score := utils.Clamp(0.7*growthScoreNormalized+0.3*consistencyScore, 0.0, 100.0)

	reasons := []string{
		fmt.Sprintf("Profit YoY growth: %.1f%%", yoy),
		fmt.Sprintf("Quarterly trend consistency: %d/3", increasingSteps),
	}
	return score, reasons
}

// valuationScore is 100 up to PE 20, decays linearly to 45 at the configured
// max PE, then 2 points per PE unit beyond that. Non-positive PE (provider
// data gap) is treated as neutral-favorable rather than penalized.
func (e *scoreEngine) valuationScore(stock entity.StockSnapshot) (float64, []string) {
	maxPE := e.rules.Filters.MaxPE
	if maxPE <= 0 {
		maxPE = defaultValuationMaxPE
	}

	var score float64
	switch {
	case stock.PE <= 0:
		score = 100.0
	case stock.PE <= 20:
		score = 100.0
	case stock.PE <= maxPE:
		denom := maxPE - 20.0
		if denom < 1.0 {
			denom = 1.0
		}
		score = utils.Clamp(100.0-(stock.PE-20.0)/denom*40.0, 45.0, 100.0)
	default:
		score = utils.Clamp(45.0-(stock.PE-maxPE)*2.0, 0.0, 45.0)
	}

	return score, []string{fmt.Sprintf("PE: %.1f (max configured: %.1f)", stock.PE, maxPE)}
}

// futureEventScore accumulates configured event weights with a linear
// recency decay floored at 35%, so old events inside the window never fully
// vanish. Multiple strong events can saturate the 100 ceiling.
func (e *scoreEngine) futureEventScore(events []entity.StockEvent) (float64, []string) {
	if len(events) == 0 {
		return 0.0, []string{"No recent qualifying events"}
	}

	today := e.now()
	raw := 0.0
	var topEvents []string

	for _, ev := range events {
		base := e.rules.EventWeights[ev.EventType]
		if base <= 0 {
			continue
		}
		ageDays := today.Sub(ev.EventDate).Hours() / 24.0
		if ageDays < 0 {
			ageDays = 0
		}
		recency := utils.Clamp(1.0-ageDays/eventRecencyWindowDays, 0.35, 1.0)
		raw += base * recency
		topEvents = append(topEvents, fmt.Sprintf("%s (%s)", ev.EventType, ev.EventDate.Format("2006-01-02")))
	}

	score := utils.Clamp(raw, 0.0, 100.0)

	var reasons []string
	if len(topEvents) > 0 {
		if len(topEvents) > 3 {
			topEvents = topEvents[:3]
		}
		reasons = append(reasons, "Recent events: "+strings.Join(topEvents, ", "))
	}
	return score, reasons
}

// qualityScore blends promoter holding and HNI buying against fixed
// reference ceilings, less a pledge penalty.
func (e *scoreEngine) qualityScore(stock entity.StockSnapshot) (float64, []string) {
	promoterScore := utils.Clamp(stock.PromoterHoldingPct/promoterHoldingCeilingPct*100.0, 0.0, 100.0)
	hniScore := utils.Clamp(stock.HNINetBuyingCr/hniNetBuyingCeilingCr*100.0, 0.0, 100.0)
	pledgePenalty := utils.Clamp(stock.PledgePct/pledgeCeilingPct*100.0, 0.0, 100.0)

	score := utils.Clamp(0.55*promoterScore+0.45*hniScore-0.35*pledgePenalty, 0.0, 100.0)

	reasons := []string{
		fmt.Sprintf("Promoter holding: %.1f%%", stock.PromoterHoldingPct),
		fmt.Sprintf("HNI net buying: %.1f cr", stock.HNINetBuyingCr),
	}
	if stock.PledgePct > 0 {
		reasons = append(reasons, fmt.Sprintf("Pledge: %.1f%%", stock.PledgePct))
	}
	return score, reasons
}

// riskPenalty sums flat penalties for surveillance flags, governance flags,
// excess pledge, and sharp profit drops. Reported pre-scaling in the
// breakdown; the final score applies risk_weight/100.
func (e *scoreEngine) riskPenalty(stock entity.StockSnapshot) (float64, []string) {
	var reasons []string
	penalty := 0.0

	if stock.ESMFlag {
		penalty += 50.0
		reasons = append(reasons, "Risk: ESM/ASM-like flag present")
	}
	if stock.GovernanceFlag {
		penalty += 35.0
		reasons = append(reasons, "Risk: governance red flag")
	}

	maxPledge := e.rules.Filters.MaxPledgePct
	if stock.PledgePct > maxPledge {
		penalty += 25.0
		reasons = append(reasons, fmt.Sprintf("Risk: pledge above threshold (%.1f%% > %.1f%%)", stock.PledgePct, maxPledge))
	}

	if stock.ProfitPrevTTMCr > 0 {
		yoy := yoyGrowthPct(stock.ProfitTTMCr, stock.ProfitPrevTTMCr)
		if yoy < -30 {
			penalty += 30.0
			reasons = append(reasons, fmt.Sprintf("Risk: sharp profit drop (%.1f%%)", yoy))
		}
	}

	return utils.Clamp(penalty, 0.0, 100.0), reasons
}
