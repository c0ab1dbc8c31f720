package entity

import "time"

// Event types recognised by the screener. Providers may emit additional
// types; they only score if the rules file assigns them a weight.
const (
	EventPreferentialAllotment = "preferential_allotment"
	EventCapacityExpansion     = "capacity_expansion"
	EventNewPlant              = "new_plant"
	EventAcquisition           = "acquisition"
	EventPartnership           = "partnership"
	EventSubsidiaryLaunch      = "subsidiary_launch"
	EventLargeOrder            = "large_order"
)

// StockSnapshot is one stock's state for a single scan. Built fresh each run
// from cached fundamentals plus a live price; never mutated afterwards.
type StockSnapshot struct {
	Symbol             string             `json:"symbol"`
	Name               string             `json:"name"`
	Exchange           string             `json:"exchange"`
	Sector             string             `json:"sector"`
	MarketCapCr        float64            `json:"market_cap_cr"`
	PE                 float64            `json:"pe"`
	ProfitTTMCr        float64            `json:"profit_ttm_cr"`
	ProfitPrevTTMCr    float64            `json:"profit_prev_ttm_cr"`
	ProfitQ1Cr         float64            `json:"profit_q1_cr"`
	ProfitQ2Cr         float64            `json:"profit_q2_cr"`
	ProfitQ3Cr         float64            `json:"profit_q3_cr"`
	ProfitQ4Cr         float64            `json:"profit_q4_cr"`
	PromoterHoldingPct float64            `json:"promoter_holding_pct"`
	PledgePct          float64            `json:"pledge_pct"`
	HNINetBuyingCr     float64            `json:"hni_net_buying_cr"`
	ESMFlag            bool               `json:"esm_flag"`
	GovernanceFlag     bool               `json:"governance_flag"`
	Metrics            map[string]float64 `json:"metrics,omitempty"`
}

// StockEvent is a corporate event attributed to a symbol. A symbol can carry
// any number of events.
type StockEvent struct {
	Symbol    string    `json:"symbol"`
	EventType string    `json:"event_type"`
	EventDate time.Time `json:"event_date"`
	ValueCr   float64   `json:"value_cr"`
	Headline  string    `json:"headline"`
}

// ScoredStock is the score engine output for one surviving snapshot.
type ScoredStock struct {
	Symbol         string             `json:"symbol"`
	Name           string             `json:"name"`
	Exchange       string             `json:"exchange"`
	Sector         string             `json:"sector"`
	MarketCapCr    float64            `json:"market_cap_cr"`
	PE             float64            `json:"pe"`
	FinalScore     float64            `json:"final_score"`
	ScoreBreakdown map[string]float64 `json:"score_breakdown"`
	Reasons        []string           `json:"reasons"`
	EventCount     int                `json:"event_count"`
	Metrics        map[string]float64 `json:"metrics,omitempty"`
}
