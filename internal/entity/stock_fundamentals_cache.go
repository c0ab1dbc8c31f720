package entity

import (
	"time"

	"gorm.io/datatypes"
)

// StockFundamentalsCache is the cached fundamentals record for one symbol.
// Live price is deliberately not stored here: a fresh cache hit still
// triggers the cheap price call, only the expensive fundamentals lookup is
// skipped.
type StockFundamentalsCache struct {
	Symbol             string         `json:"symbol" gorm:"primaryKey"`
	Name               string         `json:"name"`
	Exchange           string         `json:"exchange"`
	Sector             string         `json:"sector"`
	MarketCapCr        float64        `json:"market_cap_cr"`
	PE                 float64        `json:"pe"`
	ProfitTTMCr        float64        `json:"profit_ttm_cr"`
	ProfitPrevTTMCr    float64        `json:"profit_prev_ttm_cr"`
	ProfitQ1Cr         float64        `json:"profit_q1_cr"`
	ProfitQ2Cr         float64        `json:"profit_q2_cr"`
	ProfitQ3Cr         float64        `json:"profit_q3_cr"`
	ProfitQ4Cr         float64        `json:"profit_q4_cr"`
	PromoterHoldingPct float64        `json:"promoter_holding_pct"`
	PledgePct          float64        `json:"pledge_pct"`
	HNINetBuyingCr     float64        `json:"hni_net_buying_cr"`
	Metrics            datatypes.JSON `json:"metrics" gorm:"type:jsonb"`
	FetchedAt          time.Time      `json:"fetched_at"`
}

func (StockFundamentalsCache) TableName() string {
	return "stock_fundamentals_cache"
}
