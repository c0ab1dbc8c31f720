package entity

import (
	"time"

	"gorm.io/datatypes"
)

// Recommendation is one ranked row of a completed run.
type Recommendation struct {
	ID             int64          `json:"id"`
	RunID          int64          `json:"run_id"`
	Rank           int            `json:"rank"`
	Symbol         string         `json:"symbol"`
	Name           string         `json:"name"`
	Exchange       string         `json:"exchange"`
	Sector         string         `json:"sector"`
	MarketCapCr    float64        `json:"market_cap_cr"`
	PE             float64        `json:"pe"`
	FinalScore     float64        `json:"final_score"`
	ScoreBreakdown datatypes.JSON `json:"score_breakdown" gorm:"type:jsonb"`
	Reasons        datatypes.JSON `json:"reasons" gorm:"type:jsonb"`
	EventCount     int            `json:"event_count"`
	Metrics        datatypes.JSON `json:"metrics" gorm:"type:jsonb"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

func (Recommendation) TableName() string {
	return "recommendations"
}
