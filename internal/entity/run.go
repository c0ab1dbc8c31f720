package entity

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run records one scan attempt. A row is created with status running before
// any provider call and transitions exactly once to completed or failed.
type Run struct {
	ID            int64          `json:"id"`
	RunType       string         `json:"run_type"`
	StartedAt     time.Time      `json:"started_at"`
	CompletedAt   sql.NullTime   `json:"completed_at"`
	Status        string         `json:"status"`
	RulesSnapshot datatypes.JSON `json:"rules_snapshot" gorm:"type:jsonb"`
	Summary       datatypes.JSON `json:"summary" gorm:"type:jsonb"`
	ErrorText     sql.NullString `json:"error_text"`
}

func (Run) TableName() string {
	return "runs"
}

// RunSummary is the counts block written on completion.
type RunSummary struct {
	RunID            int64  `json:"run_id"`
	RunType          string `json:"run_type"`
	UniverseSize     int    `json:"universe_size"`
	EligibleUniverse int    `json:"eligible_universe"`
	PassedFilters    int    `json:"passed_filters"`
	RecommendedCount int    `json:"recommended_count"`
}
