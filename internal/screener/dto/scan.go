package dto

import "stock-opportunity-engine/internal/screener/rules"

// ErrorResponse is the generic error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TriggerScanRequest is the body of a manual scan trigger.
type TriggerScanRequest struct {
	RunType string `json:"run_type"`
}

// TriggerScanResponse acknowledges an enqueued background scan.
type TriggerScanResponse struct {
	Enqueued bool   `json:"enqueued"`
	RunType  string `json:"run_type"`
}

// RulesResponse carries the rules file in both raw and parsed form.
type RulesResponse struct {
	YAML  string       `json:"yaml"`
	Rules *rules.Rules `json:"rules"`
}

// UpdateRulesRequest carries a replacement rules file.
type UpdateRulesRequest struct {
	YAML string `json:"yaml"`
}
