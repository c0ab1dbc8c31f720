package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DataProvider configures where snapshots and events come from.
type DataProvider struct {
	Type               string `yaml:"type" json:"type"`
	SymbolsFile        string `yaml:"symbols_file" json:"symbols_file"`
	MaxSymbols         int    `yaml:"max_symbols" json:"max_symbols"`
	RequestsTimeoutSec int    `yaml:"requests_timeout_sec" json:"requests_timeout_sec"`
	EventsLookbackDays int    `yaml:"events_lookback_days" json:"events_lookback_days"`
	NSEEventsEnabled   bool   `yaml:"nse_events_enabled" json:"nse_events_enabled"`
	CacheMaxAgeDays    int    `yaml:"cache_max_age_days" json:"cache_max_age_days"`
}

// Universe bounds the candidate set before any quality check runs.
type Universe struct {
	MinMarketCapCr   float64  `yaml:"min_market_cap_cr" json:"min_market_cap_cr"`
	MaxMarketCapCr   float64  `yaml:"max_market_cap_cr" json:"max_market_cap_cr"`
	Exchanges        []string `yaml:"exchanges" json:"exchanges"`
	SectorsAllowlist []string `yaml:"sectors_allowlist" json:"sectors_allowlist"`
}

// Filters are the quality gates applied after the universe cut. MaxPE left
// unset keeps the PE gate open; the valuation sub-score then falls back to
// its own band ceiling.
type Filters struct {
	ExcludeESM            bool    `yaml:"exclude_esm" json:"exclude_esm"`
	ExcludeLossMaking     bool    `yaml:"exclude_loss_making" json:"exclude_loss_making"`
	MinProfitTTMCr        float64 `yaml:"min_profit_ttm_cr" json:"min_profit_ttm_cr"`
	MinProfitYoYGrowthPct float64 `yaml:"min_profit_yoy_growth_pct" json:"min_profit_yoy_growth_pct"`
	MaxPE                 float64 `yaml:"max_pe" json:"max_pe"`
	MaxPledgePct          float64 `yaml:"max_pledge_pct" json:"max_pledge_pct"`
}

// Weights are the factor weights. The four positive factors are normalized
// against their own sum; risk is scaled by risk/100 and subtracted.
type Weights struct {
	ProfitTrend  float64 `yaml:"profit_trend" json:"profit_trend"`
	Valuation    float64 `yaml:"valuation" json:"valuation"`
	FutureEvents float64 `yaml:"future_events" json:"future_events"`
	Quality      float64 `yaml:"quality" json:"quality"`
	Risk         float64 `yaml:"risk" json:"risk"`
}

// Schedules holds the cron expressions driving scheduled scans.
type Schedules struct {
	FullScanCron  string `yaml:"full_scan_cron" json:"full_scan_cron"`
	EventScanCron string `yaml:"event_scan_cron" json:"event_scan_cron"`
	Timezone      string `yaml:"timezone" json:"timezone"`
}

// UI holds presentation-side knobs the pipeline still needs (top-N cut).
type UI struct {
	MaxRecommendationsPerRun int `yaml:"max_recommendations_per_run" json:"max_recommendations_per_run"`
}

// Rules is the full validated screener configuration. It is treated as a
// frozen value for the duration of one run; the snapshot stored on the run
// row is this struct serialized as JSON.
type Rules struct {
	DataProvider DataProvider       `yaml:"data_provider" json:"data_provider"`
	Universe     Universe           `yaml:"universe" json:"universe"`
	Filters      Filters            `yaml:"filters" json:"filters"`
	Weights      Weights            `yaml:"weights" json:"weights"`
	EventWeights map[string]float64 `yaml:"event_weights" json:"event_weights"`
	Schedules    Schedules          `yaml:"schedules" json:"schedules"`
	UI           UI                 `yaml:"ui" json:"ui"`
}

// PositiveWeightSum returns the sum of the four positive factor weights.
func (w Weights) PositiveWeightSum() float64 {
	return w.ProfitTrend + w.Valuation + w.FutureEvents + w.Quality
}

// Validate checks the structural invariants of a rules document.
func Validate(r *Rules) error {
	if r.Schedules.FullScanCron == "" {
		return fmt.Errorf("missing schedules.full_scan_cron")
	}
	if r.Schedules.EventScanCron == "" {
		return fmt.Errorf("missing schedules.event_scan_cron")
	}
	if r.Schedules.Timezone == "" {
		return fmt.Errorf("missing schedules.timezone")
	}
	if r.EventWeights == nil {
		return fmt.Errorf("missing event_weights")
	}
	if r.Weights.PositiveWeightSum() <= 0 {
		return fmt.Errorf("sum of positive weights must be > 0")
	}
	if r.Weights.Risk < 0 {
		return fmt.Errorf("weights.risk must be >= 0")
	}
	return nil
}

// Repository loads and persists the YAML rules file.
type Repository interface {
	Load() (*Rules, error)
	LoadRaw() (string, error)
	SaveRaw(yamlText string) (*Rules, error)
}

// NewFileRepository creates a rules repository backed by a YAML file.
func NewFileRepository(path string) Repository {
	return &fileRepository{path: path}
}

type fileRepository struct {
	path string
}

// Load reads and validates the rules file.
func (r *fileRepository) Load() (*Rules, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", r.path, err)
	}
	return Parse(data)
}

// LoadRaw returns the raw YAML text of the rules file.
func (r *fileRepository) LoadRaw() (string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return "", fmt.Errorf("failed to read rules file %s: %w", r.path, err)
	}
	return string(data), nil
}

// SaveRaw validates then writes the given YAML text. Invalid rules never
// reach disk.
func (r *fileRepository) SaveRaw(yamlText string) (*Rules, error) {
	parsed, err := Parse([]byte(yamlText))
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(r.path, []byte(yamlText), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write rules file %s: %w", r.path, err)
	}
	return parsed, nil
}

// Parse unmarshals and validates a YAML rules document.
func Parse(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}
	applyDefaults(&r)
	if err := Validate(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

func applyDefaults(r *Rules) {
	if r.DataProvider.EventsLookbackDays == 0 {
		r.DataProvider.EventsLookbackDays = 90
	}
	if r.DataProvider.CacheMaxAgeDays == 0 {
		r.DataProvider.CacheMaxAgeDays = 90
	}
	if r.DataProvider.RequestsTimeoutSec == 0 {
		r.DataProvider.RequestsTimeoutSec = 15
	}
	if r.DataProvider.MaxSymbols == 0 {
		r.DataProvider.MaxSymbols = 500
	}
	if r.Universe.MaxMarketCapCr == 0 {
		r.Universe.MaxMarketCapCr = 1e9
	}
	if r.Filters.MaxPledgePct == 0 {
		r.Filters.MaxPledgePct = 40
	}
	if r.UI.MaxRecommendationsPerRun == 0 {
		r.UI.MaxRecommendationsPerRun = 25
	}
}
