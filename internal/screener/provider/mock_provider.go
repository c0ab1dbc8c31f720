package provider

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"stock-opportunity-engine/internal/entity"
)

// MockProvider serves snapshots and events from sample CSV files. Used for
// local development and as the default when no live provider is configured.
type MockProvider struct {
	stocksPath string
	eventsPath string
}

// NewMockProvider creates a CSV-backed provider.
func NewMockProvider(stocksPath, eventsPath string) *MockProvider {
	return &MockProvider{stocksPath: stocksPath, eventsPath: eventsPath}
}

// GetStockSnapshots reads the sample stocks CSV.
func (p *MockProvider) GetStockSnapshots(ctx context.Context) ([]entity.StockSnapshot, error) {
	records, header, err := readCSV(p.stocksPath)
	if err != nil {
		return nil, err
	}

	out := make([]entity.StockSnapshot, 0, len(records))
	for _, rec := range records {
		row := zipRow(header, rec)
		out = append(out, entity.StockSnapshot{
			Symbol:             strings.TrimSpace(row["symbol"]),
			Name:               strings.TrimSpace(row["name"]),
			Exchange:           strings.TrimSpace(row["exchange"]),
			Sector:             strings.TrimSpace(row["sector"]),
			MarketCapCr:        parseFloat(row["market_cap_cr"]),
			PE:                 parseFloat(row["pe"]),
			ProfitTTMCr:        parseFloat(row["profit_ttm_cr"]),
			ProfitPrevTTMCr:    parseFloat(row["profit_prev_ttm_cr"]),
			ProfitQ1Cr:         parseFloat(row["profit_q1_cr"]),
			ProfitQ2Cr:         parseFloat(row["profit_q2_cr"]),
			ProfitQ3Cr:         parseFloat(row["profit_q3_cr"]),
			ProfitQ4Cr:         parseFloat(row["profit_q4_cr"]),
			PromoterHoldingPct: parseFloat(row["promoter_holding_pct"]),
			PledgePct:          parseFloat(row["pledge_pct"]),
			HNINetBuyingCr:     parseFloat(row["hni_net_buying_cr"]),
			ESMFlag:            parseBool(row["esm_flag"]),
			GovernanceFlag:     parseBool(row["governance_flag"]),
		})
	}
	return out, nil
}

// GetRecentEvents reads the sample events CSV, dropping events older than
// the lookback window.
func (p *MockProvider) GetRecentEvents(ctx context.Context, lookbackDays int) ([]entity.StockEvent, error) {
	records, header, err := readCSV(p.eventsPath)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -lookbackDays)

	out := make([]entity.StockEvent, 0, len(records))
	for _, rec := range records {
		row := zipRow(header, rec)
		eventDate, err := time.Parse("2006-01-02", strings.TrimSpace(row["event_date"]))
		if err != nil {
			continue
		}
		if eventDate.Before(cutoff) {
			continue
		}
		out = append(out, entity.StockEvent{
			Symbol:    strings.TrimSpace(row["symbol"]),
			EventType: strings.TrimSpace(row["event_type"]),
			EventDate: eventDate,
			ValueCr:   parseFloat(row["value_cr"]),
			Headline:  strings.TrimSpace(row["headline"]),
		})
	}
	return out, nil
}

func readCSV(path string) ([][]string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("empty csv file %s", path)
	}
	return rows[1:], rows[0], nil
}

func zipRow(header, record []string) map[string]string {
	row := make(map[string]string, len(header))
	for i, key := range header {
		if i < len(record) {
			row[key] = record[i]
		}
	}
	return row
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}
