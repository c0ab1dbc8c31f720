package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stock-opportunity-engine/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMockProviderGetStockSnapshots(t *testing.T) {
	stocksCSV := `symbol,name,exchange,sector,market_cap_cr,pe,profit_ttm_cr,profit_prev_ttm_cr,profit_q1_cr,profit_q2_cr,profit_q3_cr,profit_q4_cr,promoter_holding_pct,pledge_pct,hni_net_buying_cr,esm_flag,governance_flag
APLAPOLLO,APL Apollo Tubes,NSE,Metals,22000,38.5,780,640,180,190,200,210,29.9,0,12,false,false
GENSOL,Gensol Engineering,NSE,Power,3200,55,110,95,25,28,27,30,62,78,2,true,true
`
	p := NewMockProvider(writeTempCSV(t, "stocks.csv", stocksCSV), "")

	stocks, err := p.GetStockSnapshots(context.Background())
	require.NoError(t, err)
	require.Len(t, stocks, 2)

	first := stocks[0]
	assert.Equal(t, "APLAPOLLO", first.Symbol)
	assert.Equal(t, "APL Apollo Tubes", first.Name)
	assert.Equal(t, "NSE", first.Exchange)
	assert.Equal(t, 22000.0, first.MarketCapCr)
	assert.Equal(t, 38.5, first.PE)
	assert.Equal(t, 780.0, first.ProfitTTMCr)
	assert.False(t, first.ESMFlag)

	second := stocks[1]
	assert.True(t, second.ESMFlag)
	assert.True(t, second.GovernanceFlag)
	assert.Equal(t, 78.0, second.PledgePct)
}

func TestMockProviderGetRecentEventsHonorsLookback(t *testing.T) {
	now := time.Now().UTC()
	recent := now.AddDate(0, 0, -10).Format("2006-01-02")
	stale := now.AddDate(0, 0, -120).Format("2006-01-02")
	eventsCSV := fmt.Sprintf(`symbol,event_type,event_date,value_cr,headline
APLAPOLLO,%s,%s,300,Large order from infra major
KPITTECH,%s,%s,0,Old partnership announcement
`, entity.EventLargeOrder, recent, entity.EventPartnership, stale)

	p := NewMockProvider("", writeTempCSV(t, "events.csv", eventsCSV))

	events, err := p.GetRecentEvents(context.Background(), 90)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.Equal(t, "APLAPOLLO", events[0].Symbol)
	assert.Equal(t, entity.EventLargeOrder, events[0].EventType)
	assert.Equal(t, 300.0, events[0].ValueCr)
}

func TestMockProviderSkipsUnparseableEventDates(t *testing.T) {
	eventsCSV := `symbol,event_type,event_date,value_cr,headline
BADROW,large_order,not-a-date,10,Broken row
`
	p := NewMockProvider("", writeTempCSV(t, "events.csv", eventsCSV))

	events, err := p.GetRecentEvents(context.Background(), 90)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestMockProviderMissingFile(t *testing.T) {
	p := NewMockProvider(filepath.Join(t.TempDir(), "absent.csv"), "")
	_, err := p.GetStockSnapshots(context.Background())
	assert.Error(t, err)
}
