package provider

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"stock-opportunity-engine/internal/entity"
	"stock-opportunity-engine/internal/screener/progress"
	"stock-opportunity-engine/internal/screener/repository"
	"stock-opportunity-engine/internal/screener/rules"
	"stock-opportunity-engine/pkg/logger"
	"stock-opportunity-engine/pkg/utils"

	"github.com/PuerkitoBio/goquery"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	quoteSummaryURL = "https://query1.finance.yahoo.com/v10/finance/quoteSummary/%s?modules=price,summaryDetail,defaultKeyStatistics,financialData,earnings"
	batchQuoteURL   = "https://query1.finance.yahoo.com/v7/finance/quote?symbols=%s"
	shareholdingURL = "https://www.screener.in/company/%s/"

	cacheFlushBatchSize = 20
	inrToCr             = 1e7
)

// LiveProvider builds snapshots from cached fundamentals plus live prices
// and pulls corporate events from the exchange feeds. The expensive
// per-symbol fundamentals fetch only runs for symbols missing from the
// cache or past the freshness window.
type LiveProvider struct {
	cfg           rules.DataProvider
	cacheRepo     repository.FundamentalsCacheRepository
	tracker       progress.Tracker
	logger        *logger.Logger
	client        *http.Client
	limiter       *rate.Limiter
	announcements *announcementsClient
	eventCache    *gocache.Cache
}

// NewLiveProvider creates a live provider for the Indian market.
func NewLiveProvider(cfg rules.DataProvider, deps Deps) *LiveProvider {
	timeout := time.Duration(cfg.RequestsTimeoutSec) * time.Second
	client := &http.Client{Timeout: timeout}
	return &LiveProvider{
		cfg:           cfg,
		cacheRepo:     deps.CacheRepo,
		tracker:       deps.Tracker,
		logger:        deps.Logger,
		client:        client,
		limiter:       rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		announcements: newAnnouncementsClient(client),
		eventCache:    gocache.New(30*time.Minute, time.Hour),
	}
}

// GetStockSnapshots merges fresh cache entries with live prices, fetching
// full fundamentals only for stale or missing symbols. Newly fetched
// entries are flushed to the cache every 20 symbols so a crash loses at
// most the unflushed tail.
func (p *LiveProvider) GetStockSnapshots(ctx context.Context) ([]entity.StockSnapshot, error) {
	symbols, err := p.loadSymbols()
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, nil
	}

	cached, err := p.cacheRepo.Get(ctx, symbols, p.cfg.CacheMaxAgeDays)
	if err != nil {
		p.logger.Warn("Fundamentals cache read failed, refetching everything", logger.ErrorField(err))
		cached = map[string]entity.StockFundamentalsCache{}
	}

	var stale []string
	for _, s := range symbols {
		if _, ok := cached[s]; !ok {
			stale = append(stale, s)
		}
	}

	// Progress counts the slow per-symbol fetches, so the total is the
	// stale set, not the whole universe.
	p.tracker.StartScan(len(stale))
	p.logger.Info("Fundamentals cache status",
		logger.IntField("cached", len(cached)),
		logger.IntField("stale", len(stale)),
		logger.IntField("total", len(symbols)))

	var newEntries []entity.StockFundamentalsCache
	for i, symbol := range stale {
		if !utils.ShouldContinue(ctx, p.logger) {
			break
		}
		p.tracker.UpdateScan("fetching_fundamentals", i+1, symbol,
			fmt.Sprintf("Fetching %s (%d/%d)", symbol, i+1, len(stale)))

		if err := p.limiter.Wait(ctx); err != nil {
			break
		}

		entry, err := p.fetchFundamentals(ctx, symbol)
		if err != nil {
			p.logger.Warn("Skipping symbol, fundamentals fetch failed",
				logger.StringField("symbol", symbol), logger.ErrorField(err))
			continue
		}
		cached[symbol] = *entry
		newEntries = append(newEntries, *entry)

		if len(newEntries)%cacheFlushBatchSize == 0 {
			if err := p.cacheRepo.Upsert(ctx, newEntries[len(newEntries)-cacheFlushBatchSize:]); err != nil {
				p.logger.Warn("Incremental cache flush failed", logger.ErrorField(err))
			}
		}
	}

	if len(newEntries) > 0 {
		if err := p.cacheRepo.Upsert(ctx, newEntries); err != nil {
			p.logger.Warn("Final cache flush failed", logger.ErrorField(err))
		} else {
			p.logger.Info("Cached new fundamentals", logger.IntField("count", len(newEntries)))
		}
	}

	p.tracker.UpdateScan("fetching_prices", len(stale), "",
		fmt.Sprintf("Batch fetching live prices for %d symbols...", len(symbols)))
	prices := p.fetchBatchPrices(ctx, symbols)

	out := make([]entity.StockSnapshot, 0, len(symbols))
	for _, symbol := range symbols {
		fund, ok := cached[symbol]
		if !ok {
			continue
		}

		metrics := map[string]float64{}
		if len(fund.Metrics) > 0 {
			if err := json.Unmarshal(fund.Metrics, &metrics); err != nil {
				metrics = map[string]float64{}
			}
		}
		if price, ok := prices[symbol]; ok {
			metrics["current_price"] = price
		}

		out = append(out, entity.StockSnapshot{
			Symbol:             fund.Symbol,
			Name:               fund.Name,
			Exchange:           fund.Exchange,
			Sector:             fund.Sector,
			MarketCapCr:        fund.MarketCapCr,
			PE:                 fund.PE,
			ProfitTTMCr:        fund.ProfitTTMCr,
			ProfitPrevTTMCr:    fund.ProfitPrevTTMCr,
			ProfitQ1Cr:         fund.ProfitQ1Cr,
			ProfitQ2Cr:         fund.ProfitQ2Cr,
			ProfitQ3Cr:         fund.ProfitQ3Cr,
			ProfitQ4Cr:         fund.ProfitQ4Cr,
			PromoterHoldingPct: fund.PromoterHoldingPct,
			PledgePct:          fund.PledgePct,
			HNINetBuyingCr:     fund.HNINetBuyingCr,
			Metrics:            metrics,
		})
	}
	return out, nil
}

// GetRecentEvents pulls announcements per symbol, memoized for the duration
// of closely spaced scans. Per-symbol failures degrade to empty results.
func (p *LiveProvider) GetRecentEvents(ctx context.Context, lookbackDays int) ([]entity.StockEvent, error) {
	if !p.cfg.NSEEventsEnabled {
		return nil, nil
	}

	symbols, err := p.loadSymbols()
	if err != nil {
		return nil, err
	}

	var out []entity.StockEvent
	for _, symbol := range symbols {
		if !utils.ShouldContinue(ctx, p.logger) {
			break
		}

		cacheKey := fmt.Sprintf("events:%s:%d", symbol, lookbackDays)
		if cachedEvents, ok := p.eventCache.Get(cacheKey); ok {
			out = append(out, cachedEvents.([]entity.StockEvent)...)
			continue
		}

		if err := p.limiter.Wait(ctx); err != nil {
			break
		}
		events := p.announcements.FetchEvents(ctx, symbol, lookbackDays)
		p.eventCache.Set(cacheKey, events, gocache.DefaultExpiration)
		out = append(out, events...)
	}
	return out, nil
}

func (p *LiveProvider) loadSymbols() ([]string, error) {
	f, err := os.Open(p.cfg.SymbolsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open symbols file %s: %w", p.cfg.SymbolsFile, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read symbols file %s: %w", p.cfg.SymbolsFile, err)
	}

	var symbols []string
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		symbol := strings.ToUpper(strings.TrimSpace(row[0]))
		if symbol != "" {
			symbols = append(symbols, symbol)
		}
	}
	if p.cfg.MaxSymbols > 0 && len(symbols) > p.cfg.MaxSymbols {
		symbols = symbols[:p.cfg.MaxSymbols]
	}
	return symbols, nil
}

// fetchFundamentals does the slow full per-symbol lookup and builds a cache
// entry. Live price is stored in metrics only for reference; the batch
// price fetch overwrites it on every scan.
func (p *LiveProvider) fetchFundamentals(ctx context.Context, symbol string) (*entity.StockFundamentalsCache, error) {
	yahooSymbol := toYahooSymbol(symbol)

	info, err := p.fetchQuoteSummary(ctx, yahooSymbol)
	if err != nil {
		return nil, err
	}

	marketCap := pickFloat(info, "marketCap")
	pe := pickFloat(info, "trailingPE", "forwardPE")

	quarters := pickQuarterlyEarnings(info)
	if len(quarters) < 4 {
		netIncome := pickFloat(info, "netIncomeToCommon")
		if netIncome <= 0 {
			return nil, fmt.Errorf("no quarterly earnings for %s", symbol)
		}
		quarters = []float64{netIncome / 4, netIncome / 4, netIncome / 4, netIncome / 4}
	}
	q1, q2, q3, q4 := quarters[len(quarters)-4], quarters[len(quarters)-3], quarters[len(quarters)-2], quarters[len(quarters)-1]
	profitTTM := q1 + q2 + q3 + q4

	// No quarterly history older than four quarters from this endpoint;
	// assume modest prior-year growth so the YoY baseline stays usable.
	profitPrevTTM := profitTTM * 0.8
	if profitPrevTTM < 1.0 {
		profitPrevTTM = 1.0
	}

	exchange := "NSE"
	if strings.HasSuffix(yahooSymbol, ".BO") {
		exchange = "BSE"
	}
	name := pickString(info, "longName", "shortName")
	if name == "" {
		name = symbol
	}
	sector := pickString(info, "sector")
	if sector == "" {
		sector = "Unknown"
	}

	promoterHolding, pledge := p.fetchShareholding(ctx, symbol)
	if promoterHolding == 0 {
		promoterHolding = pickFloat(info, "heldPercentInsiders") * 100.0
	}

	currentPrice := pickFloat(info, "currentPrice", "regularMarketPrice")
	totalRevenue := pickFloat(info, "totalRevenue")
	totalDebt := pickFloat(info, "totalDebt")
	totalEquity := pickFloat(info, "totalStockholderEquity")
	operatingIncome := pickFloat(info, "operatingIncome", "ebitda")

	metrics := map[string]float64{
		"current_price":        utils.Round2(currentPrice),
		"book_value":           utils.Round2(pickFloat(info, "bookValue")),
		"price_to_book":        utils.Round2(pickFloat(info, "priceToBook")),
		"dividend_yield":       utils.Round2(pickFloat(info, "dividendYield") * 100.0),
		"roe":                  utils.Round2(pickFloat(info, "returnOnEquity") * 100.0),
		"sales_cr":             utils.Round2(totalRevenue / inrToCr),
		"net_worth_cr":         utils.Round2(totalEquity / inrToCr),
		"debt_cr":              utils.Round2(totalDebt / inrToCr),
		"operating_profit_cr":  utils.Round2(operatingIncome / inrToCr),
		"promoter_holding_pct": utils.Round2(promoterHolding),
		"high_52w":             utils.Round2(pickFloat(info, "fiftyTwoWeekHigh")),
		"low_52w":              utils.Round2(pickFloat(info, "fiftyTwoWeekLow")),
	}
	metricsJSON, _ := json.Marshal(metrics)

	return &entity.StockFundamentalsCache{
		Symbol:             symbol,
		Name:               name,
		Exchange:           exchange,
		Sector:             sector,
		MarketCapCr:        marketCap / inrToCr,
		PE:                 pe,
		ProfitTTMCr:        profitTTM / inrToCr,
		ProfitPrevTTMCr:    profitPrevTTM / inrToCr,
		ProfitQ1Cr:         q1 / inrToCr,
		ProfitQ2Cr:         q2 / inrToCr,
		ProfitQ3Cr:         q3 / inrToCr,
		ProfitQ4Cr:         q4 / inrToCr,
		PromoterHoldingPct: promoterHolding,
		PledgePct:          pledge,
		HNINetBuyingCr:     0,
		Metrics:            metricsJSON,
	}, nil
}

// fetchQuoteSummary flattens all requested quote-summary modules into one
// key/value map so extraction can probe fallback field names in order.
func (p *LiveProvider) fetchQuoteSummary(ctx context.Context, yahooSymbol string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(quoteSummaryURL, yahooSymbol), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote summary returned status %d", resp.StatusCode)
	}

	var payload struct {
		QuoteSummary struct {
			Result []map[string]map[string]interface{} `json:"result"`
		} `json:"quoteSummary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if len(payload.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("empty quote summary for %s", yahooSymbol)
	}

	flat := make(map[string]interface{})
	for _, module := range payload.QuoteSummary.Result[0] {
		for k, v := range module {
			if _, exists := flat[k]; !exists {
				flat[k] = v
			}
		}
	}
	return flat, nil
}

// fetchBatchPrices fetches live prices for all symbols in one call. Returns
// an empty map on any failure; the snapshots then keep their cached price.
func (p *LiveProvider) fetchBatchPrices(ctx context.Context, symbols []string) map[string]float64 {
	prices := make(map[string]float64)

	yahooSymbols := make([]string, 0, len(symbols))
	reverse := make(map[string]string, len(symbols))
	for _, s := range symbols {
		ys := toYahooSymbol(s)
		yahooSymbols = append(yahooSymbols, ys)
		reverse[ys] = s
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf(batchQuoteURL, strings.Join(yahooSymbols, ",")), nil)
	if err != nil {
		return prices
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("Batch price fetch failed", logger.ErrorField(err))
		return prices
	}
	defer resp.Body.Close()

	var payload struct {
		QuoteResponse struct {
			Result []struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"result"`
		} `json:"quoteResponse"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		p.logger.Warn("Batch price decode failed", logger.ErrorField(err))
		return prices
	}

	for _, q := range payload.QuoteResponse.Result {
		if q.RegularMarketPrice <= 0 {
			continue
		}
		original, ok := reverse[q.Symbol]
		if !ok {
			original = strings.TrimSuffix(strings.TrimSuffix(q.Symbol, ".NS"), ".BO")
		}
		prices[original] = utils.Round2(q.RegularMarketPrice)
	}

	p.logger.Info("Batch fetched prices",
		logger.IntField("fetched", len(prices)), logger.IntField("requested", len(symbols)))
	return prices
}

// fetchShareholding scrapes promoter holding and pledge percentages from the
// company page. Best effort: zeros on any failure.
func (p *LiveProvider) fetchShareholding(ctx context.Context, symbol string) (promoterPct, pledgePct float64) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(shareholdingURL, symbol), nil)
	if err != nil {
		return 0, 0
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, 0
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, 0
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return 0, 0
	}

	doc.Find("#top-ratios li").Each(func(_ int, sel *goquery.Selection) {
		name := strings.ToLower(strings.TrimSpace(sel.Find(".name").Text()))
		value := strings.TrimSpace(sel.Find(".value").Text())
		switch {
		case strings.Contains(name, "promoter holding"):
			promoterPct = parsePct(value)
		case strings.Contains(name, "pledged"):
			pledgePct = parsePct(value)
		}
	})
	return promoterPct, pledgePct
}

func parsePct(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func toYahooSymbol(symbol string) string {
	if strings.HasSuffix(symbol, ".NS") || strings.HasSuffix(symbol, ".BO") {
		return symbol
	}
	return symbol + ".NS"
}

// pickFloat probes the flattened quote map with fallback keys in order,
// unwrapping Yahoo's {"raw": n, "fmt": "..."} envelopes.
func pickFloat(m map[string]interface{}, keys ...string) float64 {
	for _, key := range keys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case float64:
			if val != 0 {
				return val
			}
		case map[string]interface{}:
			if raw, ok := val["raw"].(float64); ok && raw != 0 {
				return raw
			}
		}
	}
	return 0
}

func pickString(m map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// pickQuarterlyEarnings extracts the last four quarterly earnings figures in
// chronological order from the earnings module.
func pickQuarterlyEarnings(m map[string]interface{}) []float64 {
	chart, ok := m["financialsChart"].(map[string]interface{})
	if !ok {
		return nil
	}
	quarterly, ok := chart["quarterly"].([]interface{})
	if !ok {
		return nil
	}

	var out []float64
	for _, item := range quarterly {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		earnings, ok := entry["earnings"]
		if !ok {
			continue
		}
		switch val := earnings.(type) {
		case float64:
			out = append(out, val)
		case map[string]interface{}:
			if raw, ok := val["raw"].(float64); ok {
				out = append(out, raw)
			}
		}
	}
	return out
}
