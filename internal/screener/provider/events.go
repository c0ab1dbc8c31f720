package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"stock-opportunity-engine/internal/entity"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const (
	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

	nseBaseURL          = "https://www.nseindia.com"
	nseAnnouncementsURL = "https://www.nseindia.com/api/corporate-announcements"
	newsRSSURL          = "https://news.google.com/rss/search?q=%s+stock+NSE&hl=en-IN&gl=IN&ceid=IN:en"

	maxHeadlineLen = 220
)

var (
	crorePattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:crore|cr)\b`)
	lakhPattern  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:lakh|lac)\b`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// Keyword rules mapping announcement text to the event taxonomy, checked in
// order. First match wins.
var eventKeywordRules = []struct {
	eventType string
	needles   []string
}{
	{entity.EventPreferentialAllotment, []string{"preferential", "allotment", "warrant"}},
	{entity.EventCapacityExpansion, []string{"capacity expansion", "expand capacity", "commissioned"}},
	{entity.EventNewPlant, []string{"new plant", "plant commissioned", "factory commenced"}},
	{entity.EventAcquisition, []string{"acquisition", "acquire", "takeover"}},
	{entity.EventPartnership, []string{"partnership", "mou", "joint venture", "collaborat"}},
	{entity.EventSubsidiaryLaunch, []string{"subsidiary", "incorporated", "wholly owned"}},
	{entity.EventLargeOrder, []string{"order", "order book", "contract awarded", "work order"}},
}

var announcementDateFormats = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"02-Jan-2006",
	"02-Jan-2006 15:04:05",
	"2006-01-02 15:04:05",
}

// announcementsClient pulls corporate announcements from the exchange API
// and a news feed, classifying free text into the event taxonomy. All
// failures degrade to empty results.
type announcementsClient struct {
	client     *http.Client
	feedParser *gofeed.Parser
	booted     bool
}

func newAnnouncementsClient(base *http.Client) *announcementsClient {
	jar, _ := cookiejar.New(nil)
	client := &http.Client{Timeout: base.Timeout, Jar: jar}
	return &announcementsClient{
		client:     client,
		feedParser: gofeed.NewParser(),
	}
}

// FetchEvents returns classified events for one symbol within the lookback
// window, merging exchange announcements with news feed items.
func (c *announcementsClient) FetchEvents(ctx context.Context, symbol string, lookbackDays int) []entity.StockEvent {
	cutoff := time.Now().UTC().AddDate(0, 0, -lookbackDays)

	events := c.fetchExchangeAnnouncements(ctx, symbol, cutoff)
	events = append(events, c.fetchNewsEvents(ctx, symbol, cutoff)...)
	return events
}

func (c *announcementsClient) fetchExchangeAnnouncements(ctx context.Context, symbol string, cutoff time.Time) []entity.StockEvent {
	c.bootstrap(ctx)

	reqURL := fmt.Sprintf("%s?index=equities&symbol=%s", nseAnnouncementsURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var payload []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil
	}

	var out []entity.StockEvent
	for _, item := range payload {
		text := pickAnnouncementText(item)
		if text == "" {
			continue
		}

		eventType := classifyEventType(text)
		if eventType == "" {
			continue
		}

		eventDate := pickAnnouncementDate(item)
		if eventDate.Before(cutoff) {
			continue
		}

		out = append(out, entity.StockEvent{
			Symbol:    symbol,
			EventType: eventType,
			EventDate: eventDate,
			ValueCr:   extractValueCr(text),
			Headline:  truncate(text, maxHeadlineLen),
		})
	}
	return out
}

// fetchNewsEvents queries the news RSS feed for the symbol and classifies
// items with the same keyword taxonomy.
func (c *announcementsClient) fetchNewsEvents(ctx context.Context, symbol string, cutoff time.Time) []entity.StockEvent {
	feed, err := c.feedParser.ParseURLWithContext(fmt.Sprintf(newsRSSURL, url.QueryEscape(symbol)), ctx)
	if err != nil {
		return nil
	}

	var out []entity.StockEvent
	for _, item := range feed.Items {
		if item.PublishedParsed == nil || item.PublishedParsed.Before(cutoff) {
			continue
		}

		text := item.Title
		if desc := stripHTML(item.Description); desc != "" {
			text = text + " " + desc
		}
		text = spacePattern.ReplaceAllString(strings.TrimSpace(text), " ")

		eventType := classifyEventType(text)
		if eventType == "" {
			continue
		}

		out = append(out, entity.StockEvent{
			Symbol:    symbol,
			EventType: eventType,
			EventDate: item.PublishedParsed.UTC(),
			ValueCr:   extractValueCr(text),
			Headline:  truncate(item.Title, maxHeadlineLen),
		})
	}
	return out
}

// bootstrap primes the session cookies the announcements API requires.
func (c *announcementsClient) bootstrap(ctx context.Context) {
	if c.booted {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, nseBaseURL, nil)
	if err != nil {
		return
	}
	c.setHeaders(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
	c.booted = true
}

func (c *announcementsClient) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/json,text/plain,*/*")
	req.Header.Set("Referer", nseBaseURL+"/")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
}

// pickAnnouncementText probes the known text fields in order of usefulness.
func pickAnnouncementText(item map[string]interface{}) string {
	for _, key := range []string{"desc", "subject", "sm_name", "headline", "attchmntText"} {
		if v, ok := item[key].(string); ok && strings.TrimSpace(v) != "" {
			return spacePattern.ReplaceAllString(strings.TrimSpace(v), " ")
		}
	}
	return ""
}

// pickAnnouncementDate tries the known date fields, each against an ordered
// format ladder, before falling back to today.
func pickAnnouncementDate(item map[string]interface{}) time.Time {
	for _, key := range []string{"an_dt", "an_date", "date", "dt"} {
		raw, ok := item[key]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return time.Unix(int64(v), 0).UTC()
		case string:
			v = strings.TrimSpace(v)
			for _, format := range announcementDateFormats {
				if d, err := time.Parse(format, v); err == nil {
					return d
				}
			}
			if d, err := time.Parse(time.RFC3339, strings.Replace(v, "Z", "+00:00", 1)); err == nil {
				return d
			}
		}
	}
	return time.Now().UTC()
}

// classifyEventType maps free announcement text to the event taxonomy, or
// returns "" when no rule matches.
func classifyEventType(text string) string {
	t := strings.ToLower(text)
	for _, rule := range eventKeywordRules {
		for _, needle := range rule.needles {
			if strings.Contains(t, needle) {
				return rule.eventType
			}
		}
	}
	return ""
}

// extractValueCr pulls a monetary value in crore out of announcement text.
// Lakh values are converted; no match yields zero.
func extractValueCr(text string) float64 {
	t := strings.ReplaceAll(strings.ToLower(text), ",", "")

	if m := crorePattern.FindStringSubmatch(t); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v
		}
	}
	if m := lakhPattern.FindStringSubmatch(t); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v / 100.0
		}
	}
	return 0
}

func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Text())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
