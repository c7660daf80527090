// Package news polls external security news feeds, filters for
// security-relevant items, and turns them into alerts.
package news

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"chain-sentry/internal/alerting"
	"chain-sentry/internal/storage"
)

const defaultPollInterval = 75 * time.Second

// Feed identifies one news source endpoint returning a JSON array of
// items.
type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Item is a single entry from a feed.
type Item struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// securityKeywords gate which items become alerts at all.
var securityKeywords = []string{
	"hack", "exploit", "vulnerability", "attack", "breach",
	"drained", "stolen", "rug pull", "compromise", "phishing",
}

// highSeverityKeywords escalate an item to high severity.
var highSeverityKeywords = []string{
	"critical", "hack", "exploit", "vulnerability", "drained", "stolen",
}

// mediumSeverityKeywords mark an item medium; anything else that passed
// the security gate is low.
var mediumSeverityKeywords = []string{
	"risk", "warning", "suspicious", "investigat",
}

// knownProtocols is the extraction list for affected-protocol tagging.
var knownProtocols = []string{
	"Uniswap", "Aave", "Compound", "MakerDAO", "Curve", "SushiSwap",
	"Balancer", "Yearn", "Synthetix", "dYdX", "Bancor", "1inch",
	"PancakeSwap", "Trader Joe", "Olympus", "Convex", "Lido",
}

// Monitor polls feeds and feeds security-relevant items to the hub as
// alerts. Seen item ids are recorded in the SeenStore so restarts do
// not replay old news.
type Monitor struct {
	feeds    []Feed
	hub      *alerting.Hub
	seen     storage.SeenStore
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor creates a news monitor.
func NewMonitor(feeds []Feed, hub *alerting.Hub, seen storage.SeenStore, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	if seen == nil {
		seen = storage.NewMemorySeenStore(0)
	}
	return &Monitor{
		feeds:    feeds,
		hub:      hub,
		seen:     seen,
		interval: interval,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the polling loop in a background goroutine.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
	m.logger.Info("news monitor started", "feeds", len(m.feeds), "interval", m.interval)
}

// Stop halts the polling loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("news monitor stopped")
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	for _, feed := range m.feeds {
		items, err := m.fetch(ctx, feed)
		if err != nil {
			m.logger.Warn("failed to fetch feed", "feed", feed.Name, "error", err)
			continue
		}

		for _, item := range items {
			alert := m.Evaluate(feed.Name, item)
			if alert == nil {
				continue
			}

			fresh, err := m.seen.MarkIfNew(ctx, alert.ID)
			if err != nil {
				m.logger.Warn("seen store check failed", "id", alert.ID, "error", err)
				continue
			}
			if !fresh {
				continue
			}

			m.hub.Process(ctx, alert)
		}
	}
}

func (m *Monitor) fetch(ctx context.Context, feed Feed) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	var items []Item
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("invalid feed payload: %w", err)
	}
	return items, nil
}

// Evaluate turns a feed item into an alert, or nil when the item is not
// security-relevant. A high-severity item naming a known protocol is
// classified as a protocol compromise.
func (m *Monitor) Evaluate(source string, item Item) *alerting.Alert {
	text := strings.ToLower(item.Title + " " + item.Description)

	if !containsAny(text, securityKeywords) {
		return nil
	}

	severity := alerting.SeverityLow
	switch {
	case containsAny(text, highSeverityKeywords):
		severity = alerting.SeverityHigh
	case containsAny(text, mediumSeverityKeywords):
		severity = alerting.SeverityMedium
	}

	protocols := extractProtocols(text)

	category := alerting.CategorySecurityNews
	if severity == alerting.SeverityHigh && len(protocols) > 0 {
		category = alerting.CategoryProtocolCompromise
	}

	a := alerting.NewAlert(category, severity, item.Title, item.Description, source)
	a.ID = itemID(item)
	a.AffectedProtocols = protocols
	return a
}

// itemID prefers the feed's own id; otherwise a digest of title and URL
// so the same story is deduplicated across polls.
func itemID(item Item) string {
	if item.ID != "" {
		return item.ID
	}
	sum := sha256.Sum256([]byte(item.Title + "|" + item.URL))
	return hex.EncodeToString(sum[:16])
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func extractProtocols(text string) []string {
	var out []string
	for _, p := range knownProtocols {
		if strings.Contains(text, strings.ToLower(p)) {
			out = append(out, p)
		}
	}
	return out
}
