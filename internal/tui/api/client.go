// Package api provides an HTTP client for connecting to the chain-sentry backend
package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Client handles API communication with the chain-sentry backend
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Alert mirrors the alert shape returned by the backend.
type Alert struct {
	ID                string    `json:"id"`
	Category          string    `json:"category"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Source            string    `json:"source"`
	Severity          string    `json:"severity"`
	Timestamp         time.Time `json:"timestamp"`
	AffectedAddresses []string  `json:"affected_addresses,omitempty"`
	AffectedProtocols []string  `json:"affected_protocols,omitempty"`
}

// AlertsResponse is the payload of GET /v1/alerts.
type AlertsResponse struct {
	Alerts []Alert `json:"alerts"`
	Total  int     `json:"total"`
}

// HubStats is the payload of GET /v1/alerts/stats.
type HubStats struct {
	TotalAlerts int            `json:"total_alerts"`
	ByCategory  map[string]int `json:"by_category"`
	BySeverity  map[string]int `json:"by_severity"`
	Subscribers int            `json:"subscribers"`
	Sinks       int            `json:"sinks"`
	Delivery    DeliveryStats  `json:"delivery"`
}

// DeliveryStats summarizes sink delivery outcomes.
type DeliveryStats struct {
	TotalDeliveries int                       `json:"total_deliveries"`
	DeadLetterCount int                       `json:"dead_letter_count"`
	ByStatus        map[string]int            `json:"by_status"`
	BySink          map[string]map[string]int `json:"by_sink"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int    `json:"uptime_seconds"`
}

// Stats represents the combined dashboard view of the backend.
type Stats struct {
	Healthy        bool
	HealthStatus   string
	StatusReason   string
	Uptime         string
	TotalAlerts    int
	BySeverity     map[string]int
	ByCategory     map[string]int
	Subscribers    int
	Sinks          int
	DeadLetterSize int
	BlocksObserved int64
	Assessments    int64
	ActiveWindows  int64
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// GetHealth fetches health status
func (c *Client) GetHealth() (*HealthResponse, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &health, nil
}

// GetAlerts fetches the most recent alerts
func (c *Client) GetAlerts(limit int) (*AlertsResponse, error) {
	url := fmt.Sprintf("%s/v1/alerts?limit=%d", c.baseURL, limit)
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var alerts AlertsResponse
	if err := json.NewDecoder(resp.Body).Decode(&alerts); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &alerts, nil
}

// GetHubStats fetches alert hub statistics
func (c *Client) GetHubStats() (*HubStats, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/v1/alerts/stats")
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	defer resp.Body.Close()

	var stats HubStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &stats, nil
}

// parsePrometheusMetrics parses Prometheus-format metrics
func (c *Client) parsePrometheusMetrics(body string) map[string]float64 {
	metrics := make(map[string]float64)
	scanner := bufio.NewScanner(strings.NewReader(body))

	for scanner.Scan() {
		line := scanner.Text()
		// Skip comments and empty lines
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}
		// Parse metric line: metric_name value
		parts := strings.Fields(line)
		if len(parts) >= 2 {
			if val, err := strconv.ParseFloat(parts[1], 64); err == nil {
				// Labelled series are summed under the bare metric name
				name := parts[0]
				if i := strings.IndexByte(name, '{'); i >= 0 {
					name = name[:i]
				}
				metrics[name] += val
			}
		}
	}
	return metrics
}

// GetStats fetches combined stats for the dashboard
func (c *Client) GetStats() (*Stats, error) {
	stats := &Stats{
		Healthy:      false,
		HealthStatus: "unknown",
		StatusReason: "Unable to connect to backend",
	}

	health, err := c.GetHealth()
	if err != nil {
		stats.StatusReason = err.Error()
		return stats, nil
	}

	stats.HealthStatus = health.Status
	stats.Healthy = health.Status == "ok" || health.Status == "healthy"
	stats.Uptime = formatUptime(float64(health.UptimeSeconds))
	if stats.Healthy {
		stats.StatusReason = "All systems operational"
	}

	if hub, err := c.GetHubStats(); err == nil {
		stats.TotalAlerts = hub.TotalAlerts
		stats.BySeverity = hub.BySeverity
		stats.ByCategory = hub.ByCategory
		stats.Subscribers = hub.Subscribers
		stats.Sinks = hub.Sinks
		stats.DeadLetterSize = hub.Delivery.DeadLetterCount
	}

	// Supplement from the Prometheus endpoint
	resp, err := c.httpClient.Get(c.baseURL + "/metrics")
	if err == nil {
		defer resp.Body.Close()
		buf := new(strings.Builder)
		buf.Grow(4096)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			buf.WriteString(scanner.Text())
			buf.WriteString("\n")
		}
		metrics := c.parsePrometheusMetrics(buf.String())

		if blocks, ok := metrics["chain_sentry_blocks_observed_total"]; ok {
			stats.BlocksObserved = int64(blocks)
		}
		if assessed, ok := metrics["chain_sentry_assessments_total"]; ok {
			stats.Assessments = int64(assessed)
		}
		if windows, ok := metrics["chain_sentry_active_windows"]; ok {
			stats.ActiveWindows = int64(windows)
		}
	}

	return stats, nil
}

func formatUptime(seconds float64) string {
	d := time.Duration(seconds) * time.Second
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, mins, secs)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	return fmt.Sprintf("%ds", secs)
}
