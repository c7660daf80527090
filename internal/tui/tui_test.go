package tui

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"chain-sentry/internal/tui/api"
	"chain-sentry/internal/tui/scenes"

	tea "github.com/charmbracelet/bubbletea"
)

// keyMsg builds a tea.KeyMsg for the given key string.
func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

// ---------------------------------------------------------------------------
// 1. Model Initialization
// ---------------------------------------------------------------------------

func TestNewModelReturnsNonNil(t *testing.T) {
	m := New("http://localhost:8080")
	if m == nil {
		t.Fatal("New() returned nil")
	}
}

func TestNewModelDefaultScene(t *testing.T) {
	m := New("http://localhost:8080")
	if m.scene != SceneOverview {
		t.Errorf("expected initial scene SceneOverview (%d), got %d", SceneOverview, m.scene)
	}
}

func TestNewModelSubScenesNonNil(t *testing.T) {
	m := New("http://localhost:8080")
	if m.overview == nil {
		t.Error("overview scene is nil")
	}
	if m.feed == nil {
		t.Error("feed scene is nil")
	}
}

func TestNewModelNotQuitting(t *testing.T) {
	m := New("http://localhost:8080")
	if m.quitting {
		t.Error("model should not be quitting on init")
	}
}

func TestSceneConstants(t *testing.T) {
	if SceneOverview != 0 {
		t.Errorf("expected SceneOverview=0, got %d", SceneOverview)
	}
	if SceneFeed != 1 {
		t.Errorf("expected SceneFeed=1, got %d", SceneFeed)
	}
}

func TestModelInitReturnsCommand(t *testing.T) {
	m := New("http://localhost:8080")
	cmd := m.Init()
	if cmd == nil {
		t.Error("Model.Init() returned nil, expected a batch command")
	}
}

// ---------------------------------------------------------------------------
// 2. API Client
// ---------------------------------------------------------------------------

func TestAPIClientConstructionNonNil(t *testing.T) {
	client := api.NewClient("http://localhost:8080")
	if client == nil {
		t.Fatal("NewClient() returned nil")
	}
}

func TestAPIClientGetHealthHitsCorrectPath(t *testing.T) {
	var requestedPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		json.NewEncoder(w).Encode(api.HealthResponse{
			Status:        "ok",
			UptimeSeconds: 120,
		})
	}))
	defer ts.Close()

	client := api.NewClient(ts.URL)
	health, err := client.GetHealth()
	if err != nil {
		t.Fatalf("GetHealth() error: %v", err)
	}
	if requestedPath != "/health" {
		t.Errorf("expected path /health, got %s", requestedPath)
	}
	if health.Status != "ok" {
		t.Errorf("expected status ok, got %s", health.Status)
	}
}

func TestAPIClientGetAlertsHitsCorrectPathAndQuery(t *testing.T) {
	var requestedPath, requestedQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		requestedQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(api.AlertsResponse{
			Alerts: []api.Alert{},
			Total:  0,
		})
	}))
	defer ts.Close()

	client := api.NewClient(ts.URL)
	_, err := client.GetAlerts(100)
	if err != nil {
		t.Fatalf("GetAlerts() error: %v", err)
	}
	if requestedPath != "/v1/alerts" {
		t.Errorf("expected path /v1/alerts, got %s", requestedPath)
	}
	if !strings.Contains(requestedQuery, "limit=100") {
		t.Errorf("expected query to contain limit=100, got %s", requestedQuery)
	}
}

func TestAPIClientGetAlertsDecodesPayload(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.AlertsResponse{
			Alerts: []api.Alert{
				{
					ID:       "a1",
					Category: "whale_transaction",
					Title:    "Large transfer detected",
					Severity: "high",
				},
			},
			Total: 1,
		})
	}))
	defer ts.Close()

	client := api.NewClient(ts.URL)
	resp, err := client.GetAlerts(10)
	if err != nil {
		t.Fatalf("GetAlerts() error: %v", err)
	}
	if resp.Total != 1 || len(resp.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got total=%d len=%d", resp.Total, len(resp.Alerts))
	}
	if resp.Alerts[0].Category != "whale_transaction" {
		t.Errorf("unexpected category %s", resp.Alerts[0].Category)
	}
}

func TestAPIClientGetAlertsNon200(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := api.NewClient(ts.URL)
	if _, err := client.GetAlerts(10); err == nil {
		t.Error("expected error on 500 response")
	}
}

func TestAPIClientGetStatsHitsAllEndpoints(t *testing.T) {
	var mu sync.Mutex
	requestedPaths := make(map[string]bool)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requestedPaths[r.URL.Path] = true
		mu.Unlock()

		switch r.URL.Path {
		case "/health":
			json.NewEncoder(w).Encode(api.HealthResponse{
				Status:        "ok",
				UptimeSeconds: 300,
			})
		case "/v1/alerts/stats":
			json.NewEncoder(w).Encode(api.HubStats{
				TotalAlerts: 7,
				Subscribers: 2,
				Sinks:       3,
			})
		case "/metrics":
			w.Write([]byte("# HELP chain_sentry_blocks_observed_total\nchain_sentry_blocks_observed_total 42\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	client := api.NewClient(ts.URL)
	stats, err := client.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error: %v", err)
	}
	if stats == nil {
		t.Fatal("GetStats() returned nil stats")
	}

	for _, p := range []string{"/health", "/v1/alerts/stats", "/metrics"} {
		if !requestedPaths[p] {
			t.Errorf("expected GetStats to request %s", p)
		}
	}
}

func TestAPIClientGetStatsHealthyResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			json.NewEncoder(w).Encode(api.HealthResponse{
				Status:        "ok",
				UptimeSeconds: 600,
			})
		case "/v1/alerts/stats":
			json.NewEncoder(w).Encode(api.HubStats{
				TotalAlerts: 12,
				BySeverity:  map[string]int{"high": 4, "medium": 8},
				Subscribers: 1,
				Sinks:       2,
				Delivery: api.DeliveryStats{
					DeadLetterCount: 3,
				},
			})
		case "/metrics":
			w.Write([]byte("chain_sentry_blocks_observed_total 100\nchain_sentry_assessments_total{degraded=\"false\"} 8\nchain_sentry_assessments_total{degraded=\"true\"} 2\nchain_sentry_active_windows 5\n"))
		}
	}))
	defer ts.Close()

	client := api.NewClient(ts.URL)
	stats, err := client.GetStats()
	if err != nil {
		t.Fatalf("GetStats() error: %v", err)
	}
	if !stats.Healthy {
		t.Error("expected stats.Healthy to be true")
	}
	if stats.TotalAlerts != 12 {
		t.Errorf("expected TotalAlerts=12, got %d", stats.TotalAlerts)
	}
	if stats.BySeverity["high"] != 4 {
		t.Errorf("expected 4 high alerts, got %d", stats.BySeverity["high"])
	}
	if stats.DeadLetterSize != 3 {
		t.Errorf("expected DeadLetterSize=3, got %d", stats.DeadLetterSize)
	}
	if stats.BlocksObserved != 100 {
		t.Errorf("expected BlocksObserved=100, got %d", stats.BlocksObserved)
	}
	// Labelled series are summed
	if stats.Assessments != 10 {
		t.Errorf("expected Assessments=10, got %d", stats.Assessments)
	}
	if stats.ActiveWindows != 5 {
		t.Errorf("expected ActiveWindows=5, got %d", stats.ActiveWindows)
	}
	if stats.Uptime != "10m 0s" {
		t.Errorf("expected uptime '10m 0s', got %q", stats.Uptime)
	}
}

func TestAPIClientGetStatsConnectionFailure(t *testing.T) {
	// Use a closed test server so connection is guaranteed to fail
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	client := api.NewClient(ts.URL)
	stats, err := client.GetStats()
	// Connection errors surface as Healthy=false, not as an error
	if err != nil {
		t.Fatalf("GetStats() should not return error on connection failure, got: %v", err)
	}
	if stats == nil {
		t.Fatal("expected non-nil stats even on connection failure")
	}
	if stats.Healthy {
		t.Error("expected Healthy=false on connection failure")
	}
}

// ---------------------------------------------------------------------------
// 3. Scene Switching
// ---------------------------------------------------------------------------

func TestTabKeyCyclesScenes(t *testing.T) {
	m := New("http://localhost:8080")

	model, _ := m.Update(keyMsg("tab"))
	m = model.(*Model)
	if m.scene != SceneFeed {
		t.Errorf("expected SceneFeed after tab, got %d", m.scene)
	}

	model, _ = m.Update(keyMsg("tab"))
	m = model.(*Model)
	if m.scene != SceneOverview {
		t.Errorf("expected SceneOverview after second tab, got %d", m.scene)
	}
}

func TestNumberKeysSwitchScenes(t *testing.T) {
	m := New("http://localhost:8080")

	model, _ := m.Update(keyMsg("2"))
	m = model.(*Model)
	if m.scene != SceneFeed {
		t.Errorf("expected SceneFeed after '2', got %d", m.scene)
	}

	model, _ = m.Update(keyMsg("1"))
	m = model.(*Model)
	if m.scene != SceneOverview {
		t.Errorf("expected SceneOverview after '1', got %d", m.scene)
	}
}

func TestQuitKeySetsQuitting(t *testing.T) {
	m := New("http://localhost:8080")

	model, cmd := m.Update(keyMsg("q"))
	m = model.(*Model)
	if !m.quitting {
		t.Error("expected quitting=true after 'q'")
	}
	if cmd == nil {
		t.Error("expected tea.Quit command")
	}
}

func TestCtrlCQuits(t *testing.T) {
	m := New("http://localhost:8080")

	model, _ := m.Update(keyMsg("ctrl+c"))
	m = model.(*Model)
	if !m.quitting {
		t.Error("expected quitting=true after ctrl+c")
	}
}

func TestWindowSizePropagates(t *testing.T) {
	m := New("http://localhost:8080")

	model, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = model.(*Model)
	if m.width != 120 || m.height != 40 {
		t.Errorf("expected 120x40, got %dx%d", m.width, m.height)
	}
}

func TestTickOnlyReachesActiveScene(t *testing.T) {
	m := New("http://localhost:8080")

	// A feed tick while overview is active should not schedule feed work
	model, cmd := m.Update(scenes.TickMsg{Scene: "feed", Time: time.Now()})
	m = model.(*Model)
	if m.scene != SceneOverview {
		t.Errorf("scene changed unexpectedly to %d", m.scene)
	}
	// The overview tick is always rescheduled for the active scene
	if cmd == nil {
		t.Error("expected a reschedule command")
	}
}

// ---------------------------------------------------------------------------
// 4. Rendering
// ---------------------------------------------------------------------------

func TestViewRendersTabs(t *testing.T) {
	m := New("http://localhost:8080")
	m.width = 100

	view := m.View()
	if !strings.Contains(view, "Overview") {
		t.Error("expected view to contain Overview tab")
	}
	if !strings.Contains(view, "Alerts") {
		t.Error("expected view to contain Alerts tab")
	}
	if !strings.Contains(view, "Quit") {
		t.Error("expected view to contain help footer")
	}
}

func TestViewEmptyWhenQuitting(t *testing.T) {
	m := New("http://localhost:8080")
	m.quitting = true

	if view := m.View(); view != "" {
		t.Errorf("expected empty view while quitting, got %q", view)
	}
}

func TestOverviewSceneShowsLoading(t *testing.T) {
	s := scenes.NewOverviewScene(api.NewClient("http://localhost:8080"))
	view := s.View()
	if !strings.Contains(view, "Loading") {
		t.Error("expected loading indicator before first fetch")
	}
}

func TestFeedSceneShowsEmptyState(t *testing.T) {
	s := scenes.NewFeedScene(api.NewClient("http://localhost:8080"))
	// Simulate a completed fetch with no alerts
	s, _ = s.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	s, _ = s.Update(scenes.TickMsg{Scene: "other"})
	view := s.View()
	if !strings.Contains(view, "Loading") && !strings.Contains(view, "No alerts") {
		t.Errorf("expected loading or empty state, got %q", view)
	}
}
