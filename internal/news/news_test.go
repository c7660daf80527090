package news

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chain-sentry/internal/alerting"
	"chain-sentry/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMonitor(feeds ...Feed) (*Monitor, *alerting.Hub) {
	hub := alerting.NewHub(nil, nil, quietLogger())
	m := NewMonitor(feeds, hub, storage.NewMemorySeenStore(time.Hour), 5*time.Millisecond, quietLogger())
	return m, hub
}

// ---
// Item evaluation
// ---

func TestEvaluateFiltersNonSecurityNews(t *testing.T) {
	m, _ := newTestMonitor()

	alert := m.Evaluate("feed", Item{
		Title:       "Token prices rally",
		Description: "Markets are up across the board.",
	})
	if alert != nil {
		t.Errorf("non-security item should be dropped, got %+v", alert)
	}
}

func TestEvaluateSeverity(t *testing.T) {
	m, _ := newTestMonitor()

	tests := []struct {
		name  string
		title string
		want  alerting.Severity
	}{
		{"exploit is high", "Exploit drains bridge", alerting.SeverityHigh},
		{"vulnerability is high", "Vulnerability disclosed in lending pool attack", alerting.SeverityHigh},
		{"warning is medium", "Warning: suspicious activity attack pattern", alerting.SeverityMedium},
		{"plain breach is low", "Minor breach reported", alerting.SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := m.Evaluate("feed", Item{Title: tt.title})
			if alert == nil {
				t.Fatal("expected an alert")
			}
			if alert.Severity != tt.want {
				t.Errorf("severity = %s, want %s", alert.Severity, tt.want)
			}
		})
	}
}

func TestEvaluateProtocolExtraction(t *testing.T) {
	m, _ := newTestMonitor()

	alert := m.Evaluate("feed", Item{
		Title:       "Aave and Compound pools targeted in flash loan attack",
		Description: "Attackers probed lending markets.",
	})
	if alert == nil {
		t.Fatal("expected an alert")
	}
	if len(alert.AffectedProtocols) != 2 {
		t.Errorf("protocols = %v, want Aave and Compound", alert.AffectedProtocols)
	}
}

func TestEvaluateProtocolCompromiseCategory(t *testing.T) {
	m, _ := newTestMonitor()

	alert := m.Evaluate("feed", Item{Title: "Curve pools drained in exploit"})
	if alert == nil {
		t.Fatal("expected an alert")
	}
	if alert.Category != alerting.CategoryProtocolCompromise {
		t.Errorf("category = %s, want protocol_compromise", alert.Category)
	}

	alert = m.Evaluate("feed", Item{Title: "Generic phishing warning for wallet users"})
	if alert == nil {
		t.Fatal("expected an alert")
	}
	if alert.Category != alerting.CategorySecurityNews {
		t.Errorf("category = %s, want security_news", alert.Category)
	}
}

func TestItemIDStable(t *testing.T) {
	a := itemID(Item{Title: "Exploit", URL: "https://example.com/1"})
	b := itemID(Item{Title: "Exploit", URL: "https://example.com/1"})
	c := itemID(Item{Title: "Exploit", URL: "https://example.com/2"})

	if a != b {
		t.Error("same item should produce the same id")
	}
	if a == c {
		t.Error("different items should produce different ids")
	}
	if itemID(Item{ID: "explicit"}) != "explicit" {
		t.Error("explicit feed id should win")
	}
}

// ---
// Polling loop
// ---

func TestMonitorIngestsAndDeduplicates(t *testing.T) {
	items := []Item{
		{ID: "n1", Title: "Exploit drains Aave pool", Description: "details"},
		{ID: "n2", Title: "Nothing interesting", Description: "markets"},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(items)
	}))
	defer server.Close()

	m, hub := newTestMonitor(Feed{Name: "testfeed", URL: server.URL})
	m.Start(context.Background())
	defer m.Stop()

	deadline := time.After(2 * time.Second)
	for len(hub.Alerts(alerting.AlertFilter{})) == 0 {
		select {
		case <-deadline:
			t.Fatal("no alert ingested within deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Let several polls pass; the seen store must suppress replays.
	time.Sleep(50 * time.Millisecond)

	alerts := hub.Alerts(alerting.AlertFilter{})
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 alert despite repeated polls, got %d", len(alerts))
	}
	if alerts[0].Source != "testfeed" {
		t.Errorf("source = %q, want testfeed", alerts[0].Source)
	}
}

func TestMonitorSurvivesFeedErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode([]Item{{ID: "n1", Title: "Exploit reported"}})
	}))
	defer server.Close()

	m, hub := newTestMonitor(Feed{Name: "flaky", URL: server.URL})
	m.Start(context.Background())
	defer m.Stop()

	deadline := time.After(2 * time.Second)
	for len(hub.Alerts(alerting.AlertFilter{})) == 0 {
		select {
		case <-deadline:
			t.Fatal("monitor did not recover from feed errors")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
