package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newHandlerMux() (*Hub, *http.ServeMux) {
	hub, _ := newTestHub()
	h := NewHandler(hub)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return hub, mux
}

func TestHandleListAlerts(t *testing.T) {
	hub, mux := newHandlerMux()
	hub.Process(context.Background(), whaleAlert("a1"))

	req := httptest.NewRequest("GET", "/v1/alerts", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp struct {
		Alerts []*Alert `json:"alerts"`
		Total  int      `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Total)
	}
}

func TestHandleListAlertsBySubscriber(t *testing.T) {
	hub, mux := newHandlerMux()
	hub.Subscribe("user1", InterestAddress, "0xabc")
	hub.Process(context.Background(), whaleAlert("a1"))

	req := httptest.NewRequest("GET", "/v1/alerts?subscriber=user1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var resp struct {
		Total int `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("total = %d, want 1", resp.Total)
	}
}

func TestHandleSubscribeAndUnsubscribe(t *testing.T) {
	hub, mux := newHandlerMux()
	hub.Process(context.Background(), whaleAlert("a1"))

	body := `{"subscriber":"user1","kind":"address","value":"0xabc"}`
	req := httptest.NewRequest("POST", "/v1/subscribe", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("subscribe: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(hub.AlertsFor("user1")) != 1 {
		t.Error("subscription did not take effect")
	}

	req = httptest.NewRequest("POST", "/v1/unsubscribe", strings.NewReader(body))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unsubscribe: expected status 200, got %d", rec.Code)
	}
	if len(hub.AlertsFor("user1")) != 0 {
		t.Error("unsubscribe did not take effect")
	}
}

func TestHandleSubscribeValidation(t *testing.T) {
	_, mux := newHandlerMux()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"subscriber":`},
		{"missing value", `{"subscriber":"user1","kind":"address"}`},
		{"unknown kind", `{"subscriber":"user1","kind":"planet","value":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/v1/subscribe", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestHandleAlertStats(t *testing.T) {
	hub, mux := newHandlerMux()
	hub.Process(context.Background(), whaleAlert("a1"))

	req := httptest.NewRequest("GET", "/v1/alerts/stats", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var stats map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats["total_alerts"].(float64) != 1 {
		t.Errorf("total_alerts = %v, want 1", stats["total_alerts"])
	}
}
