package alerting

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// Handler provides HTTP handlers for alert queries and subscriptions.
type Handler struct {
	hub *Hub
}

// NewHandler creates a new alert handler.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes registers alert routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/alerts", h.HandleListAlerts)
	mux.HandleFunc("GET /v1/alerts/stats", h.HandleStats)
	mux.HandleFunc("POST /v1/subscribe", h.HandleSubscribe)
	mux.HandleFunc("POST /v1/unsubscribe", h.HandleUnsubscribe)
}

// HandleListAlerts handles GET /v1/alerts requests. With a subscriber
// parameter it returns that subscriber's interest-matched alerts;
// otherwise it returns the filtered global history.
func (h *Handler) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var alerts []*Alert
	if subscriber := q.Get("subscriber"); subscriber != "" {
		alerts = h.hub.AlertsFor(subscriber)
	} else {
		filter := AlertFilter{
			Category: Category(q.Get("category")),
			Severity: Severity(q.Get("severity")),
		}
		if limit := q.Get("limit"); limit != "" {
			if l, err := strconv.Atoi(limit); err == nil && l > 0 {
				filter.Limit = l
			}
		}
		if filter.Limit == 0 {
			filter.Limit = 100
		}
		alerts = h.hub.Alerts(filter)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"total":  len(alerts),
	})
}

type subscriptionRequest struct {
	Subscriber string `json:"subscriber"`
	Kind       string `json:"kind"`
	Value      string `json:"value"`
}

// HandleSubscribe handles POST /v1/subscribe requests.
func (h *Handler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse request body")
		return
	}
	if req.Subscriber == "" || req.Value == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "subscriber and value fields are required")
		return
	}

	if err := h.hub.Subscribe(req.Subscriber, InterestKind(req.Kind), req.Value); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "subscribed"})
}

// HandleUnsubscribe handles POST /v1/unsubscribe requests.
func (h *Handler) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse request body")
		return
	}
	if req.Subscriber == "" || req.Value == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "subscriber and value fields are required")
		return
	}

	if err := h.hub.Unsubscribe(req.Subscriber, InterestKind(req.Kind), req.Value); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

// HandleStats handles GET /v1/alerts/stats requests.
func (h *Handler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.hub.Stats())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
