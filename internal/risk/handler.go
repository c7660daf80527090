package risk

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"chain-sentry/internal/knowledge"
	"chain-sentry/internal/metrics"
)

// Handler provides HTTP handlers for risk assessment.
type Handler struct {
	engine   *Engine
	kb       *knowledge.Base
	validate *validator.Validate
}

// NewHandler creates a new risk handler.
func NewHandler(engine *Engine, kb *knowledge.Base) *Handler {
	return &Handler{
		engine:   engine,
		kb:       kb,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes registers risk assessment routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/assess", h.HandleAssess)
	mux.HandleFunc("GET /v1/categories", h.HandleCategories)
	mux.HandleFunc("GET /v1/levels", h.HandleLevels)
	mux.HandleFunc("POST /v1/knowledge/search", h.HandleKnowledgeSearch)
}

type assessRequest struct {
	TargetType string `json:"target_type" validate:"required,oneof=contract protocol address"`
	TargetID   string `json:"target_id" validate:"required,min=1,max=256"`
}

// HandleAssess handles POST /v1/assess requests.
func (h *Handler) HandleAssess(w http.ResponseWriter, r *http.Request) {
	var req assessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	verdict, err := h.engine.Assess(r.Context(), TargetType(req.TargetType), req.TargetID)
	if err != nil {
		if errors.Is(err, ErrInvalidTarget) {
			h.writeError(w, http.StatusBadRequest, "invalid_target", err.Error())
			return
		}
		slog.Error("assessment failed", "target_id", req.TargetID, "error", err)
		h.writeError(w, http.StatusInternalServerError, "assessment_error", "assessment failed")
		return
	}

	metrics.AssessmentCompleted(verdict.Degraded)
	h.writeJSON(w, http.StatusOK, verdict)
}

// HandleCategories handles GET /v1/categories requests.
func (h *Handler) HandleCategories(w http.ResponseWriter, _ *http.Request) {
	categories := Categories()
	out := make([]map[string]string, 0, len(categories))
	for _, c := range categories {
		out = append(out, map[string]string{
			"id":   string(c),
			"name": c.DisplayName(),
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

// HandleLevels handles GET /v1/levels requests.
func (h *Handler) HandleLevels(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"levels": Levels()})
}

type knowledgeSearchRequest struct {
	Query string `json:"query" validate:"required,min=2,max=128"`
}

// HandleKnowledgeSearch handles POST /v1/knowledge/search requests.
func (h *Handler) HandleKnowledgeSearch(w http.ResponseWriter, r *http.Request) {
	var req knowledgeSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "failed to parse request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	results := h.kb.Search(req.Query)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"total":   len(results),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
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
