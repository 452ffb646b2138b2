package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"gridalert/internal/domain"
	"gridalert/internal/store"
)

// operatorHeader carries the acknowledging operator identity. The fronting
// auth layer is expected to set it from the authenticated session.
const operatorHeader = "X-Operator"

// AlertService is the manager surface the operator API needs.
// Params: context plus per-operation arguments.
// Returns: alert state transitions and listings.
type AlertService interface {
	List(ctx context.Context) ([]domain.Alert, error)
	Acknowledge(ctx context.Context, id int64, operator string) (domain.Alert, bool, error)
	AcknowledgeAll(ctx context.Context, operator string) (int, error)
	PurgeAcknowledged(ctx context.Context) (int, error)
	ActiveCount(ctx context.Context) (int, error)
}

// Handler serves the operator alert API.
// Params: alert service and logger.
// Returns: HTTP handlers for the /api/alerts surface.
type Handler struct {
	service AlertService
	logger  *slog.Logger
}

// NewHandler creates the operator API handler.
// Params: alert service and logger.
// Returns: configured handler.
func NewHandler(service AlertService, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the API routes on the mux.
// Params: mux to mount on.
// Returns: routes registered.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/alerts", h.handleList)
	mux.HandleFunc("GET /api/alerts/count", h.handleCount)
	mux.HandleFunc("POST /api/alerts/{id}/ack", h.handleAcknowledge)
	mux.HandleFunc("POST /api/alerts/ack-all", h.handleAcknowledgeAll)
	mux.HandleFunc("POST /api/alerts/purge", h.handlePurge)
}

// handleList returns every stored alert, newest first.
func (h *Handler) handleList(writer http.ResponseWriter, request *http.Request) {
	alerts, err := h.service.List(request.Context())
	if err != nil {
		h.writeError(writer, request, err)
		return
	}
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	h.writeJSON(writer, http.StatusOK, alerts)
}

// handleCount returns the number of unacknowledged alerts.
func (h *Handler) handleCount(writer http.ResponseWriter, request *http.Request) {
	count, err := h.service.ActiveCount(request.Context())
	if err != nil {
		h.writeError(writer, request, err)
		return
	}
	h.writeJSON(writer, http.StatusOK, map[string]int{"count": count})
}

// handleAcknowledge acknowledges one alert by id.
func (h *Handler) handleAcknowledge(writer http.ResponseWriter, request *http.Request) {
	id, err := strconv.ParseInt(request.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeJSON(writer, http.StatusBadRequest, map[string]string{"error": "invalid alert id"})
		return
	}
	operator := operatorFrom(request)
	if operator == "" {
		h.writeJSON(writer, http.StatusBadRequest, map[string]string{"error": "operator identity is required"})
		return
	}

	alert, changed, err := h.service.Acknowledge(request.Context(), id, operator)
	if err != nil {
		h.writeError(writer, request, err)
		return
	}
	h.writeJSON(writer, http.StatusOK, struct {
		Alert   domain.Alert `json:"alert"`
		Changed bool         `json:"changed"`
	}{Alert: alert, Changed: changed})
}

// handleAcknowledgeAll acknowledges every active alert at once.
func (h *Handler) handleAcknowledgeAll(writer http.ResponseWriter, request *http.Request) {
	operator := operatorFrom(request)
	if operator == "" {
		h.writeJSON(writer, http.StatusBadRequest, map[string]string{"error": "operator identity is required"})
		return
	}

	count, err := h.service.AcknowledgeAll(request.Context(), operator)
	if err != nil {
		h.writeError(writer, request, err)
		return
	}
	h.writeJSON(writer, http.StatusOK, map[string]int{"acknowledged": count})
}

// handlePurge deletes acknowledged alerts from history.
func (h *Handler) handlePurge(writer http.ResponseWriter, request *http.Request) {
	count, err := h.service.PurgeAcknowledged(request.Context())
	if err != nil {
		h.writeError(writer, request, err)
		return
	}
	h.writeJSON(writer, http.StatusOK, map[string]int{"purged": count})
}

// operatorFrom extracts the operator identity from header or query.
// Params: incoming request.
// Returns: trimmed operator name, empty when absent.
func operatorFrom(request *http.Request) string {
	operator := strings.TrimSpace(request.Header.Get(operatorHeader))
	if operator == "" {
		operator = strings.TrimSpace(request.URL.Query().Get("operator"))
	}
	return operator
}

// writeError maps a service error to an HTTP response.
func (h *Handler) writeError(writer http.ResponseWriter, request *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeJSON(writer, http.StatusNotFound, map[string]string{"error": "alert not found"})
	default:
		h.logger.Error("api request failed", "path", request.URL.Path, "error", err.Error())
		h.writeJSON(writer, http.StatusServiceUnavailable, map[string]string{"error": "alert store unavailable"})
	}
}

// writeJSON writes one JSON response body with status.
func (h *Handler) writeJSON(writer http.ResponseWriter, status int, body any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(body); err != nil {
		h.logger.Warn("api response write failed", "error", err.Error())
	}
}
