package currency

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type Handler struct {
	source Source
	logger *slog.Logger
}

func NewHandler(source Source, logger *slog.Logger) *Handler {
	return &Handler{source: source, logger: logger}
}

func (h *Handler) HandleRates(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.source.Rates(r.Context())
	if err != nil {
		h.logger.Error("failed to load rates", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"base":  BaseCurrency,
		"rates": snapshot,
	}); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
