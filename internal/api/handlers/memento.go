// memento.go — обработчик GET /memento: HTML-фрагмент ленты событий.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/epfl-sti/epflws/internal/memento"
	"github.com/epfl-sti/epflws/internal/service"
)

// MementoHandler — обработчик ленты событий Memento.
type MementoHandler struct {
	memento *service.MementoService
	logger  *slog.Logger
}

// NewMementoHandler создаёт обработчик ленты событий.
func NewMementoHandler(svc *service.MementoService, logger *slog.Logger) *MementoHandler {
	return &MementoHandler{
		memento: svc,
		logger:  logger.With(slog.String("component", "memento_handler")),
	}
}

// Render — GET /memento?tmpl=&channel=&lang=...
func (h *MementoHandler) Render(w http.ResponseWriter, r *http.Request) {
	attrs := memento.ParseAttributes(r.URL.Query())
	html, err := h.memento.Render(r.Context(), attrs)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}
