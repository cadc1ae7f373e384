// persons.go — обработчики /api/v1/persons.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/epfl-sti/epflws/internal/api/errors"
	"github.com/epfl-sti/epflws/internal/domain/model"
	"github.com/epfl-sti/epflws/internal/service"
)

// PersonHandler — обработчик API сотрудников.
type PersonHandler struct {
	persons *service.PersonService
	logger  *slog.Logger
}

// NewPersonHandler создаёт обработчик API сотрудников.
func NewPersonHandler(persons *service.PersonService, logger *slog.Logger) *PersonHandler {
	return &PersonHandler{
		persons: persons,
		logger:  logger.With(slog.String("component", "person_handler")),
	}
}

type personResponse struct {
	ID     string `json:"id"`
	Sciper string `json:"sciper"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
}

func toPersonResponse(p *model.Person) personResponse {
	return personResponse{ID: p.ID, Sciper: p.Sciper, Name: p.Name, Email: p.Email}
}

// Get — GET /api/v1/persons/{sciper}
func (h *PersonHandler) Get(w http.ResponseWriter, r *http.Request) {
	sciper := chi.URLParam(r, "sciper")
	person, err := h.persons.FindBySciper(r.Context(), sciper)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if person == nil {
		apierrors.NotFound(w, "Сотрудник "+sciper+" не найден")
		return
	}
	writeJSON(w, http.StatusOK, toPersonResponse(person))
}

// Sync — POST /api/v1/persons/{sciper}/sync
func (h *PersonHandler) Sync(w http.ResponseWriter, r *http.Request) {
	person, err := h.persons.SyncFromDirectory(r.Context(), chi.URLParam(r, "sciper"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonResponse(person))
}
