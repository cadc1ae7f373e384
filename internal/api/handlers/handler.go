// handler.go — общие помощники обработчиков API: JSON-ответы и
// отображение ошибок сервисного слоя в HTTP-статусы.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/epfl-sti/epflws/internal/api/errors"
	"github.com/epfl-sti/epflws/internal/service"
)

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError отображает ошибку сервиса в ответ API.
// Неизвестные ошибки логируются и возвращаются как 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrLabNotFound), errors.Is(err, service.ErrPersonNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrLabUnicity):
		apierrors.UnicityConflict(w, err.Error())
	case errors.Is(err, service.ErrDirectoryUnavailable):
		apierrors.DirectoryUnavailable(w, err.Error())
	case errors.Is(err, service.ErrFeedUnavailable):
		apierrors.FeedUnavailable(w, err.Error())
	case errors.Is(err, context.Canceled):
		// Клиент закрыл соединение, отвечать некому
		return
	default:
		logger.ErrorContext(r.Context(), "Внутренняя ошибка",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// decodeJSON разбирает тело запроса. При ошибке пишет 400 и возвращает false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса: "+err.Error())
		return false
	}
	return true
}
