// Package test реализует HTTP-обработчик отправки тестового push-уведомления.
package test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/bill-reminder/internal/http/middlewarectx"
	"github.com/magabrotheeeer/bill-reminder/internal/http/response"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/sl"
	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

// Service рассылает тестовое уведомление на все адреса пользователя.
type Service interface {
	SendTest(ctx context.Context, userUID string) (int, error)
}

// Handler обрабатывает запросы тестовой рассылки.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Тестовое уведомление
// @Description Отправляет тестовое push-уведомление на все устройства пользователя. Недействительные адреса удаляются.
// @Tags Notifications
// @Produce  json
// @Success 200 {object} response.Response "Уведомление отправлено"
// @Failure 400 {object} response.ErrorResponse "Нет зарегистрированных устройств"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Security BearerAuth
// @Router /notifications/test [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.notification.test"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := middlewarectx.UserUIDFrom(r.Context())
	if !ok {
		log.Error("user uid not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	sent, err := h.service.SendTest(r.Context(), userUID)
	if err != nil {
		if errors.Is(err, models.ErrNoEndpoints) {
			log.Info("no push endpoints registered")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("no subscription found, enable alerts first"))
			return
		}
		log.Error("failed to send test notification", sl.Err(err))
		render.Status(r, response.StatusFromError(err))
		render.JSON(w, r, response.Error("failed to send notification"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"message": "notification sent",
		"sent":    sent,
	}))
}
