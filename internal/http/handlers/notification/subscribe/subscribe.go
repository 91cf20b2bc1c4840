// Package subscribe реализует HTTP-обработчик регистрации push-адреса браузера.
package subscribe

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/bill-reminder/internal/http/middlewarectx"
	"github.com/magabrotheeeer/bill-reminder/internal/http/response"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/sl"
	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

// Service сохраняет push-адрес пользователя.
type Service interface {
	RegisterEndpoint(ctx context.Context, userUID string, ep models.PushEndpoint) (bool, error)
}

// Handler обрабатывает регистрацию push-адресов.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Подписать браузер на уведомления
// @Description Сохраняет Web Push подписку браузера. Повторная регистрация того же адреса ничего не меняет.
// @Tags Notifications
// @Accept  json
// @Produce  json
// @Param request body models.PushEndpoint true "PushSubscription браузера"
// @Success 201 {object} response.Response "Адрес сохранён"
// @Success 200 {object} response.Response "Адрес уже был сохранён"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Security BearerAuth
// @Router /notifications/subscribe [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.notification.subscribe"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.PushEndpoint
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	userUID, ok := middlewarectx.UserUIDFrom(r.Context())
	if !ok {
		log.Error("user uid not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	added, err := h.service.RegisterEndpoint(r.Context(), userUID, req)
	if err != nil {
		log.Error("failed to register push endpoint", sl.Err(err))
		render.Status(r, response.StatusFromError(err))
		render.JSON(w, r, response.Error("could not register device"))
		return
	}

	if added {
		render.Status(r, http.StatusCreated)
	}
	render.JSON(w, r, response.OKWithData(map[string]any{
		"message": "device subscribed",
		"added":   added,
	}))
}
