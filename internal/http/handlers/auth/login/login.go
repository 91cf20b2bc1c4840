// Package login реализует HTTP-обработчик для запросов аутентификации пользователей.
//
// Пользователь входит по имени или по email и паролю. При успехе возвращается JWT,
// при неверных учетных данных 401.
package login

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/bill-reminder/internal/http/response"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/sl"
	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

// Request структура входных данных для авторизации.
//
// Нужно указать username или email. Пароль: минимум 6 символов.
type Request struct {
	Username string `json:"username" validate:"omitempty,min=3,max=50"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Handler обрабатывает HTTP-запросы для авторизации.
type Handler struct {
	log      *slog.Logger        // Логгер для записи операций и ошибок
	service  Service             // Сервис аутентификации
	validate *validator.Validate // Валидатор для проверки входных данных
}

// Service описывает интерфейс бизнес-логики аутентификации.
type Service interface {
	Login(ctx context.Context, login, password string) (string, *models.User, error)
}

// New создает новый экземпляр Handler с указанными логгером и сервисом аутентификации.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Авторизация пользователя
// @Description Аутентифицирует пользователя по имени или email и паролю. Возвращает JWT.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Учетные данные пользователя"
// @Success 200 {object} response.Response "Успешная авторизация"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неверные учетные данные"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 429 {object} response.ErrorResponse "Слишком много запросов"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /login [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.login"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
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

	login := req.Username
	if login == "" {
		login = req.Email
	}
	if login == "" {
		log.Error("neither username nor email provided")
		render.Status(r, http.StatusUnprocessableEntity)
		render.JSON(w, r, response.Error("field Username or Email is a required field"))
		return
	}

	token, user, err := h.service.Login(r.Context(), login, req.Password)
	if err != nil {
		status := response.StatusFromError(err)
		log.Error("login failed", sl.Err(err))
		render.Status(r, status)
		if status == http.StatusUnauthorized {
			render.JSON(w, r, response.Error("invalid credentials"))
			return
		}
		render.JSON(w, r, response.Error("internal server error"))
		return
	}

	log.Info("login success", slog.String("username", user.Username))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"token":    token,
		"uid":      user.UUID,
		"role":     user.Role,
		"username": user.Username,
		"email":    user.Email,
	}))
}
