// Package paid реализует HTTP-обработчик отметки текущего платежа как оплаченного.
package paid

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/bill-reminder/internal/http/middlewarectx"
	"github.com/magabrotheeeer/bill-reminder/internal/http/response"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/sl"
	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

// Handler обрабатывает отметку об оплате.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service сдвигает дату следующего платежа на один цикл.
type Service interface {
	MarkPaid(ctx context.Context, id int, userUID string) (time.Time, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Отметить платеж оплаченным
// @Description Сдвигает дату следующего платежа на один цикл от текущей даты платежа. Каждый вызов сдвигает дату ещё на цикл.
// @Tags Subscriptions
// @Produce  json
// @Param id path int true "ID подписки"
// @Success 200 {object} response.Response "Новая дата платежа"
// @Failure 400 {object} response.ErrorResponse "Некорректный ID"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Подписка не найдена"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Security BearerAuth
// @Router /subscriptions/{id}/paid [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.paid"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		log.Error("failed to decode id from url", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode id from url"))
		return
	}

	userUID, ok := middlewarectx.UserUIDFrom(r.Context())
	if !ok {
		log.Error("user uid not found in context")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	next, err := h.service.MarkPaid(r.Context(), id, userUID)
	if err != nil {
		status := response.StatusFromError(err)
		log.Error("failed to mark subscription paid", sl.Err(err))
		render.Status(r, status)
		if status == http.StatusNotFound {
			render.JSON(w, r, response.Error("subscription not found"))
			return
		}
		render.JSON(w, r, response.Error("could not mark subscription paid"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"id":                id,
		"next_payment_date": next.Format(models.DateLayout),
	}))
}
