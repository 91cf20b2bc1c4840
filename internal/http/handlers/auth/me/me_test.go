package me

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/bill-reminder/internal/http/middlewarectx"
	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

type ServiceMock struct{ mock.Mock }

func (m *ServiceMock) Me(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func TestMeHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("returns profile", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("Me", mock.Anything, "uid-1").Return(&models.User{UUID: "uid-1", Username: "alice", Email: "a@example.com"}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req = req.WithContext(context.WithValue(req.Context(), middlewarectx.UserUID, "uid-1"))
		rec := httptest.NewRecorder()
		New(logger, svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"username":"alice"`)
		assert.NotContains(t, rec.Body.String(), "password")
	})

	t.Run("missing user in context", func(t *testing.T) {
		rec := httptest.NewRecorder()
		New(logger, new(ServiceMock)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("deleted user", func(t *testing.T) {
		svc := new(ServiceMock)
		svc.On("Me", mock.Anything, "uid-2").Return(nil, models.ErrNotFound).Once()

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req = req.WithContext(context.WithValue(req.Context(), middlewarectx.UserUID, "uid-2"))
		rec := httptest.NewRecorder()
		New(logger, svc).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
