package login

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

type AuthServiceMock struct {
	mock.Mock
}

func (m *AuthServiceMock) Login(ctx context.Context, login, password string) (string, *models.User, error) {
	args := m.Called(ctx, login, password)
	user, _ := args.Get(1).(*models.User)
	return args.String(0), user, args.Error(2)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestLoginHandler_ServeHTTP(t *testing.T) {
	user := &models.User{UUID: "uid-1", Username: "testuser", Email: "test@example.com", Role: "user"}

	tests := []struct {
		name           string
		body           string
		setupMock      func(m *AuthServiceMock)
		wantStatusCode int
		wantBody       string
	}{
		{
			name: "login by username",
			body: `{"username":"testuser","password":"password123"}`,
			setupMock: func(m *AuthServiceMock) {
				m.On("Login", mock.Anything, "testuser", "password123").Return("jwt-token", user, nil).Once()
			},
			wantStatusCode: http.StatusOK,
			wantBody:       `"token":"jwt-token"`,
		},
		{
			name: "login by email",
			body: `{"email":"test@example.com","password":"password123"}`,
			setupMock: func(m *AuthServiceMock) {
				m.On("Login", mock.Anything, "test@example.com", "password123").Return("jwt-token", user, nil).Once()
			},
			wantStatusCode: http.StatusOK,
			wantBody:       `"uid":"uid-1"`,
		},
		{
			name: "invalid credentials",
			body: `{"username":"testuser","password":"wrongpass"}`,
			setupMock: func(m *AuthServiceMock) {
				m.On("Login", mock.Anything, "testuser", "wrongpass").
					Return("", nil, fmt.Errorf("services.auth.Login: %w", models.ErrInvalidCredentials)).Once()
			},
			wantStatusCode: http.StatusUnauthorized,
			wantBody:       "invalid credentials",
		},
		{
			name: "service failure",
			body: `{"username":"testuser","password":"password123"}`,
			setupMock: func(m *AuthServiceMock) {
				m.On("Login", mock.Anything, "testuser", "password123").Return("", nil, errors.New("db down")).Once()
			},
			wantStatusCode: http.StatusInternalServerError,
			wantBody:       "internal server error",
		},
		{
			name:           "neither username nor email",
			body:           `{"password":"password123"}`,
			setupMock:      func(_ *AuthServiceMock) {},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantBody:       "is a required field",
		},
		{
			name:           "broken json",
			body:           `{"username":`,
			setupMock:      func(_ *AuthServiceMock) {},
			wantStatusCode: http.StatusBadRequest,
			wantBody:       "invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(AuthServiceMock)
			tt.setupMock(svc)
			handler := New(newNoopLogger(), svc)

			req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			svc.AssertExpectations(t)
		})
	}
}
