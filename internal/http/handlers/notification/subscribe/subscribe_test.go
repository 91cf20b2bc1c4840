package subscribe

import (
	"bytes"
	"context"
	"errors"
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

type MockService struct{ mock.Mock }

func (m *MockService) RegisterEndpoint(ctx context.Context, userUID string, ep models.PushEndpoint) (bool, error) {
	args := m.Called(ctx, userUID, ep)
	return args.Bool(0), args.Error(1)
}

func TestSubscribeHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	body := `{"endpoint":"https://fcm.googleapis.com/fcm/send/abc","keys":{"p256dh":"key","auth":"secret"}}`
	ep := models.PushEndpoint{
		Endpoint: "https://fcm.googleapis.com/fcm/send/abc",
		Keys:     models.PushKeys{P256dh: "key", Auth: "secret"},
	}

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
	}{
		{
			name: "new endpoint",
			body: body,
			setupMock: func(m *MockService) {
				m.On("RegisterEndpoint", mock.Anything, "uid-1", ep).Return(true, nil).Once()
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "already registered",
			body: body,
			setupMock: func(m *MockService) {
				m.On("RegisterEndpoint", mock.Anything, "uid-1", ep).Return(false, nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "storage error",
			body: body,
			setupMock: func(m *MockService) {
				m.On("RegisterEndpoint", mock.Anything, "uid-1", ep).Return(false, errors.New("db down")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "missing keys",
			body:           `{"endpoint":"https://fcm.googleapis.com/fcm/send/abc"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "invalid endpoint url",
			body:           `{"endpoint":"not a url","keys":{"p256dh":"key","auth":"secret"}}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/notifications/subscribe", bytes.NewBufferString(tt.body))
			req = req.WithContext(context.WithValue(req.Context(), middlewarectx.UserUID, "uid-1"))
			rec := httptest.NewRecorder()

			New(logger, svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			svc.AssertExpectations(t)
		})
	}
}
