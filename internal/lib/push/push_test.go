package push

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/bill-reminder/internal/config"
	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

// browserEndpoint генерирует ключи браузера для адреса url.
func browserEndpoint(t *testing.T, url string) models.PushEndpoint {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	return models.PushEndpoint{
		Endpoint: url,
		Keys: models.PushKeys{
			P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(auth),
		},
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	priv, pub, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	return NewClient(config.WebPush{
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		VAPIDSubscriber: "mailto:ops@example.com",
		PushTTL:         60,
		PushTimeout:     5 * time.Second,
	})
}

func TestSend_StatusClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantGone bool
		wantErr  bool
	}{
		{name: "created", status: http.StatusCreated},
		{name: "gone", status: http.StatusGone, wantErr: true, wantGone: true},
		{name: "not found", status: http.StatusNotFound, wantErr: true, wantGone: true},
		{name: "server error keeps endpoint", status: http.StatusInternalServerError, wantErr: true},
		{name: "rate limited keeps endpoint", status: http.StatusTooManyRequests, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				assert.Equal(t, "aes128gcm", r.Header.Get("Content-Encoding"))
				assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "vapid t="))
				assert.Equal(t, "60", r.Header.Get("TTL"))
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			client := newTestClient(t)
			err := client.Send(context.Background(), browserEndpoint(t, srv.URL+"/push/abc"),
				Payload{Title: "Upcoming Bill: Netflix", Body: "Amount: INR 499 is due in 3 days!"})

			assert.Equal(t, int32(1), calls.Load())
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantGone, errors.Is(err, ErrGone))

			var statusErr *StatusError
			if !tt.wantGone {
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, tt.status, statusErr.StatusCode)
			}
		})
	}
}

func TestSend_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := newTestClient(t).Send(context.Background(), browserEndpoint(t, url), Payload{Title: "x"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrGone))
}

func TestPayload_JSON(t *testing.T) {
	b, err := json.Marshal(Payload{Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"t","body":"b"}`, string(b))
}
