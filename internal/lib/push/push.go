// Package push отправляет Web Push уведомления с VAPID-подписью
// и классифицирует ответы push-сервиса.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/magabrotheeeer/bill-reminder/internal/config"
	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

// ErrGone push-сервис сообщил, что адрес больше не существует (404 или 410).
// Такой адрес нужно удалить у пользователя.
var ErrGone = errors.New("push endpoint gone")

// StatusError неуспешный ответ push-сервиса, после которого адрес сохраняется.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push service responded %d: %s", e.StatusCode, e.Body)
}

// Payload содержимое уведомления, которое получает service worker браузера.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
}

// Client отправляет уведомления на push-адреса.
type Client struct {
	publicKey  string
	privateKey string
	subscriber string
	ttl        int
	httpClient webpush.HTTPClient
}

// NewClient создает Client с VAPID-ключами из cfg.
func NewClient(cfg config.WebPush) *Client {
	return &Client{
		publicKey:  cfg.VAPIDPublicKey,
		privateKey: cfg.VAPIDPrivateKey,
		subscriber: strings.TrimPrefix(cfg.VAPIDSubscriber, "mailto:"),
		ttl:        cfg.PushTTL,
		httpClient: &http.Client{Timeout: cfg.PushTimeout},
	}
}

// Send шифрует payload для адреса ep и отправляет его.
// Возвращает ошибку, оборачивающую ErrGone, если адрес удалён на стороне push-сервиса,
// и *StatusError для прочих неуспешных ответов.
func (c *Client) Send(ctx context.Context, ep models.PushEndpoint, payload Payload) error {
	const op = "push.Send"
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	sub := &webpush.Subscription{
		Endpoint: ep.Endpoint,
		Keys: webpush.Keys{
			Auth:   ep.Keys.Auth,
			P256dh: ep.Keys.P256dh,
		},
	}
	resp, err := webpush.SendNotificationWithContext(ctx, body, sub, &webpush.Options{
		HTTPClient:      c.httpClient,
		Subscriber:      c.subscriber,
		TTL:             c.ttl,
		VAPIDPublicKey:  c.publicKey,
		VAPIDPrivateKey: c.privateKey,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("%s: %w (status %d)", op, ErrGone, resp.StatusCode)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: %w", op, &StatusError{StatusCode: resp.StatusCode, Body: string(msg)})
	}
}
