// Package services доставляет напоминания о платежах по email и Web Push
// и управляет push-адресами пользователей.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/bill-reminder/internal/lib/metrics"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/push"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/sl"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/smtp"
	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

const (
	defaultConcurrency = 8
	notificationIcon   = "/vite.svg"
)

// Pusher отправляет одно уведомление на один push-адрес.
type Pusher interface {
	Send(ctx context.Context, ep models.PushEndpoint, payload push.Payload) error
}

// EndpointRepository хранилище push-адресов пользователей.
type EndpointRepository interface {
	AddPushEndpoint(ctx context.Context, userUID string, ep models.PushEndpoint) (bool, error)
	ListPushEndpoints(ctx context.Context, userUID string) ([]models.PushEndpoint, error)
	RemovePushEndpoint(ctx context.Context, userUID, endpoint string) error
	GetUser(ctx context.Context, userUID string) (*models.User, error)
}

// SenderService доставляет напоминания по всем каналам пользователя.
type SenderService struct {
	transport   smtp.TransportInterface
	pusher      Pusher
	repo        EndpointRepository
	log         *slog.Logger
	concurrency int
}

// NewSenderService создает новый экземпляр SenderService.
// concurrency ограничивает число одновременных push-запросов одного напоминания.
func NewSenderService(transport smtp.TransportInterface, pusher Pusher, repo EndpointRepository,
	log *slog.Logger, concurrency int) *SenderService {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &SenderService{
		transport:   transport,
		pusher:      pusher,
		repo:        repo,
		log:         log,
		concurrency: concurrency,
	}
}

// Dispatch доставляет напоминание в том же процессе.
func (s *SenderService) Dispatch(ctx context.Context, r models.Reminder) error {
	return s.Deliver(ctx, r)
}

// Deliver отправляет письмо и push-уведомления на все адреса владельца.
// Сбой одного канала не мешает другому. Возвращается только ошибка email,
// ошибки push записываются в лог и метрики.
func (s *SenderService) Deliver(ctx context.Context, r models.Reminder) error {
	log := s.log.With(
		slog.Int("subscription_id", r.SubscriptionID),
		slog.String("user_uid", r.UserUID),
	)

	var emailErr error
	if r.Email != "" {
		subject := fmt.Sprintf("Bill Due: %s", r.Name)
		body := fmt.Sprintf("Your %s is due in %d days.", r.Name, r.DaysRemaining)
		emailErr = s.sendEmail([]string{r.Email}, subject, body)
		if emailErr != nil {
			metrics.Notifications.WithLabelValues(metrics.ChannelEmail, metrics.ResultFailed).Inc()
			log.Error("failed to send reminder email", sl.Err(emailErr))
		} else {
			metrics.Notifications.WithLabelValues(metrics.ChannelEmail, metrics.ResultSent).Inc()
		}
	}

	endpoints, err := s.repo.ListPushEndpoints(ctx, r.UserUID)
	if err != nil {
		log.Error("failed to list push endpoints", sl.Err(err))
		return emailErr
	}
	sent := s.pushAll(ctx, r.UserUID, endpoints, push.Payload{
		Title: fmt.Sprintf("Upcoming Bill: %s", r.Name),
		Body:  fmt.Sprintf("Amount: %s %s is due in %d days!", r.Currency, r.Price.StringFixed(2), r.DaysRemaining),
		Icon:  notificationIcon,
	})
	log.Info("reminder delivered",
		slog.Bool("email", r.Email != "" && emailErr == nil),
		slog.Int("push_sent", sent),
		slog.Int("push_total", len(endpoints)),
	)
	return emailErr
}

// HandleReminderMessage разбирает сообщение из очереди и доставляет напоминание.
func (s *SenderService) HandleReminderMessage(ctx context.Context, body []byte) error {
	const op = "services.sender.HandleReminderMessage"
	var r models.Reminder
	if err := json.Unmarshal(body, &r); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.Deliver(ctx, r); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RegisterEndpoint сохраняет push-адрес пользователя.
// Повторная регистрация того же адреса ничего не меняет и возвращает false.
func (s *SenderService) RegisterEndpoint(ctx context.Context, userUID string, ep models.PushEndpoint) (bool, error) {
	added, err := s.repo.AddPushEndpoint(ctx, userUID, ep)
	if err != nil {
		return false, err
	}
	if added {
		s.log.Info("push endpoint registered", slog.String("user_uid", userUID))
	}
	return added, nil
}

// SendTest отправляет тестовое уведомление на все адреса пользователя
// и возвращает число успешных отправок. Удалённые адреса вычищаются.
func (s *SenderService) SendTest(ctx context.Context, userUID string) (int, error) {
	const op = "services.sender.SendTest"
	user, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	endpoints, err := s.repo.ListPushEndpoints(ctx, userUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if len(endpoints) == 0 {
		return 0, fmt.Errorf("%s: %w", op, models.ErrNoEndpoints)
	}
	return s.pushAll(ctx, userUID, endpoints, push.Payload{
		Title: fmt.Sprintf("Hello %s!", user.Username),
		Body:  "This is a test notification from Bill Reminder.",
		Icon:  notificationIcon,
	}), nil
}

// pushAll рассылает payload на все адреса параллельно и возвращает число успешных отправок.
// Задачи не возвращают ошибок, поэтому сбой одной не отменяет остальные.
func (s *SenderService) pushAll(ctx context.Context, userUID string, endpoints []models.PushEndpoint, payload push.Payload) int {
	results := make([]bool, len(endpoints))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, ep := range endpoints {
		g.Go(func() error {
			results[i] = s.pushOne(ctx, userUID, ep, payload)
			return nil
		})
	}
	_ = g.Wait()

	sent := 0
	for _, ok := range results {
		if ok {
			sent++
		}
	}
	return sent
}

func (s *SenderService) pushOne(ctx context.Context, userUID string, ep models.PushEndpoint, payload push.Payload) bool {
	err := s.pusher.Send(ctx, ep, payload)
	switch {
	case err == nil:
		metrics.Notifications.WithLabelValues(metrics.ChannelPush, metrics.ResultSent).Inc()
		return true
	case errors.Is(err, push.ErrGone):
		metrics.Notifications.WithLabelValues(metrics.ChannelPush, metrics.ResultGone).Inc()
		s.log.Info("removing expired push endpoint", slog.String("user_uid", userUID), slog.String("endpoint", ep.Endpoint))
		if err := s.repo.RemovePushEndpoint(ctx, userUID, ep.Endpoint); err != nil {
			s.log.Error("failed to remove push endpoint", slog.String("endpoint", ep.Endpoint), sl.Err(err))
			return false
		}
		metrics.PrunedEndpoints.Inc()
	default:
		metrics.Notifications.WithLabelValues(metrics.ChannelPush, metrics.ResultFailed).Inc()
		s.log.Error("failed to send push notification", slog.String("endpoint", ep.Endpoint), sl.Err(err))
	}
	return false
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	from := s.transport.GetSMTPUser()
	msg := smtp.BuildMessage(from, to, subject, bodyText)

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(from); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}

	if _, err := wc.Write(msg); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err := wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}

	if err := client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Debug("email sent successfully", slog.Any("to", to))
	return nil
}
