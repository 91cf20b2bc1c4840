// Package services содержит бизнес-логику для управления подписками и кешированием.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/bill-reminder/internal/lib/billing"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/reminder"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/sl"
	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

const cacheTTL = time.Hour

// SubscriptionRepository определяет методы для работы с подписками в хранилище.
// Все методы, кроме CreateSubscription, ограничены владельцем userUID.
type SubscriptionRepository interface {
	CreateSubscription(ctx context.Context, sub models.Subscription) (int, error)
	GetSubscription(ctx context.Context, id int, userUID string) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, userUID string) ([]*models.Subscription, error)
	UpdateSubscription(ctx context.Context, sub models.Subscription) error
	UpdateNextPaymentDate(ctx context.Context, id int, userUID string, next time.Time) error
	DeleteSubscription(ctx context.Context, id int, userUID string) error
	CountSum(ctx context.Context, filter models.FilterSum) ([]models.CurrencyTotal, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(ctx context.Context, key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	// Invalidate удаляет значения из кеша по ключам.
	Invalidate(ctx context.Context, keys ...string) error
}

// SubscriptionService реализует бизнес-логику работы с подписками, включая кеширование.
type SubscriptionService struct {
	repo  SubscriptionRepository
	cache Cache
	log   *slog.Logger
	now   func() time.Time
}

// NewSubscriptionService создает новый экземпляр SubscriptionService.
func NewSubscriptionService(repo SubscriptionRepository, cache Cache, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		repo:  repo,
		cache: cache,
		log:   log,
		now:   time.Now,
	}
}

// WithClock подменяет источник текущего времени для расчёта статуса оплаты.
func (s *SubscriptionService) WithClock(now func() time.Time) *SubscriptionService {
	s.now = now
	return s
}

func cacheKey(id int) string {
	return fmt.Sprintf("subscription:%d", id)
}

// Create создает новую подписку пользователя userUID, кеширует её и возвращает сохранённую запись.
func (s *SubscriptionService) Create(ctx context.Context, userUID string, req models.DummySubscription) (*models.Subscription, error) {
	sub, err := buildSubscription(req, nil)
	if err != nil {
		return nil, err
	}
	sub.UserUID = userUID

	id, err := s.repo.CreateSubscription(ctx, sub)
	if err != nil {
		return nil, err
	}
	sub.ID = id
	s.log.Info("created new subscription", slog.Int("id", id))

	s.putCache(ctx, &sub)
	return &sub, nil
}

// Read возвращает подписку по ID, используя кеш или репозиторий.
// Чужая подписка неотличима от отсутствующей.
func (s *SubscriptionService) Read(ctx context.Context, id int, userUID string) (*models.SubscriptionView, error) {
	sub, err := s.get(ctx, id, userUID)
	if err != nil {
		return nil, err
	}
	return s.view(sub), nil
}

func (s *SubscriptionService) get(ctx context.Context, id int, userUID string) (*models.Subscription, error) {
	var cached *models.Subscription
	found, err := s.cache.Get(ctx, cacheKey(id), &cached)
	if err != nil {
		s.log.Warn("failed to read from cache", slog.String("key", cacheKey(id)), sl.Err(err))
	}
	if found && cached != nil && cached.UserUID == userUID {
		return cached, nil
	}

	sub, err := s.repo.GetSubscription(ctx, id, userUID)
	if err != nil {
		return nil, err
	}
	s.putCache(ctx, sub)
	return sub, nil
}

// List возвращает подписки пользователя, отсортированные по дате платежа,
// вместе с числом оставшихся дней и статусом.
func (s *SubscriptionService) List(ctx context.Context, userUID string) ([]*models.SubscriptionView, error) {
	subs, err := s.repo.ListSubscriptions(ctx, userUID)
	if err != nil {
		return nil, err
	}
	views := make([]*models.SubscriptionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, s.view(sub))
	}
	return views, nil
}

// Update полностью заменяет редактируемые поля подписки и обновляет кеш.
// Незаданная next_payment_date сохраняет текущее значение.
func (s *SubscriptionService) Update(ctx context.Context, id int, userUID string, req models.DummySubscription) (*models.Subscription, error) {
	current, err := s.repo.GetSubscription(ctx, id, userUID)
	if err != nil {
		return nil, err
	}
	sub, err := buildSubscription(req, current)
	if err != nil {
		return nil, err
	}
	sub.ID = id
	sub.UserUID = userUID
	sub.CreatedAt = current.CreatedAt

	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	s.log.Info("updated subscription in storage", slog.Int("id", id))

	s.putCache(ctx, &sub)
	return &sub, nil
}

// Delete удаляет подписку и инвалидирует кеш.
func (s *SubscriptionService) Delete(ctx context.Context, id int, userUID string) error {
	if err := s.repo.DeleteSubscription(ctx, id, userUID); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, cacheKey(id)); err != nil {
		s.log.Warn("failed to remove from cache", slog.String("key", cacheKey(id)), sl.Err(err))
	}
	return nil
}

// MarkPaid отмечает текущий платёж оплаченным: дата следующего платежа
// сдвигается на один цикл от текущей даты платежа, а не от сегодняшнего дня.
// Каждый вызов сдвигает дату ещё на один цикл.
func (s *SubscriptionService) MarkPaid(ctx context.Context, id int, userUID string) (time.Time, error) {
	sub, err := s.repo.GetSubscription(ctx, id, userUID)
	if err != nil {
		return time.Time{}, err
	}
	next := sub.AdvancedDueDate()
	if err := s.repo.UpdateNextPaymentDate(ctx, id, userUID, next); err != nil {
		return time.Time{}, err
	}
	s.log.Info("subscription marked as paid",
		slog.Int("id", id),
		slog.String("next_payment_date", next.Format(models.DateLayout)),
	)

	if err := s.cache.Invalidate(ctx, cacheKey(id)); err != nil {
		s.log.Warn("failed to remove from cache", slog.String("key", cacheKey(id)), sl.Err(err))
	}
	return next, nil
}

// CountSumWithFilter считает сумму цен подписок пользователя по каждой валюте.
// Пустая категория в запросе означает все подписки.
func (s *SubscriptionService) CountSumWithFilter(ctx context.Context, userUID string, req models.DummyFilterSum) ([]models.CurrencyTotal, error) {
	filter := models.FilterSum{UserUID: userUID}
	if category := strings.TrimSpace(req.Category); category != "" {
		filter.Category = &category
	}

	totals, err := s.repo.CountSum(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range totals {
		totals[i].Total = totals[i].Total.Round(2)
	}
	return totals, nil
}

func (s *SubscriptionService) putCache(ctx context.Context, sub *models.Subscription) {
	if err := s.cache.Set(ctx, cacheKey(sub.ID), sub, cacheTTL); err != nil {
		s.log.Warn("failed to cache subscription", slog.String("key", cacheKey(sub.ID)), sl.Err(err))
	}
}

func (s *SubscriptionService) view(sub *models.Subscription) *models.SubscriptionView {
	days := billing.DaysRemaining(sub.NextPaymentDate, s.now())
	return &models.SubscriptionView{
		Subscription:  sub,
		DaysRemaining: days,
		Status:        billing.StatusOf(days),
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", models.ErrValidation, fmt.Sprintf(format, args...))
}

// buildSubscription проверяет запрос и собирает из него подписку.
// current задаётся при обновлении и служит источником next_payment_date по умолчанию.
func buildSubscription(req models.DummySubscription, current *models.Subscription) (models.Subscription, error) {
	cycle, customDays, err := billing.ParseCycle(req.BillingCycle)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("%w: %w", models.ErrValidation, err)
	}
	if cycle == billing.Custom && customDays == 0 {
		customDays = req.CustomDays
	}
	if err := billing.ValidateCycle(cycle, customDays); err != nil {
		return models.Subscription{}, fmt.Errorf("%w: %w", models.ErrValidation, err)
	}

	if !req.Price.IsPositive() {
		return models.Subscription{}, invalid("price must be positive")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = models.DefaultCurrency
	}

	start, err := time.Parse(models.DateLayout, req.StartDate)
	if err != nil {
		return models.Subscription{}, invalid("start_date must be YYYY-MM-DD")
	}

	var next time.Time
	switch {
	case req.NextPaymentDate != "":
		next, err = time.Parse(models.DateLayout, req.NextPaymentDate)
		if err != nil {
			return models.Subscription{}, invalid("next_payment_date must be YYYY-MM-DD")
		}
	case current != nil:
		next = current.NextPaymentDate
	default:
		next = billing.NextDueDate(start, cycle, customDays)
	}
	if next.Before(start) {
		return models.Subscription{}, invalid("next_payment_date must not be earlier than start_date")
	}

	settings, err := buildReminderSettings(req.Reminder)
	if err != nil {
		return models.Subscription{}, err
	}

	return models.Subscription{
		Name:            strings.TrimSpace(req.Name),
		Price:           req.Price.Round(2),
		Currency:        currency,
		Category:        req.Category,
		BillingCycle:    cycle,
		CustomDays:      customDays,
		StartDate:       start,
		NextPaymentDate: next,
		Reminder:        settings,
	}, nil
}

func buildReminderSettings(req *models.DummyReminderSettings) (models.ReminderSettings, error) {
	settings := models.ReminderSettings{
		DaysBefore: reminder.DefaultDaysBefore,
		Frequency:  1,
	}
	if req != nil {
		if req.DaysBefore != nil {
			settings.DaysBefore = *req.DaysBefore
		}
		switch {
		case req.Frequency != 0:
			settings.Frequency = req.Frequency
		case len(req.PreferredTimes) > 0:
			settings.Frequency = len(req.PreferredTimes)
		}
		settings.PreferredTimes = req.PreferredTimes
	}
	if len(settings.PreferredTimes) == 0 {
		settings.PreferredTimes = reminder.DefaultTimes(settings.Frequency)
	}

	if err := reminder.ValidateSettings(settings); err != nil {
		if errors.Is(err, reminder.ErrInvalidSchedule) {
			return models.ReminderSettings{}, fmt.Errorf("%w: %w", models.ErrValidation, err)
		}
		return models.ReminderSettings{}, err
	}
	return settings, nil
}
