package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/magabrotheeeer/bill-reminder/internal/lib/billing"
	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

const subscriptionColumns = `id, user_uid, name, price, currency, category, billing_cycle, custom_days,
	start_date, next_payment_date, days_before, frequency, array_to_json(preferred_times), created_at, updated_at`

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		sub   models.Subscription
		cycle string
		times []byte
	)
	if err := row.Scan(&sub.ID, &sub.UserUID, &sub.Name, &sub.Price, &sub.Currency, &sub.Category,
		&cycle, &sub.CustomDays, &sub.StartDate, &sub.NextPaymentDate,
		&sub.Reminder.DaysBefore, &sub.Reminder.Frequency, &times,
		&sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.BillingCycle = billing.Cycle(cycle)
	if err := json.Unmarshal(times, &sub.Reminder.PreferredTimes); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Storage) querySubscriptions(ctx context.Context, op, query string, args ...any) ([]*models.Subscription, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, sub)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CreateSubscription вставляет новую подписку и возвращает её ID.
func (s *Storage) CreateSubscription(ctx context.Context, sub models.Subscription) (int, error) {
	const op = "storage.CreateSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO subscriptions (user_uid, name, price, currency, category, billing_cycle,
			      custom_days, start_date, next_payment_date, days_before, frequency, preferred_times)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		sub.UserUID, sub.Name, sub.Price, sub.Currency, sub.Category, string(sub.BillingCycle),
		sub.CustomDays, sub.StartDate, sub.NextPaymentDate,
		sub.Reminder.DaysBefore, sub.Reminder.Frequency, sub.Reminder.PreferredTimes).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// GetSubscription возвращает подписку по ID, если она принадлежит userUID.
func (s *Storage) GetSubscription(ctx context.Context, id int, userUID string) (*models.Subscription, error) {
	const op = "storage.GetSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE id = $1 AND user_uid = $2`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, id, userUID))
	if err != nil {
		return nil, notFoundOr(op, err)
	}
	return sub, nil
}

// ListSubscriptions возвращает подписки пользователя, ближайшие платежи первыми.
func (s *Storage) ListSubscriptions(ctx context.Context, userUID string) ([]*models.Subscription, error) {
	const op = "storage.ListSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE user_uid = $1
			  ORDER BY next_payment_date, id`
	return s.querySubscriptions(ctx, op, query, userUID)
}

// FindByPreferredTime возвращает все подписки, у которых среди времён
// напоминаний есть minute (HH:MM). Использует GIN-индекс по preferred_times.
func (s *Storage) FindByPreferredTime(ctx context.Context, minute string) ([]*models.Subscription, error) {
	const op = "storage.FindByPreferredTime"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + subscriptionColumns + `
			  FROM subscriptions
			  WHERE preferred_times @> ARRAY[$1::text]
			  ORDER BY id`
	return s.querySubscriptions(ctx, op, query, minute)
}

// UpdateSubscription перезаписывает изменяемые поля подписки.
// Если подписки нет или она чужая, возвращает models.ErrNotFound.
func (s *Storage) UpdateSubscription(ctx context.Context, sub models.Subscription) error {
	const op = "storage.UpdateSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET name = $1, price = $2, currency = $3, category = $4, billing_cycle = $5,
			      custom_days = $6, start_date = $7, next_payment_date = $8, days_before = $9,
			      frequency = $10, preferred_times = $11, updated_at = now()
			  WHERE id = $12 AND user_uid = $13`
	res, err := s.DB.ExecContext(ctx, query,
		sub.Name, sub.Price, sub.Currency, sub.Category, string(sub.BillingCycle),
		sub.CustomDays, sub.StartDate, sub.NextPaymentDate, sub.Reminder.DaysBefore,
		sub.Reminder.Frequency, sub.Reminder.PreferredTimes, sub.ID, sub.UserUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return checkAffected(op, res)
}

// UpdateNextPaymentDate записывает новую дату следующего платежа.
func (s *Storage) UpdateNextPaymentDate(ctx context.Context, id int, userUID string, next time.Time) error {
	const op = "storage.UpdateNextPaymentDate"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET next_payment_date = $1, updated_at = now()
			  WHERE id = $2 AND user_uid = $3`
	res, err := s.DB.ExecContext(ctx, query, next, id, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return checkAffected(op, res)
}

// DeleteSubscription удаляет подписку пользователя.
func (s *Storage) DeleteSubscription(ctx context.Context, id int, userUID string) error {
	const op = "storage.DeleteSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = $1 AND user_uid = $2`, id, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return checkAffected(op, res)
}

// CountSum суммирует цены подписок пользователя отдельно по каждой валюте.
// Результат упорядочен по коду валюты.
func (s *Storage) CountSum(ctx context.Context, filter models.FilterSum) ([]models.CurrencyTotal, error) {
	const op = "storage.CountSum"
	query := `SELECT currency, SUM(price), COUNT(*)
			  FROM subscriptions
			  WHERE user_uid = $1 AND ($2::text IS NULL OR category = $2)
			  GROUP BY currency
			  ORDER BY currency`
	rows, err := s.DB.QueryContext(ctx, query, filter.UserUID, filter.Category)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := []models.CurrencyTotal{}
	for rows.Next() {
		var t models.CurrencyTotal
		if err := rows.Scan(&t.Currency, &t.Total, &t.Count); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
