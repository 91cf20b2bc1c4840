package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

// AddPushEndpoint добавляет push-адрес пользователю.
// Повторная регистрация того же адреса ничего не меняет и возвращает false.
func (s *Storage) AddPushEndpoint(ctx context.Context, userUID string, ep models.PushEndpoint) (bool, error) {
	const op = "storage.AddPushEndpoint"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO push_endpoints (user_uid, endpoint, p256dh, auth)
			  VALUES ($1, $2, $3, $4)
			  ON CONFLICT (user_uid, endpoint) DO NOTHING`
	res, err := s.DB.ExecContext(ctx, query, userUID, ep.Endpoint, ep.Keys.P256dh, ep.Keys.Auth)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}

// ListPushEndpoints возвращает push-адреса пользователя в порядке регистрации.
func (s *Storage) ListPushEndpoints(ctx context.Context, userUID string) ([]models.PushEndpoint, error) {
	const op = "storage.ListPushEndpoints"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT endpoint, p256dh, auth FROM push_endpoints WHERE user_uid = $1 ORDER BY id`, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.PushEndpoint
	for rows.Next() {
		var ep models.PushEndpoint
		if err = rows.Scan(&ep.Endpoint, &ep.Keys.P256dh, &ep.Keys.Auth); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, ep)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// RemovePushEndpoint удаляет один push-адрес пользователя.
func (s *Storage) RemovePushEndpoint(ctx context.Context, userUID, endpoint string) error {
	const op = "storage.RemovePushEndpoint"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM push_endpoints WHERE user_uid = $1 AND endpoint = $2`, userUID, endpoint)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return checkAffected(op, res)
}
