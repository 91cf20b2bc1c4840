package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/bill-reminder/internal/lib/billing"
	"github.com/magabrotheeeer/bill-reminder/internal/migrations"
	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции.
func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	storage, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath))

	return storage
}

// TestDataFactory содержит методы для создания тестовых данных
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateUser создает тестового пользователя и возвращает его UID
func (f *TestDataFactory) CreateUser(t *testing.T, username, email string) string {
	t.Helper()
	uid, err := f.storage.RegisterUser(context.Background(), models.User{
		Email:        email,
		Username:     username,
		PasswordHash: "hashedpassword",
		Role:         "user",
	})
	require.NoError(t, err)
	return uid
}

// CreateSubscription создает тестовую подписку с ежемесячным циклом
func (f *TestDataFactory) CreateSubscription(t *testing.T, userUID, name string, next time.Time, times ...string) int {
	t.Helper()
	id, err := f.storage.CreateSubscription(context.Background(), models.Subscription{
		UserUID:         userUID,
		Name:            name,
		Price:           decimal.RequireFromString("499.00"),
		Currency:        models.DefaultCurrency,
		BillingCycle:    billing.Monthly,
		StartDate:       next.AddDate(0, -1, 0),
		NextPaymentDate: next,
		Reminder: models.ReminderSettings{
			DaysBefore:     3,
			Frequency:      len(times),
			PreferredTimes: times,
		},
	})
	require.NoError(t, err)
	return id
}
