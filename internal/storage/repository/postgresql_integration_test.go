package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/bill-reminder/internal/lib/billing"
	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

func TestStorage_Integration(t *testing.T) {
	storage := setupTestDatabase(t)
	factory := NewTestDataFactory(storage)
	ctx := context.Background()
	due := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)

	t.Run("register user and duplicates", func(t *testing.T) {
		uid := factory.CreateUser(t, "alice", "alice@example.com")
		_, err := uuid.Parse(uid)
		require.NoError(t, err)

		_, err = storage.RegisterUser(ctx, models.User{
			Email: "alice@example.com", Username: "alice2", PasswordHash: "x", Role: "user",
		})
		assert.ErrorIs(t, err, models.ErrAlreadyExists)

		u, err := storage.GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, uid, u.UUID)

		u, err = storage.GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, "alice", u.Username)

		_, err = storage.GetUser(ctx, uuid.NewString())
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("subscription crud round trip", func(t *testing.T) {
		owner := factory.CreateUser(t, "bob", "bob@example.com")
		other := factory.CreateUser(t, "carol", "carol@example.com")

		id, err := storage.CreateSubscription(ctx, models.Subscription{
			UserUID:         owner,
			Name:            "Gym",
			Price:           decimal.RequireFromString("1250.50"),
			Currency:        "USD",
			Category:        "Health",
			BillingCycle:    billing.Custom,
			CustomDays:      45,
			StartDate:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			NextPaymentDate: due,
			Reminder: models.ReminderSettings{
				DaysBefore:     3,
				Frequency:      2,
				PreferredTimes: []string{"09:00", "20:00"},
			},
		})
		require.NoError(t, err)

		got, err := storage.GetSubscription(ctx, id, owner)
		require.NoError(t, err)
		assert.Equal(t, "Gym", got.Name)
		assert.True(t, decimal.RequireFromString("1250.50").Equal(got.Price))
		assert.Equal(t, billing.Custom, got.BillingCycle)
		assert.Equal(t, 45, got.CustomDays)
		assert.True(t, due.Equal(got.NextPaymentDate))
		assert.Equal(t, []string{"09:00", "20:00"}, got.Reminder.PreferredTimes)

		_, err = storage.GetSubscription(ctx, id, other)
		assert.ErrorIs(t, err, models.ErrNotFound)

		got.Name = "Gym Plus"
		require.NoError(t, storage.UpdateSubscription(ctx, *got))

		next := billing.NextDueDate(got.NextPaymentDate, got.BillingCycle, got.CustomDays)
		require.NoError(t, storage.UpdateNextPaymentDate(ctx, id, owner, next))
		assert.ErrorIs(t, storage.UpdateNextPaymentDate(ctx, id, other, next), models.ErrNotFound)

		list, err := storage.ListSubscriptions(ctx, owner)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "Gym Plus", list[0].Name)
		assert.True(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC).Equal(list[0].NextPaymentDate))

		assert.ErrorIs(t, storage.DeleteSubscription(ctx, id, other), models.ErrNotFound)
		require.NoError(t, storage.DeleteSubscription(ctx, id, owner))
		_, err = storage.GetSubscription(ctx, id, owner)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("find by preferred time", func(t *testing.T) {
		owner := factory.CreateUser(t, "dave", "dave@example.com")
		morning := factory.CreateSubscription(t, owner, "Netflix", due, "09:00")
		both := factory.CreateSubscription(t, owner, "Spotify", due, "09:00", "20:00")
		factory.CreateSubscription(t, owner, "Rent", due, "14:00")

		got, err := storage.FindByPreferredTime(ctx, "09:00")
		require.NoError(t, err)
		ids := make([]int, 0, len(got))
		for _, s := range got {
			ids = append(ids, s.ID)
		}
		assert.ElementsMatch(t, []int{morning, both}, ids)

		got, err = storage.FindByPreferredTime(ctx, "09:01")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("push endpoints have set semantics", func(t *testing.T) {
		owner := factory.CreateUser(t, "erin", "erin@example.com")
		ep := models.PushEndpoint{Endpoint: "https://push.example.com/a", Keys: models.PushKeys{P256dh: "p", Auth: "a"}}

		added, err := storage.AddPushEndpoint(ctx, owner, ep)
		require.NoError(t, err)
		assert.True(t, added)

		added, err = storage.AddPushEndpoint(ctx, owner, ep)
		require.NoError(t, err)
		assert.False(t, added)

		second := ep
		second.Endpoint = "https://push.example.com/b"
		_, err = storage.AddPushEndpoint(ctx, owner, second)
		require.NoError(t, err)

		list, err := storage.ListPushEndpoints(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, []models.PushEndpoint{ep, second}, list)

		require.NoError(t, storage.RemovePushEndpoint(ctx, owner, ep.Endpoint))
		assert.ErrorIs(t, storage.RemovePushEndpoint(ctx, owner, ep.Endpoint), models.ErrNotFound)

		list, err = storage.ListPushEndpoints(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, []models.PushEndpoint{second}, list)
	})

	t.Run("count sum per currency", func(t *testing.T) {
		owner := factory.CreateUser(t, "frank", "frank@example.com")
		other := factory.CreateUser(t, "grace", "grace@example.com")
		factory.CreateSubscription(t, owner, "Netflix", due, "09:00")
		factory.CreateSubscription(t, owner, "Spotify", due, "09:00")
		factory.CreateSubscription(t, other, "Rent", due, "09:00")
		_, err := storage.CreateSubscription(ctx, models.Subscription{
			UserUID:         owner,
			Name:            "Gym",
			Price:           decimal.RequireFromString("20.25"),
			Currency:        "USD",
			Category:        "Health",
			BillingCycle:    billing.Monthly,
			StartDate:       due.AddDate(0, -1, 0),
			NextPaymentDate: due,
			Reminder:        models.ReminderSettings{DaysBefore: 3, Frequency: 1, PreferredTimes: []string{"09:00"}},
		})
		require.NoError(t, err)

		totals, err := storage.CountSum(ctx, models.FilterSum{UserUID: owner})
		require.NoError(t, err)
		require.Len(t, totals, 2)
		assert.Equal(t, "INR", totals[0].Currency)
		assert.True(t, decimal.RequireFromString("998").Equal(totals[0].Total))
		assert.Equal(t, 2, totals[0].Count)
		assert.Equal(t, "USD", totals[1].Currency)
		assert.True(t, decimal.RequireFromString("20.25").Equal(totals[1].Total))

		health := "Health"
		totals, err = storage.CountSum(ctx, models.FilterSum{UserUID: owner, Category: &health})
		require.NoError(t, err)
		require.Len(t, totals, 1)
		assert.Equal(t, "USD", totals[0].Currency)

		totals, err = storage.CountSum(ctx, models.FilterSum{UserUID: uuid.NewString()})
		require.NoError(t, err)
		assert.Empty(t, totals)
	})

	t.Run("database ready", func(t *testing.T) {
		assert.NoError(t, CheckDatabaseReady(storage))
	})
}
