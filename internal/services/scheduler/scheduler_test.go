package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/bill-reminder/internal/lib/billing"
	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) FindByPreferredTime(ctx context.Context, minute string) ([]*models.Subscription, error) {
	args := m.Called(ctx, minute)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

func (m *RepoMock) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type DispatcherMock struct{ mock.Mock }

func (m *DispatcherMock) Dispatch(ctx context.Context, r models.Reminder) error {
	return m.Called(ctx, r).Error(0)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) Publish(ctx context.Context, message any) error {
	return m.Called(ctx, message).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func customSub(id int, owner string) *models.Subscription {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	return &models.Subscription{
		ID:              id,
		UserUID:         owner,
		Name:            "Gym",
		Price:           decimal.RequireFromString("20"),
		Currency:        "INR",
		BillingCycle:    billing.Custom,
		CustomDays:      45,
		StartDate:       start,
		NextPaymentDate: billing.NextDueDate(start, billing.Custom, 45),
		Reminder: models.ReminderSettings{
			DaysBefore:     3,
			Frequency:      1,
			PreferredTimes: []string{"09:00"},
		},
	}
}

func TestSchedulerService_Tick_CustomCycleWindow(t *testing.T) {
	owner := &models.User{UUID: "u1", Username: "alice", Email: "alice@example.com"}

	tests := []struct {
		name           string
		now            time.Time
		wantDispatched int
	}{
		{
			name:           "three days before due date is inside the window",
			now:            time.Date(2024, time.February, 12, 9, 0, 0, 0, time.UTC),
			wantDispatched: 1,
		},
		{
			name:           "four days before due date is outside the window",
			now:            time.Date(2024, time.February, 11, 9, 0, 0, 0, time.UTC),
			wantDispatched: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			dispatcher := new(DispatcherMock)
			sub := customSub(1, "u1")

			repo.On("FindByPreferredTime", mock.Anything, "09:00").Return([]*models.Subscription{sub}, nil).Once()
			repo.On("GetUser", mock.Anything, "u1").Return(owner, nil).Once()
			if tt.wantDispatched > 0 {
				dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(r models.Reminder) bool {
					return r.SubscriptionID == 1 && r.Email == "alice@example.com" && r.DaysRemaining == 3 &&
						r.DueDate.Equal(time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC))
				})).Return(nil).Once()
			}

			svc := NewSchedulerService(repo, dispatcher, newNoopLogger(), time.UTC)
			assert.Equal(t, tt.wantDispatched, svc.Tick(context.Background(), tt.now))

			repo.AssertExpectations(t)
			dispatcher.AssertExpectations(t)
		})
	}
}

func TestSchedulerService_Tick_EmptyCandidates(t *testing.T) {
	repo := new(RepoMock)
	dispatcher := new(DispatcherMock)
	repo.On("FindByPreferredTime", mock.Anything, "14:05").Return([]*models.Subscription{}, nil).Once()

	svc := NewSchedulerService(repo, dispatcher, newNoopLogger(), time.UTC)
	assert.Zero(t, svc.Tick(context.Background(), time.Date(2024, time.March, 1, 14, 5, 42, 0, time.UTC)))

	repo.AssertNotCalled(t, "GetUser", mock.Anything, mock.Anything)
	dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestSchedulerService_Tick_RepositoryError(t *testing.T) {
	repo := new(RepoMock)
	repo.On("FindByPreferredTime", mock.Anything, "09:00").Return(nil, errors.New("db down")).Once()

	svc := NewSchedulerService(repo, new(DispatcherMock), newNoopLogger(), time.UTC)
	assert.Zero(t, svc.Tick(context.Background(), time.Date(2024, time.February, 12, 9, 0, 0, 0, time.UTC)))
}

func TestSchedulerService_Tick_MissingOwnerAndDispatchFailure(t *testing.T) {
	repo := new(RepoMock)
	dispatcher := new(DispatcherMock)

	orphan := customSub(1, "gone")
	failing := customSub(2, "u1")
	ok := customSub(3, "u1")
	owner := &models.User{UUID: "u1", Email: "alice@example.com"}

	repo.On("FindByPreferredTime", mock.Anything, "09:00").
		Return([]*models.Subscription{orphan, failing, ok}, nil).Once()
	repo.On("GetUser", mock.Anything, "gone").Return(nil, models.ErrNotFound).Once()
	repo.On("GetUser", mock.Anything, "u1").Return(owner, nil).Once()
	dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(r models.Reminder) bool {
		return r.SubscriptionID == 2
	})).Return(errors.New("broker down")).Once()
	dispatcher.On("Dispatch", mock.Anything, mock.MatchedBy(func(r models.Reminder) bool {
		return r.SubscriptionID == 3
	})).Return(nil).Once()

	svc := NewSchedulerService(repo, dispatcher, newNoopLogger(), time.UTC)
	assert.Equal(t, 1, svc.Tick(context.Background(), time.Date(2024, time.February, 12, 9, 0, 0, 0, time.UTC)))

	repo.AssertExpectations(t)
	dispatcher.AssertExpectations(t)
}

func TestSchedulerService_Tick_UsesConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	repo := new(RepoMock)
	repo.On("FindByPreferredTime", mock.Anything, "09:00").Return([]*models.Subscription{}, nil).Once()

	svc := NewSchedulerService(repo, new(DispatcherMock), newNoopLogger(), loc)
	svc.Tick(context.Background(), time.Date(2024, time.February, 12, 3, 30, 0, 0, time.UTC))

	repo.AssertExpectations(t)
}

type countingRepo struct {
	calls atomic.Int32
}

func (r *countingRepo) FindByPreferredTime(context.Context, string) ([]*models.Subscription, error) {
	r.calls.Add(1)
	return nil, nil
}

func (r *countingRepo) GetUser(context.Context, string) (*models.User, error) {
	return nil, models.ErrNotFound
}

func TestSchedulerService_StartStop(t *testing.T) {
	repo := &countingRepo{}
	svc := NewSchedulerService(repo, new(DispatcherMock), newNoopLogger(), time.UTC)

	require.NoError(t, svc.Start(context.Background(), "@every 1s"))
	assert.ErrorIs(t, svc.Start(context.Background(), "@every 1s"), ErrAlreadyStarted)

	require.Eventually(t, func() bool { return repo.calls.Load() > 0 }, 5*time.Second, 50*time.Millisecond)

	<-svc.Stop().Done()
	<-svc.Stop().Done()
}

type panickingRepo struct {
	calls atomic.Int32
}

func (r *panickingRepo) FindByPreferredTime(context.Context, string) ([]*models.Subscription, error) {
	if r.calls.Add(1) == 1 {
		panic("storage exploded")
	}
	return nil, nil
}

func (r *panickingRepo) GetUser(context.Context, string) (*models.User, error) {
	return nil, models.ErrNotFound
}

func TestSchedulerService_KeepsTickingAfterPanic(t *testing.T) {
	repo := &panickingRepo{}
	svc := NewSchedulerService(repo, new(DispatcherMock), newNoopLogger(), time.UTC)

	require.NoError(t, svc.Start(context.Background(), "@every 1s"))
	defer func() { <-svc.Stop().Done() }()

	require.Eventually(t, func() bool { return repo.calls.Load() >= 3 }, 6*time.Second, 50*time.Millisecond)
}

func TestSchedulerService_StartInvalidSpec(t *testing.T) {
	svc := NewSchedulerService(&countingRepo{}, new(DispatcherMock), newNoopLogger(), time.UTC)
	assert.Error(t, svc.Start(context.Background(), "not a cron spec"))
}

func TestQueueDispatcher_Dispatch(t *testing.T) {
	pub := new(PublisherMock)
	r := models.Reminder{SubscriptionID: 1}
	pub.On("Publish", mock.Anything, r).Return(nil).Once()
	pub.On("Publish", mock.Anything, r).Return(errors.New("closed")).Once()

	d := NewQueueDispatcher(pub)
	require.NoError(t, d.Dispatch(context.Background(), r))
	assert.Error(t, d.Dispatch(context.Background(), r))
	pub.AssertExpectations(t)
}
