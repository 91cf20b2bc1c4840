// Package services реализует ежеминутный планировщик напоминаний о платежах.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/magabrotheeeer/bill-reminder/internal/lib/metrics"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/reminder"
	"github.com/magabrotheeeer/bill-reminder/internal/lib/sl"
	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

// ErrAlreadyStarted планировщик уже запущен.
var ErrAlreadyStarted = errors.New("scheduler already started")

// SubscriptionRepository источник кандидатов на напоминание и их владельцев.
type SubscriptionRepository interface {
	FindByPreferredTime(ctx context.Context, minute string) ([]*models.Subscription, error)
	GetUser(ctx context.Context, userUID string) (*models.User, error)
}

// Dispatcher передаёт напоминание на доставку.
type Dispatcher interface {
	Dispatch(ctx context.Context, r models.Reminder) error
}

// SchedulerService раз в минуту выбирает подписки, по которым пора напомнить,
// и передаёт напоминания Dispatcher.
type SchedulerService struct {
	repo       SubscriptionRepository
	dispatcher Dispatcher
	log        *slog.Logger
	loc        *time.Location
	now        func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// NewSchedulerService создает новый экземпляр SchedulerService.
// loc задаёт часовой пояс, в котором сравниваются предпочтительные времена.
func NewSchedulerService(repo SubscriptionRepository, dispatcher Dispatcher, log *slog.Logger, loc *time.Location) *SchedulerService {
	if loc == nil {
		loc = time.Local
	}
	return &SchedulerService{
		repo:       repo,
		dispatcher: dispatcher,
		log:        log,
		loc:        loc,
		now:        time.Now,
	}
}

// Start запускает периодические проверки по расписанию spec в формате cron.
// Тики не перекрываются: если предыдущий ещё идёт, очередной пропускается.
// Паника внутри тика перехватывается и не останавливает планировщик.
func (s *SchedulerService) Start(ctx context.Context, spec string) error {
	const op = "services.scheduler.Start"
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("%s: %w", op, ErrAlreadyStarted)
	}

	logger := sl.NewCronLogger(s.log)
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)),
	)
	if _, err := c.AddFunc(spec, func() { s.Tick(ctx, s.now()) }); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	c.Start()
	s.cron = c
	s.log.Info("scheduler started", slog.String("spec", spec), slog.String("timezone", s.loc.String()))
	return nil
}

// Stop останавливает планировщик. Возвращённый контекст завершается,
// когда закончится выполняющийся тик. Повторный вызов безопасен.
func (s *SchedulerService) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	ctx := s.cron.Stop()
	s.cron = nil
	s.log.Info("scheduler stopped")
	return ctx
}

// Tick выполняет одну проверку для момента now и возвращает число переданных напоминаний.
// Ошибки отдельных подписок записываются в лог и не прерывают обход.
func (s *SchedulerService) Tick(ctx context.Context, now time.Time) int {
	started := time.Now()
	metrics.Ticks.Inc()
	defer func() {
		metrics.TickDuration.Observe(time.Since(started).Seconds())
	}()

	now = now.In(s.loc)
	minute := reminder.FormatMinute(now)
	log := s.log.With(slog.String("minute", minute))

	candidates, err := s.repo.FindByPreferredTime(ctx, minute)
	if err != nil {
		log.Error("failed to find subscriptions", sl.Err(err))
		return 0
	}
	if len(candidates) == 0 {
		return 0
	}
	metrics.Candidates.Add(float64(len(candidates)))
	log.Debug("found reminder candidates", slog.Int("count", len(candidates)))

	owners := make(map[string]*models.User)
	dispatched := 0
	for _, sub := range candidates {
		owner, err := s.owner(ctx, owners, sub.UserUID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				log.Warn("subscription owner not found", slog.Int("subscription_id", sub.ID), slog.String("user_uid", sub.UserUID))
			} else {
				log.Error("failed to resolve subscription owner", slog.Int("subscription_id", sub.ID), sl.Err(err))
			}
			continue
		}

		days, ok := reminder.Matches(minute, now, sub)
		if !ok {
			continue
		}
		metrics.Matched.Inc()

		if err := s.dispatcher.Dispatch(ctx, models.NewReminder(sub, owner, days)); err != nil {
			log.Error("failed to dispatch reminder", slog.Int("subscription_id", sub.ID), sl.Err(err))
			continue
		}
		dispatched++
		log.Info("reminder dispatched",
			slog.Int("subscription_id", sub.ID),
			slog.String("name", sub.Name),
			slog.Int("days_remaining", days),
		)
	}
	return dispatched
}

func (s *SchedulerService) owner(ctx context.Context, seen map[string]*models.User, userUID string) (*models.User, error) {
	if u, ok := seen[userUID]; ok {
		return u, nil
	}
	u, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, models.ErrNotFound
	}
	seen[userUID] = u
	return u, nil
}

// Publisher публикует сообщение в очередь.
type Publisher interface {
	Publish(ctx context.Context, message any) error
}

// QueueDispatcher передаёт напоминания отдельному процессу доставки через очередь.
type QueueDispatcher struct {
	pub Publisher
}

// NewQueueDispatcher создает QueueDispatcher поверх pub.
func NewQueueDispatcher(pub Publisher) *QueueDispatcher {
	return &QueueDispatcher{pub: pub}
}

// Dispatch публикует напоминание в очередь.
func (d *QueueDispatcher) Dispatch(ctx context.Context, r models.Reminder) error {
	if err := d.pub.Publish(ctx, r); err != nil {
		metrics.Notifications.WithLabelValues(metrics.ChannelQueue, metrics.ResultFailed).Inc()
		return err
	}
	metrics.Notifications.WithLabelValues(metrics.ChannelQueue, metrics.ResultSent).Inc()
	return nil
}
