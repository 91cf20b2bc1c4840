// Package reminder отбирает подписки, по которым в текущую минуту
// нужно отправить напоминание о платеже.
package reminder

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/magabrotheeeer/bill-reminder/internal/lib/billing"
	"github.com/magabrotheeeer/bill-reminder/internal/models"
)

// MinuteLayout формат времени напоминания: HH:MM, 24 часа, с ведущими нулями.
const MinuteLayout = "15:04"

const (
	// DefaultDaysBefore за сколько дней до платежа напоминать по умолчанию.
	DefaultDaysBefore = 3
	// MaxFrequency максимальное число напоминаний в день.
	MaxFrequency = 3
)

var defaultTimes = [MaxFrequency]string{"09:00", "14:00", "20:00"}

// ErrInvalidSchedule возвращается при нарушении инвариантов настроек напоминаний.
var ErrInvalidSchedule = errors.New("invalid reminder schedule")

// FormatMinute возвращает текущую минуту t в формате HH:MM.
func FormatMinute(t time.Time) string {
	return t.Format(MinuteLayout)
}

// DefaultTimes возвращает времена напоминаний по умолчанию для частоты frequency.
func DefaultTimes(frequency int) []string {
	frequency = max(1, min(frequency, MaxFrequency))
	return slices.Clone(defaultTimes[:frequency])
}

// ParseTimeSlot проверяет, что s задано строго в виде HH:MM.
func ParseTimeSlot(s string) (string, error) {
	t, err := time.Parse(MinuteLayout, s)
	if err != nil || t.Format(MinuteLayout) != s {
		return "", fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidSchedule, s)
	}
	return s, nil
}

// ValidateSettings проверяет настройки напоминаний при записи:
// частота 1..3, число времён равно частоте, времена в формате HH:MM без повторов.
func ValidateSettings(s models.ReminderSettings) error {
	if s.DaysBefore < 0 {
		return fmt.Errorf("%w: days_before must be non-negative", ErrInvalidSchedule)
	}
	if s.Frequency < 1 || s.Frequency > MaxFrequency {
		return fmt.Errorf("%w: frequency must be 1..%d", ErrInvalidSchedule, MaxFrequency)
	}
	if len(s.PreferredTimes) != s.Frequency {
		return fmt.Errorf("%w: expected %d preferred times, got %d",
			ErrInvalidSchedule, s.Frequency, len(s.PreferredTimes))
	}
	seen := make(map[string]struct{}, len(s.PreferredTimes))
	for _, slot := range s.PreferredTimes {
		if _, err := ParseTimeSlot(slot); err != nil {
			return err
		}
		if _, ok := seen[slot]; ok {
			return fmt.Errorf("%w: duplicate time %q", ErrInvalidSchedule, slot)
		}
		seen[slot] = struct{}{}
	}
	return nil
}

// Matches сообщает, нужно ли напоминать о sub в минуту nowMinute дня today.
//
// Время сравнивается точным совпадением строк. Окно по дням включает
// обе границы: 0 <= daysRemaining <= DaysBefore.
func Matches(nowMinute string, today time.Time, sub *models.Subscription) (int, bool) {
	if !slices.Contains(sub.Reminder.PreferredTimes, nowMinute) {
		return 0, false
	}
	return InWindow(today, sub)
}

// InWindow проверяет только окно по дням и возвращает число оставшихся дней.
func InWindow(today time.Time, sub *models.Subscription) (int, bool) {
	days := billing.DaysRemaining(sub.NextPaymentDate, today)
	return days, days >= 0 && days <= sub.Reminder.DaysBefore
}

// SelectDue возвращает подписки, по которым нужно напомнить в минуту nowMinute.
// Порядок входного списка сохраняется. Повторные вызовы в ту же минуту
// возвращают тот же набор.
func SelectDue(nowMinute string, today time.Time, subs []*models.Subscription) []*models.Subscription {
	var due []*models.Subscription
	for _, sub := range subs {
		if _, ok := Matches(nowMinute, today, sub); ok {
			due = append(due, sub)
		}
	}
	return due
}
