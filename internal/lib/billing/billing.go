// Package billing реализует календарную арифметику платёжных циклов:
// расчёт следующей даты оплаты и количества дней до неё.
//
// Все вычисления ведутся над календарными датами. Время суток отбрасывается
// до арифметики, результат возвращается как полночь UTC, поэтому значения
// не «уплывают» через полночь при сохранении в столбец DATE.
package billing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cycle описывает тип платёжного цикла подписки.
type Cycle string

const (
	Monthly   Cycle = "Monthly"
	Yearly    Cycle = "Yearly"
	Weekly    Cycle = "Weekly"
	Days28    Cycle = "28 Days"
	Days30    Cycle = "30 Days"
	Quarterly Cycle = "Quarterly"
	Custom    Cycle = "Custom"
)

const (
	quarterLen = 90
	maxCustom  = 3660
)

// ErrInvalidCycle возвращается, если цикл не входит в перечисление
// или для Custom задано неположительное число дней.
var ErrInvalidCycle = errors.New("invalid billing cycle")

// Cycles возвращает все поддерживаемые циклы в порядке отображения.
func Cycles() []Cycle {
	return []Cycle{Monthly, Yearly, Weekly, Days28, Days30, Quarterly, Custom}
}

// DateOf отбрасывает время суток и возвращает календарную дату t
// как полночь UTC. Дата берётся в собственной локации значения.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextDueDate возвращает дату следующего платежа через один цикл после from.
//
// Для Monthly и Yearly переполнение дня месяца зажимается к последнему дню
// целевого месяца (31 января -> 28/29 февраля, 29 февраля -> 28 февраля).
// Неизвестный цикл или неположительное customDays дают нулевой сдвиг.
func NextDueDate(from time.Time, cycle Cycle, customDays int) time.Time {
	date := DateOf(from)
	switch cycle {
	case Monthly:
		return addMonthsClamped(date, 1)
	case Yearly:
		return addMonthsClamped(date, 12)
	case Weekly:
		return date.AddDate(0, 0, 7)
	case Days28:
		return date.AddDate(0, 0, 28)
	case Days30:
		return date.AddDate(0, 0, 30)
	case Quarterly:
		return date.AddDate(0, 0, quarterLen)
	case Custom:
		if customDays <= 0 {
			return date
		}
		return date.AddDate(0, 0, customDays)
	default:
		return date
	}
}

func addMonthsClamped(date time.Time, months int) time.Time {
	y, m, d := date.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
	last := daysIn(first.Year(), first.Month())
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysRemaining возвращает знаковое число календарных дней от today до due:
// отрицательное значение означает просрочку, ноль означает оплату сегодня.
func DaysRemaining(due, today time.Time) int {
	diff := DateOf(due).Sub(DateOf(today))
	return int(diff.Hours() / 24)
}

// ParseCycle разбирает строковое представление цикла.
//
// Помимо имён перечисления принимается форма "N Days" для произвольного цикла:
// "45 Days" -> Custom, 45. "28 Days" и "30 Days" остаются фиксированными циклами.
func ParseCycle(s string) (Cycle, int, error) {
	const op = "billing.ParseCycle"
	s = strings.TrimSpace(s)
	for _, c := range Cycles() {
		if strings.EqualFold(s, string(c)) {
			return c, 0, nil
		}
	}
	if n, ok := strings.CutSuffix(s, " Days"); ok {
		days, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil || days <= 0 {
			return "", 0, fmt.Errorf("%s: %w: %q", op, ErrInvalidCycle, s)
		}
		return Custom, days, nil
	}
	return "", 0, fmt.Errorf("%s: %w: %q", op, ErrInvalidCycle, s)
}

// Label возвращает представление цикла для отображения и уведомлений.
func Label(cycle Cycle, customDays int) string {
	if cycle == Custom {
		return fmt.Sprintf("%d Days", customDays)
	}
	return string(cycle)
}

// ValidateCycle проверяет пару (cycle, customDays) на входе API.
func ValidateCycle(cycle Cycle, customDays int) error {
	switch cycle {
	case Monthly, Yearly, Weekly, Days28, Days30, Quarterly:
		return nil
	case Custom:
		if customDays <= 0 || customDays > maxCustom {
			return fmt.Errorf("%w: custom cycle needs 1..%d days, got %d", ErrInvalidCycle, maxCustom, customDays)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCycle, string(cycle))
	}
}

// Status описывает положение даты платежа относительно сегодняшнего дня.
type Status string

const (
	StatusOverdue  Status = "overdue"
	StatusDueToday Status = "due_today"
	StatusUpcoming Status = "upcoming"
)

// StatusOf классифицирует значение DaysRemaining.
func StatusOf(daysRemaining int) Status {
	switch {
	case daysRemaining < 0:
		return StatusOverdue
	case daysRemaining == 0:
		return StatusDueToday
	default:
		return StatusUpcoming
	}
}
