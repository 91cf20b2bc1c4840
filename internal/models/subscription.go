// Package models содержит доменные структуры сервиса напоминаний о платежах:
// подписку с настройками напоминаний, пользователя с push-адресами,
// сообщение о предстоящем платеже, а также типы JSON-запросов.
package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/magabrotheeeer/bill-reminder/internal/lib/billing"
)

// DateLayout формат календарной даты во входящих и исходящих JSON.
const DateLayout = "2006-01-02"

// DefaultCurrency валюта подписки по умолчанию.
const DefaultCurrency = "INR"

// ReminderSettings описывает, когда и за сколько дней напоминать о платеже.
type ReminderSettings struct {
	DaysBefore     int      `json:"days_before"`     // За сколько дней до оплаты начинать напоминать
	Frequency      int      `json:"frequency"`       // Сколько раз в день напоминать (1-3)
	PreferredTimes []string `json:"preferred_times"` // Время напоминаний в формате HH:MM
}

// Subscription регулярный платёж пользователя.
//
// NextPaymentDate единственный источник истины для статуса оплаты.
// StartDate фиксирует первую оплату и планировщиком не изменяется.
type Subscription struct {
	ID              int              `json:"id"`
	UserUID         string           `json:"user_uid"`
	Name            string           `json:"name"`
	Price           decimal.Decimal  `json:"price"`
	Currency        string           `json:"currency"`
	Category        string           `json:"category,omitempty"`
	BillingCycle    billing.Cycle    `json:"billing_cycle"`
	CustomDays      int              `json:"custom_days,omitempty"`
	StartDate       time.Time        `json:"start_date"`
	NextPaymentDate time.Time        `json:"next_payment_date"`
	Reminder        ReminderSettings `json:"reminder_settings"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// SubscriptionView подписка вместе с рассчитанным статусом оплаты на сегодня.
type SubscriptionView struct {
	*Subscription
	DaysRemaining int            `json:"days_remaining"`
	Status        billing.Status `json:"status"`
}

// DummyReminderSettings настройки напоминаний из JSON-запроса.
// Незаданные поля заполняются значениями по умолчанию.
type DummyReminderSettings struct {
	DaysBefore     *int     `json:"days_before" validate:"omitempty,min=0,max=365"`
	Frequency      int      `json:"frequency" validate:"omitempty,min=1,max=3"`
	PreferredTimes []string `json:"preferred_times" validate:"omitempty,max=3,dive,len=5"`
}

// DummySubscription используется для приёма данных подписки из JSON-запроса.
// Даты приходят строками в формате 2006-01-02 и разбираются в сервисе.
type DummySubscription struct {
	Name            string                 `json:"name" validate:"required,max=100"`
	Price           decimal.Decimal        `json:"price" swaggertype:"number"`
	Currency        string                 `json:"currency" validate:"omitempty,len=3"`
	Category        string                 `json:"category" validate:"omitempty,max=50"`
	BillingCycle    string                 `json:"billing_cycle" validate:"required"`
	CustomDays      int                    `json:"custom_days" validate:"omitempty,min=1"`
	StartDate       string                 `json:"start_date" validate:"required"`
	NextPaymentDate string                 `json:"next_payment_date"`
	Reminder        *DummyReminderSettings `json:"reminder_settings"`
}

// AdvancedDueDate возвращает дату следующего платежа после текущей NextPaymentDate.
func (s *Subscription) AdvancedDueDate() time.Time {
	return billing.NextDueDate(s.NextPaymentDate, s.BillingCycle, s.CustomDays)
}
