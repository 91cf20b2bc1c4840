package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reminder сообщение о предстоящем платеже, которое планировщик
// передаёт на доставку по email и push.
type Reminder struct {
	SubscriptionID int             `json:"subscription_id"`
	UserUID        string          `json:"user_uid"`
	Username       string          `json:"username"`
	Email          string          `json:"email"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	Currency       string          `json:"currency"`
	DueDate        time.Time       `json:"due_date"`
	DaysRemaining  int             `json:"days_remaining"`
}

// NewReminder собирает Reminder для подписки и её владельца.
func NewReminder(sub *Subscription, owner *User, daysRemaining int) Reminder {
	return Reminder{
		SubscriptionID: sub.ID,
		UserUID:        owner.UUID,
		Username:       owner.Username,
		Email:          owner.Email,
		Name:           sub.Name,
		Price:          sub.Price,
		Currency:       sub.Currency,
		DueDate:        sub.NextPaymentDate,
		DaysRemaining:  daysRemaining,
	}
}
