package models

import "github.com/shopspring/decimal"

// DummyFilterSum параметры запроса суммы подписок.
type DummyFilterSum struct {
	Category string `json:"category" validate:"omitempty,max=50"`
}

// FilterSum условия подсчёта суммы подписок пользователя.
// Category == nil означает все категории.
type FilterSum struct {
	UserUID  string
	Category *string
}

// CurrencyTotal сумма цен подписок в одной валюте.
type CurrencyTotal struct {
	Currency string          `json:"currency"`
	Total    decimal.Decimal `json:"total" swaggertype:"number"`
	Count    int             `json:"count"`
}
